package jobtype

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hgonomeg/bansu/internal/bansu/job"
)

// ccdFetcher resolves a chemical-component code to its mmCIF bytes. It is a
// field on Acedrg (rather than a free function call) so tests can stub out
// the network.
type ccdFetcher func(ctx context.Context, code string) ([]byte, error)

const (
	ccdMaxAttempts     = 5
	ccdRequestTimeout  = 10 * time.Second
	ccdBaseURLTemplate = "https://files.rcsb.org/ligands/download/%s.cif"
)

// httpCCDFetch resolves code to its reference mmCIF over HTTPS only, retrying
// up to ccdMaxAttempts times with a per-request timeout of ccdRequestTimeout.
// Exhausting the retry budget returns a *job.SetupError, which WriteInput
// passes on unchanged; on the queued path runner.CreateQueued reports it as
// FailureSetupError, on the immediate path runner.TryCreate returns it to
// the admission call.
func httpCCDFetch(ctx context.Context, code string) ([]byte, error) {
	url := fmt.Sprintf(ccdBaseURLTemplate, code)

	var lastErr error
	for attempt := 1; attempt <= ccdMaxAttempts; attempt++ {
		data, err := fetchOnce(ctx, url)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if attempt < ccdMaxAttempts {
			select {
			case <-time.After(time.Duration(attempt) * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, job.NewSetupError(fmt.Sprintf("failed to fetch CCD code %q after %d attempts", code, ccdMaxAttempts), lastErr)
}

func fetchOnce(ctx context.Context, url string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, ccdRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}

	return io.ReadAll(resp.Body)
}
