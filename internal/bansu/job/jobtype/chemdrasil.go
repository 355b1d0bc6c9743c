package jobtype

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/hgonomeg/bansu/internal/bansu/job"
)

const chemdrasilTimeout = 90 * time.Second

// ChemdrasilSpec is the request body for a job_type=="chemdrasil" /run
// request. _INDEX.md lists a chemdrasil.rs revision alongside acedrg.rs and
// servalcat.rs under job_type/ that was never kept in full in the retrieved
// source; supplemented here as a single-input, single-output job type so
// the strategy point has a third, simplest-possible implementation.
type ChemdrasilSpec struct {
	Smiles          string   `json:"smiles"`
	CommandlineArgs []string `json:"commandline_args"`
}

// Chemdrasil is a minimal smiles-in, CIF-out job type.
type Chemdrasil struct {
	Spec ChemdrasilSpec
}

var _ job.Job = (*Chemdrasil)(nil)

func NewChemdrasil(spec ChemdrasilSpec) *Chemdrasil {
	return &Chemdrasil{Spec: spec}
}

func (c *Chemdrasil) Name() string { return "Chemdrasil" }

func (c *Chemdrasil) Timeout() job.Timeout {
	return job.Timeout{Default: chemdrasilTimeout}
}

func (c *Chemdrasil) Validate() error {
	if c.Spec.Smiles == "" {
		return job.NewValidationError("smiles must be set")
	}
	return nil
}

func (c *Chemdrasil) WriteInput(ctx context.Context, workdir string) (string, error) {
	path := filepath.Join(workdir, "chemdrasil_smiles_input")
	if err := os.WriteFile(path, []byte(c.Spec.Smiles), 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func (c *Chemdrasil) Launch(ctx context.Context, handleConfig job.HandleConfig, workdir, inputPath string) (*job.Handle, error) {
	args := []string{inputPath}
	args = append(args, c.Spec.CommandlineArgs...)

	return job.New(ctx, job.ProcessConfig{
		Executable: "chemdrasil",
		Args:       args,
		WorkingDir: workdir,
	}, handleConfig)
}

func (c *Chemdrasil) OutputPath(workdir string, kind job.OutputKind) (string, bool) {
	if kind != job.OutputCIF {
		return "", false
	}
	return filepath.Join(workdir, "chemdrasil_output.cif"), true
}
