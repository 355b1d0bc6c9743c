package jobtype

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hgonomeg/bansu/internal/bansu/job"
)

const servalcatTimeout = 3 * time.Minute

// ServalcatSpec is the request body for a job_type=="servalcat" /run request.
// original_source/src/job/job_type/servalcat.rs scaffolds this job type with
// every method left as todo!(); this is the supplemented, finished version.
type ServalcatSpec struct {
	InputMMCIFBase64 string   `json:"input_mmcif_base64,omitempty"`
	PDBCode          string   `json:"pdb_code,omitempty"`
	CommandlineArgs  []string `json:"commandline_args"`
}

// Servalcat refines a crystallographic structure; it accepts exactly one of
// an mmCIF payload or a PDB code to fetch, mirroring Acedrg's
// exactly-one-of input-mode shape, and produces an MTZ reflection file.
type Servalcat struct {
	Spec ServalcatSpec

	fetch ccdFetcher
}

var _ job.Job = (*Servalcat)(nil)

func NewServalcat(spec ServalcatSpec) *Servalcat {
	return &Servalcat{Spec: spec, fetch: httpCCDFetch}
}

func (s *Servalcat) Name() string { return "Servalcat" }

func (s *Servalcat) Timeout() job.Timeout {
	return job.Timeout{Default: servalcatTimeout}
}

func (s *Servalcat) Validate() error {
	set := 0
	if s.Spec.InputMMCIFBase64 != "" {
		set++
	}
	if s.Spec.PDBCode != "" {
		set++
	}
	if set != 1 {
		return job.NewValidationError("exactly one of input_mmcif_base64, pdb_code must be set")
	}
	return nil
}

func (s *Servalcat) WriteInput(ctx context.Context, workdir string) (string, error) {
	path := filepath.Join(workdir, "servalcat_mmcif_input.cif")

	if s.Spec.InputMMCIFBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(s.Spec.InputMMCIFBase64)
		if err != nil {
			return "", fmt.Errorf("decoding input_mmcif_base64: %w", err)
		}
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return "", err
		}
		return path, nil
	}

	data, err := s.fetch(ctx, s.Spec.PDBCode)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Servalcat) Launch(ctx context.Context, handleConfig job.HandleConfig, workdir, inputPath string) (*job.Handle, error) {
	args := []string{"--model", inputPath}
	args = append(args, s.Spec.CommandlineArgs...)
	args = append(args, "-o", "servalcat_output")

	return job.New(ctx, job.ProcessConfig{
		Executable: "servalcat",
		Args:       args,
		WorkingDir: workdir,
	}, handleConfig)
}

func (s *Servalcat) OutputPath(workdir string, kind job.OutputKind) (string, bool) {
	if kind != job.OutputMTZ {
		return "", false
	}
	return filepath.Join(workdir, "servalcat_output.mtz"), true
}
