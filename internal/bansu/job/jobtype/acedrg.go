// Package jobtype holds the concrete Job strategies: Acedrg, the reference
// type, and the Servalcat/Chemdrasil types the original Rust source
// scaffolded but never finished (original_source/src/job/job_type/
// servalcat.rs, and the chemdrasil.rs entry in _INDEX.md), supplemented
// here as full strategies so the Job interface has more than one real
// implementation exercising it.
package jobtype

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
	"unicode"

	"github.com/hgonomeg/bansu/internal/bansu/job"
)

const (
	acedrgOutputFilename = "acedrg_output"
	acedrgTimeout        = 2 * time.Minute
)

// acedrgAllowedFlags is the fixed allow-list of CLI flags Acedrg accepts.
var acedrgAllowedFlags = map[string]bool{
	"-r": true, "-k": true, "-j": true, "-l": true,
	"-z": true, "-x": true, "-M": true, "-O": true,
}

// AcedrgSpec is the request body for a job_type=="acedrg" /run request.
type AcedrgSpec struct {
	Smiles                string   `json:"smiles,omitempty"`
	InputMMCIFBase64      string   `json:"input_mmcif_base64,omitempty"`
	ChemicalComponentCode string   `json:"chemical_component_code,omitempty"`
	CommandlineArgs       []string `json:"commandline_args"`
}

// Acedrg wraps a validated AcedrgSpec as a job.Job strategy.
type Acedrg struct {
	Spec AcedrgSpec

	// fetch is overridable in tests to avoid a real network call.
	fetch ccdFetcher
}

var _ job.Job = (*Acedrg)(nil)

// NewAcedrg constructs an Acedrg job type; Validate is pure and meant to be
// called before any filesystem work.
func NewAcedrg(spec AcedrgSpec) *Acedrg {
	return &Acedrg{Spec: spec, fetch: httpCCDFetch}
}

func (a *Acedrg) Name() string { return "Acedrg" }

func (a *Acedrg) Timeout() job.Timeout {
	return job.Timeout{Default: acedrgTimeout}
}

// Validate enforces that exactly one input mode is set and that the
// commandline flags are all allow-listed, with -r alphabetic and
// -k/-j/-l numeric.
func (a *Acedrg) Validate() error {
	set := 0
	if a.Spec.Smiles != "" {
		set++
	}
	if a.Spec.InputMMCIFBase64 != "" {
		set++
	}
	if a.Spec.ChemicalComponentCode != "" {
		set++
	}
	if set != 1 {
		return job.NewValidationError("exactly one of smiles, input_mmcif_base64, chemical_component_code must be set")
	}

	return validateAcedrgFlags(a.Spec.CommandlineArgs)
}

func validateAcedrgFlags(args []string) error {
	for i := 0; i < len(args); i++ {
		flag := args[i]
		if !acedrgAllowedFlags[flag] {
			return job.NewValidationError("flag %q is not in the allowed flag set", flag)
		}

		needsArg := flag == "-r" || flag == "-k" || flag == "-j" || flag == "-l"
		if !needsArg {
			continue
		}
		if i+1 >= len(args) {
			return job.NewValidationError("flag %q requires an argument", flag)
		}
		i++
		arg := args[i]
		switch flag {
		case "-r":
			if !isAlphabetic(arg) {
				return job.NewValidationError("flag -r requires an alphabetic argument, got %q", arg)
			}
		case "-k", "-j", "-l":
			if _, err := strconv.Atoi(arg); err != nil {
				return job.NewValidationError("flag %s requires a numeric argument, got %q", flag, arg)
			}
		}
	}
	return nil
}

func isAlphabetic(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// WriteInput materializes exactly one input file under workdir, matching
// the three input modes validated above. The chemical-component-code mode
// performs a capped-retry HTTPS fetch.
func (a *Acedrg) WriteInput(ctx context.Context, workdir string) (string, error) {
	switch {
	case a.Spec.Smiles != "":
		path := filepath.Join(workdir, "acedrg_smiles_input")
		if err := os.WriteFile(path, []byte(a.Spec.Smiles), 0o600); err != nil {
			return "", err
		}
		return path, nil

	case a.Spec.InputMMCIFBase64 != "":
		data, err := base64.StdEncoding.DecodeString(a.Spec.InputMMCIFBase64)
		if err != nil {
			return "", fmt.Errorf("decoding input_mmcif_base64: %w", err)
		}
		path := filepath.Join(workdir, "acedrg_mmcif_input.cif")
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return "", err
		}
		return path, nil

	case a.Spec.ChemicalComponentCode != "":
		data, err := a.fetch(ctx, a.Spec.ChemicalComponentCode)
		if err != nil {
			return "", err
		}
		path := filepath.Join(workdir, "acedrg_mmcif_input.cif")
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return "", err
		}
		return path, nil
	}

	// Validate() guarantees one of the above; unreachable in practice.
	return "", job.NewValidationError("no input mode set")
}

// Launch invokes acedrg with -i <input> <commandline_args...> -o <output>,
// matching original_source/src/job/job_runner.rs's argv construction.
func (a *Acedrg) Launch(ctx context.Context, handleConfig job.HandleConfig, workdir, inputPath string) (*job.Handle, error) {
	args := []string{"-i", inputPath}
	args = append(args, a.Spec.CommandlineArgs...)
	args = append(args, "-o", acedrgOutputFilename)

	return job.New(ctx, job.ProcessConfig{
		Executable: "acedrg",
		Args:       args,
		WorkingDir: workdir,
	}, handleConfig)
}

func (a *Acedrg) OutputPath(workdir string, kind job.OutputKind) (string, bool) {
	if kind != job.OutputCIF {
		return "", false
	}
	return filepath.Join(workdir, acedrgOutputFilename+".cif"), true
}
