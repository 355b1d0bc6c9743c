package runner

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/hgonomeg/bansu/internal/bansu/applog"
)

// mkWorkDir creates a fresh scratch directory under the OS temp dir, named
// bansu-<uuid>, grounded on original_source/src/utils.rs's mkworkdir.
func mkWorkDir() (string, error) {
	path := filepath.Join(os.TempDir(), "bansu-"+uuid.NewString())
	if err := os.Mkdir(path, 0o700); err != nil {
		return "", err
	}
	return path, nil
}

// removeWorkDir does a best-effort recursive delete, logging failure at warn
// rather than propagating it.
func removeWorkDir(path string) {
	if path == "" {
		return
	}
	if err := os.RemoveAll(path); err != nil {
		applog.Warn("failed to remove workdir %s: %v", path, err)
	}
}
