package runner

import (
	"log/slog"
	"os"
	"path/filepath"
)

// CleanupScratch removes the scratch directory containing a rendered
// artifact. Idempotent and best-effort: deletion failures are logged,
// never propagated, so termination paths always leave the registry in
// a sane state.
func CleanupScratch(logger *slog.Logger, artifactPath string) {
	if artifactPath == "" {
		return
	}
	if _, err := os.Stat(artifactPath); os.IsNotExist(err) {
		return
	}
	scratchDir := filepath.Dir(artifactPath)
	if err := os.RemoveAll(scratchDir); err != nil {
		logger.Warn("failed to remove scratch directory",
			"dir", scratchDir, "error", err)
		return
	}
	logger.Debug("removed scratch directory", "dir", scratchDir)
}
