// Package fsutil provides filesystem helpers shared by the runner
// packages.
package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ReadFileScoped reads the file at path with access confined to the
// file's own directory, so a crafted path cannot traverse elsewhere
// through symlinks. Runner templates arrive as caller-supplied paths
// and must be read through this guard.
func ReadFileScoped(path string) ([]byte, error) {
	cleaned := filepath.Clean(path)
	base := filepath.Base(cleaned)
	if base == "" || base == "." || base == string(filepath.Separator) {
		return nil, fmt.Errorf("invalid file path: %q", path)
	}

	root, err := os.OpenRoot(filepath.Dir(cleaned))
	if err != nil {
		return nil, err
	}
	defer root.Close()

	file, err := root.Open(base)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}
