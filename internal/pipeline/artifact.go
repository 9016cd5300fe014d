package pipeline

import (
	"fmt"
	"os"
)

// withArtifact creates an empty transient file in dir and hands its path to
// fn. The file is removed when withArtifact returns, whatever fn did.
// Names are unique per call, so sequential runs never share a file.
func withArtifact(dir, pattern string, fn func(path string) error) (err error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return fmt.Errorf("pipeline: create artifact: %w", err)
	}
	path := f.Name()
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
			err = fmt.Errorf("pipeline: remove artifact: %w", rmErr)
		}
	}()

	if err := f.Close(); err != nil {
		return fmt.Errorf("pipeline: close artifact: %w", err)
	}
	return fn(path)
}
