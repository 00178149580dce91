package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FSStore persists clips under a local directory, for single-host
// deployments and tests. The returned reference is the absolute file path.
type FSStore struct {
	dir string
}

// NewFSStore creates a file-backed clip store rooted at dir.
func NewFSStore(dir string) *FSStore {
	return &FSStore{dir: dir}
}

// Put writes the clip to disk.
func (s *FSStore) Put(ctx context.Context, key string, body io.Reader) (string, error) {
	path := filepath.Join(s.dir, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create clip directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create clip file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		return "", fmt.Errorf("failed to write clip: %w", err)
	}

	return path, nil
}
