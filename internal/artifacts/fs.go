package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"conveyor/internal/common/errors"
)

// FSStore stores artifacts on the local filesystem under
// {base}/{repository}/{version}/{filename}.
type FSStore struct {
	base string
	mu   sync.Mutex
}

// NewFSStore creates a filesystem-backed store rooted at base.
func NewFSStore(base string) (*FSStore, error) {
	if base == "" {
		return nil, errors.ConfigError("artifact store base directory is required")
	}
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	return &FSStore{base: base}, nil
}

// Upload writes the artifact. An existing artifact is a conflict unless
// overwrite is set; writes go through a temp file and rename so a
// concurrent download never sees a partial artifact.
func (s *FSStore) Upload(ctx context.Context, repository, version, filename string, data []byte, overwrite bool) error {
	path, err := s.path(repository, version, filename)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return errors.ConflictError(fmt.Sprintf("artifact %s/%s/%s", repository, version, filename))
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("finalize artifact: %w", err)
	}

	return nil
}

// Download reads the artifact bytes.
func (s *FSStore) Download(ctx context.Context, repository, version, filename string) ([]byte, error) {
	path, err := s.path(repository, version, filename)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundError(fmt.Sprintf("artifact %s/%s/%s", repository, version, filename))
		}
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return data, nil
}

func (s *FSStore) path(repository, version, filename string) (string, error) {
	for _, part := range []string{repository, version, filename} {
		if part == "" || strings.Contains(part, "/") || strings.Contains(part, "..") {
			return "", errors.ValidationError(fmt.Sprintf("invalid artifact coordinate %q", part))
		}
	}
	return filepath.Join(s.base, repository, version, filename), nil
}
