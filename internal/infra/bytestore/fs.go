package bytestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"seald/internal/domain"
)

// FileStore keeps rendered documents on disk under a single directory,
// addressed by file name. Refs are bare file names, never paths.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("upload dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Put(ctx context.Context, name string, data []byte) (string, error) {
	if err := validRef(name); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return name, nil
}

func (s *FileStore) Get(ctx context.Context, ref string) ([]byte, error) {
	if err := validRef(ref); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, ref))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", ref, err)
	}
	return data, nil
}

func (s *FileStore) Delete(ctx context.Context, ref string) error {
	if err := validRef(ref); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, ref)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("delete %s: %w", ref, err)
	}
	return nil
}

func validRef(ref string) error {
	if ref == "" || ref != filepath.Base(ref) || strings.ContainsAny(ref, "/\\") {
		return domain.ErrInvalidInput
	}
	return nil
}
