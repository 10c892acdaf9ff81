package annotations

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileRepository keeps the annotation document in a single JSON file.
type FileRepository struct {
	path string
}

func NewFileRepository(path string) (*FileRepository, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("annotation file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure annotation dir: %w", err)
	}
	return &FileRepository{path: path}, nil
}

func (r *FileRepository) Path() string { return r.path }

// Load reads the document. A missing file is an empty store.
func (r *FileRepository) Load(_ context.Context) (Store, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Store{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read annotations: %w", err)
	}
	store, err := decodeDocument(data)
	if err != nil {
		return nil, &CorruptStoreError{Source: r.path, Err: err}
	}
	return store, nil
}

// Save writes the document to a temporary file next to the target and
// renames it into place.
func (r *FileRepository) Save(_ context.Context, store Store) error {
	data, err := encodeDocument(store)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), "."+filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp annotations: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp annotations: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp annotations: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp annotations: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp annotations: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("replace annotations: %w", err)
	}
	committed = true
	return nil
}

func (r *FileRepository) Mode() string { return "file" }

func (r *FileRepository) Close() error { return nil }
