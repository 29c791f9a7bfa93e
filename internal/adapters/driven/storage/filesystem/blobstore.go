// Package filesystem provides a BlobStore that keeps each blob as a file
// under a root directory. References map directly onto relative paths, so
// a scope's artifacts are browsable as subject/lecture/document/... on disk.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Ensure BlobStore implements the interface.
var _ driven.BlobStore = (*BlobStore)(nil)

// BlobStore stores blobs as files.
type BlobStore struct {
	root string
}

// NewBlobStore creates a store rooted at dir.
// If dir is empty, defaults to ~/.lectern/blobs.
func NewBlobStore(dir string) (*BlobStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, ".lectern", "blobs")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}
	return &BlobStore{root: dir}, nil
}

// Root returns the root directory.
func (s *BlobStore) Root() string {
	return s.root
}

// path resolves ref below the root. References that escape the root are rejected.
func (s *BlobStore) path(ref string) (string, error) {
	if ref == "" || strings.HasPrefix(ref, "/") {
		return "", fmt.Errorf("%w: invalid blob reference %q", domain.ErrInvalidInput, ref)
	}
	for _, part := range strings.Split(ref, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: invalid blob reference %q", domain.ErrInvalidInput, ref)
		}
	}
	return filepath.Join(s.root, filepath.FromSlash(ref)), nil
}

// Get returns the blob stored under ref.
func (s *BlobStore) Get(_ context.Context, ref string) ([]byte, error) {
	p, err := s.path(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: read blob %s: %v", domain.ErrTransientIO, ref, err)
	}
	return data, nil
}

// Put writes data to a temporary file and renames it into place.
func (s *BlobStore) Put(_ context.Context, ref string, data []byte) error {
	p, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
		return fmt.Errorf("%w: create blob directory: %v", domain.ErrTransientIO, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".blob-*")
	if err != nil {
		return fmt.Errorf("%w: create temp blob: %v", domain.ErrTransientIO, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write blob %s: %v", domain.ErrTransientIO, ref, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close blob %s: %v", domain.ErrTransientIO, ref, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("%w: rename blob %s: %v", domain.ErrTransientIO, ref, err)
	}
	return nil
}

// Delete removes a single blob.
func (s *BlobStore) Delete(_ context.Context, ref string) error {
	p, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: delete blob %s: %v", domain.ErrTransientIO, ref, err)
	}
	return nil
}

// DeletePrefix removes every blob whose reference starts with prefix.
// A prefix ending in "/" removes the whole directory.
func (s *BlobStore) DeletePrefix(_ context.Context, prefix string) error {
	if prefix == "" {
		return fmt.Errorf("%w: empty blob prefix", domain.ErrInvalidInput)
	}
	if strings.HasSuffix(prefix, "/") {
		p, err := s.path(strings.TrimSuffix(prefix, "/"))
		if err != nil {
			return err
		}
		if err := os.RemoveAll(p); err != nil {
			return fmt.Errorf("%w: delete prefix %s: %v", domain.ErrTransientIO, prefix, err)
		}
		return nil
	}

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		if strings.HasPrefix(filepath.ToSlash(rel), prefix) {
			return os.Remove(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: delete prefix %s: %v", domain.ErrTransientIO, prefix, err)
	}
	return nil
}

// Close is a no-op.
func (s *BlobStore) Close() error {
	return nil
}
