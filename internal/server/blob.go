package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// BlobStore persists uploaded application logos. The production deploy
// points this at the shared object store; the filesystem implementation
// below covers single-node setups and tests.
type BlobStore interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
	Remove(ctx context.Context, publicURL string) error
}

type FSBlobStore struct {
	dir     string
	baseURL string
}

func NewFSBlobStore(dir, baseURL string) *FSBlobStore {
	return &FSBlobStore{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Save writes the blob under a fresh name, keeping only the original
// extension, and returns its public URL.
func (b *FSBlobStore) Save(_ context.Context, name string, r io.Reader) (string, error) {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return "", fmt.Errorf("could not create blob directory: %w", err)
	}

	filename := uuid.NewString() + strings.ToLower(path.Ext(name))

	f, err := os.Create(filepath.Join(b.dir, filename))
	if err != nil {
		return "", fmt.Errorf("could not create blob file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("could not write blob: %w", err)
	}

	return b.baseURL + "/" + filename, nil
}

// Remove deletes a previously saved blob. URLs outside this store's
// base (the default placeholder logo in particular) are ignored.
func (b *FSBlobStore) Remove(_ context.Context, publicURL string) error {
	if !strings.HasPrefix(publicURL, b.baseURL+"/") {
		return nil
	}

	filename := path.Base(publicURL)
	if err := os.Remove(filepath.Join(b.dir, filename)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not remove blob: %w", err)
	}

	return nil
}
