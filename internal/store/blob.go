package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// BlobStore is a path-addressed byte sink for uploaded file payloads. The
// core only needs Save and Read; layout below the root directory is an
// implementation detail.
type BlobStore struct {
	root string
}

func NewBlobStore(root string) (*BlobStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &BlobStore{root: root}, nil
}

// Save writes data under a fresh uuid-derived path and returns that path.
func (b *BlobStore) Save(data []byte) (string, error) {
	name := uuid.New().String()
	path := filepath.Join(b.root, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save blob: %w", err)
	}
	return path, nil
}

func (b *BlobStore) Read(path string) ([]byte, error) {
	// Refuse paths that escape the blob root.
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	rootAbs, err := filepath.Abs(b.root)
	if err != nil {
		return nil, err
	}
	rel, err := filepath.Rel(rootAbs, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("path %q is outside the blob store", path)
	}
	data, err := os.ReadFile(abs)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return data, err
}
