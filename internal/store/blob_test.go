package store_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yhaddad/go-relay/internal/store"
)

func TestBlobSaveAndRead(t *testing.T) {
	blobs, err := store.NewBlobStore(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)

	data := []byte("file contents")
	path, err := blobs.Save(data)
	require.NoError(t, err)

	got, err := blobs.Read(path)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestBlobReadMissing(t *testing.T) {
	root := filepath.Join(t.TempDir(), "blobs")
	blobs, err := store.NewBlobStore(root)
	require.NoError(t, err)

	_, err = blobs.Read(filepath.Join(root, "nope"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// Paths pointing outside the blob root must be refused even when the file
// exists, so a forged database row cannot read arbitrary files.
func TestBlobReadRefusesEscape(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "blobs")
	blobs, err := store.NewBlobStore(root)
	require.NoError(t, err)

	outside := filepath.Join(dir, "secret")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o600))

	_, err = blobs.Read(outside)
	assert.Error(t, err)

	_, err = blobs.Read(filepath.Join(root, "..", "secret"))
	assert.Error(t, err)
}
