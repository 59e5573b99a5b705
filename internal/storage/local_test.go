package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalDiskLifecycle(t *testing.T) {
	disk, err := NewLocalDisk(filepath.Join(t.TempDir(), "certs"))
	require.NoError(t, err)

	path, err := disk.Save("abc.pdf", []byte("%PDF-"))
	require.NoError(t, err)
	assert.Equal(t, "abc.pdf", filepath.Base(path))

	data, err := disk.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-", string(data))

	require.NoError(t, disk.Remove(path))
	require.NoError(t, disk.Remove(path))

	_, err = disk.Read(path)
	assert.ErrorIs(t, err, ErrNotFound)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Empty(t, entries, "no temp files left behind")
}

func TestLocalDiskRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	disk, err := NewLocalDisk(root)
	require.NoError(t, err)

	_, err = disk.Save("../evil.pdf", []byte("x"))
	assert.Error(t, err)

	_, err = disk.Read(filepath.Join(root, "..", "passwd"))
	assert.Error(t, err)
}
