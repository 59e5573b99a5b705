// Package storage keeps rendered certificate files on local disk.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when a stored file is missing.
var ErrNotFound = errors.New("storage: file not found")

// LocalDisk stores files under a single root directory.
type LocalDisk struct {
	root string
}

// NewLocalDisk creates the root directory if needed.
func NewLocalDisk(root string) (*LocalDisk, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create certificate dir: %w", err)
	}
	return &LocalDisk{root: root}, nil
}

// Save writes data as name and returns its path. The file appears atomically.
func (d *LocalDisk) Save(name string, data []byte) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid file name %q", name)
	}

	tmp, err := os.CreateTemp(d.root, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close file: %w", err)
	}

	dest := filepath.Join(d.root, name)
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("move file: %w", err)
	}
	return dest, nil
}

// Read returns the contents of a file previously returned by Save.
func (d *LocalDisk) Read(path string) ([]byte, error) {
	if err := d.contains(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// Remove deletes a file. Missing files are not an error.
func (d *LocalDisk) Remove(path string) error {
	if err := d.contains(path); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

func (d *LocalDisk) contains(path string) error {
	rel, err := filepath.Rel(d.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %q is outside the certificate dir", path)
	}
	return nil
}
