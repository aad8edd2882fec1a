// Package storage persists uploaded documents and rendered reports.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store is the durable object storage the pipeline uploads documents and
// reports to. Paths returned are relative storage keys, not local paths.
type Store interface {
	Upload(ctx context.Context, r io.Reader, folder, filename string) (string, error)
}

// FileStore implements Store on a local directory tree. Uploaded objects get
// a uuid prefix so concurrent uploads of identically-named attachments never
// collide.
type FileStore struct {
	root string
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{root: dir}
}

// Upload writes the object under root/folder and returns its storage path.
func (s *FileStore) Upload(ctx context.Context, r io.Reader, folder, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Join(s.root, folder)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create storage folder: %w", err)
	}

	name := uuid.New().String() + "_" + sanitizeFilename(filename)
	full := filepath.Join(dir, name)

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", fmt.Errorf("failed to create object: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(full)
		return "", fmt.Errorf("failed to write object: %w", err)
	}

	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close object: %w", err)
	}

	return filepath.ToSlash(filepath.Join(folder, name)), nil
}

// sanitizeFilename strips path separators and control characters out of a
// client-supplied filename.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return "attachment"
	}
	return name
}
