// Package fs stores blobs as files under a root directory.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/mamadbah2/shellsale/internal/blob"
)

// Store implements blob.Store on the local filesystem. Keys map to relative paths under
// root. Writes go through a temporary file and a rename so readers never see partial
// documents.
type Store struct {
	root string
}

// New returns a filesystem store rooted at root, creating it if needed.
func New(root string) (*Store, error) {
	if root == "" {
		root = "documents"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

func (s *Store) Driver() blob.Driver { return blob.DriverFilesystem }

// Root returns the directory blobs are written to.
func (s *Store) Root() string { return s.root }

func (s *Store) path(key string) (string, string, error) {
	clean, err := blob.CleanKey(key)
	if err != nil {
		return "", "", err
	}
	return clean, filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts blob.PutOptions) (blob.Info, error) {
	if err := ctx.Err(); err != nil {
		return blob.Info{}, err
	}
	clean, full, err := s.path(key)
	if err != nil {
		return blob.Info{}, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return blob.Info{}, fmt.Errorf("create blob dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return blob.Info{}, fmt.Errorf("create temp blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	size, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return blob.Info{}, fmt.Errorf("write blob %s: %w", clean, err)
	}
	if err := tmp.Close(); err != nil {
		return blob.Info{}, fmt.Errorf("close blob %s: %w", clean, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return blob.Info{}, fmt.Errorf("publish blob %s: %w", clean, err)
	}

	st, err := os.Stat(full)
	if err != nil {
		return blob.Info{}, err
	}
	contentType := opts.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(full))
	}
	return blob.Info{Key: clean, Size: size, ContentType: contentType, Metadata: opts.Metadata, LastModified: st.ModTime().UTC()}, nil
}

func (s *Store) Get(ctx context.Context, key string) (blob.Info, io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return blob.Info{}, nil, err
	}
	clean, full, err := s.path(key)
	if err != nil {
		return blob.Info{}, nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return blob.Info{}, nil, fmt.Errorf("%w: %s", blob.ErrNotFound, clean)
		}
		return blob.Info{}, nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return blob.Info{}, nil, err
	}
	info := blob.Info{
		Key:          clean,
		Size:         st.Size(),
		ContentType:  mime.TypeByExtension(filepath.Ext(full)),
		LastModified: st.ModTime().UTC(),
	}
	return info, f, nil
}
