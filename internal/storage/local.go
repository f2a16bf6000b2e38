// Package storage keeps uploaded integration avatars on the local disk.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ErrNotFound is returned for an unknown avatar id.
var ErrNotFound = errors.New("avatar not found")

// ErrTooLarge is returned when an upload exceeds the size limit.
var ErrTooLarge = errors.New("avatar too large")

// LocalStorage stores avatar images on the local filesystem, one file per
// avatar id.
type LocalStorage struct {
	basePath string
	maxBytes int64
}

func NewLocalStorage(basePath string, maxBytes int64) *LocalStorage {
	return &LocalStorage{basePath: basePath, maxBytes: maxBytes}
}

// Save writes reader under a fresh avatar id and returns the id. Uploads
// over the size limit are removed and reported as ErrTooLarge.
func (s *LocalStorage) Save(_ context.Context, reader io.Reader) (string, error) {
	if err := os.MkdirAll(s.basePath, 0o755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}

	id := uuid.NewString()
	path := s.path(id)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	src := reader
	if s.maxBytes > 0 {
		src = io.LimitReader(reader, s.maxBytes+1)
	}
	n, err := io.Copy(f, src)
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write file: %w", err)
	}
	if s.maxBytes > 0 && n > s.maxBytes {
		_ = os.Remove(path)
		return "", ErrTooLarge
	}
	return id, nil
}

func (s *LocalStorage) Open(_ context.Context, id string) (io.ReadCloser, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	f, err := os.Open(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// Delete removes an avatar. Missing files are not an error.
func (s *LocalStorage) Delete(_ context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return nil
	}
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

func (s *LocalStorage) path(id string) string {
	return filepath.Join(s.basePath, id+".png")
}
