package ledger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DefaultFileSubdir is where FileStore keeps markers below its root
const DefaultFileSubdir = "purchasing/transactions"

// FileStore writes one empty marker file per transaction under a durable root.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at root. The marker directory is created lazily.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, ErrNoRoot
	}
	return &FileStore{dir: filepath.Join(root, filepath.FromSlash(DefaultFileSubdir))}, nil
}

// Dir returns the directory holding the markers
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(filepath.Join(s.dir, key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat marker %s: %w", key, err)
}

func (s *FileStore) Put(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(s.dir, key), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("write marker %s: %w", key, err)
	}
	return f.Close()
}

func (s *FileStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("remove markers: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
