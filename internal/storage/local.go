package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/adverant/nexus/docingest/internal/errors"
)

// Local keeps documents under a media root directory
type Local struct {
	root string
}

// NewLocal creates the media root if needed
func NewLocal(root string) (*Local, error) {
	if root == "" {
		return nil, fmt.Errorf("media root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve media root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media root %s: %w", abs, err)
	}
	return &Local{root: abs}, nil
}

// Root returns the absolute media root
func (l *Local) Root() string {
	return l.root
}

// Resolve maps a canonical key to its path under the media root,
// rejecting keys that escape it
func (l *Local) Resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(key, "/")))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(l.root, clean), nil
}

// Copy writes srcPath to the canonical key. The destination appears atomically.
func (l *Local) Copy(ctx context.Context, srcPath, key string) error {
	dst, err := l.Resolve(key)
	if err != nil {
		return errors.NewStorageIOError("copy", key, err)
	}
	if err := ctx.Err(); err != nil {
		return errors.NewStorageIOError("copy", key, err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.NewStorageIOError("copy", key, err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return errors.NewStorageIOError("copy", srcPath, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".copy-*")
	if err != nil {
		return errors.NewStorageIOError("copy", key, err)
	}
	tmpName := tmp.Name()

	written, err := io.Copy(tmp, src)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmpName, dst)
	}
	if err != nil {
		os.Remove(tmpName)
		return errors.NewStorageIOError("copy", key, err)
	}

	log.Printf("[Storage] Copied %s to %s (%d bytes)", srcPath, key, written)
	return nil
}

// Upload returns the key itself: the worker shares the media root
func (l *Local) Upload(ctx context.Context, key string) (string, error) {
	path, err := l.Resolve(key)
	if err != nil {
		return "", errors.NewStorageIOError("upload", key, err)
	}
	if _, err := os.Stat(path); err != nil {
		return "", errors.NewStorageIOError("upload", key, err)
	}
	return key, nil
}

// Open opens a canonical key under the media root
func (l *Local) Open(ctx context.Context, namespace string) (io.ReadCloser, error) {
	path, err := l.Resolve(namespace)
	if err != nil {
		return nil, errors.NewStorageIOError("open", namespace, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewStorageIOError("open", namespace, err)
	}
	return f, nil
}
