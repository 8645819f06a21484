package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DiskStore writes files under a local directory that the HTTP server also serves.
type DiskStore struct {
	Root      string
	PublicURL string
}

func NewDiskStore(root, publicURL string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{Root: root, PublicURL: publicURL}, nil
}

func (d *DiskStore) Upload(ctx context.Context, key string, body io.Reader, _ int64, _ string) (string, error) {
	key = strings.TrimPrefix(filepath.ToSlash(filepath.Clean("/"+key)), "/")
	dst := filepath.Join(d.Root, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("create dir for %s: %w", key, err)
	}

	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", key, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, readerWithContext{ctx: ctx, r: body}); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("write %s: %w", key, err)
	}

	return fmt.Sprintf("%s/%s", strings.TrimSuffix(d.PublicURL, "/"), key), nil
}

// readerWithContext stops a copy once ctx is done.
type readerWithContext struct {
	ctx context.Context
	r   io.Reader
}

func (r readerWithContext) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
