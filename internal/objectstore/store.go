// Package objectstore keeps uploaded files, such as payment proofs, and hands back their public URL.
package objectstore

import (
	"context"
	"fmt"
	"io"

	appconfig "ms-checkout/internal/config"
)

type Store interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}

// New picks the backend named by cfg.Driver.
func New(ctx context.Context, cfg appconfig.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", "disk":
		return NewDiskStore(cfg.LocalDir, cfg.PublicBaseURL)
	case "s3", "r2":
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
