package storage

import (
	"context"
	"fmt"

	"github.com/rapidresolve/engine/internal/config"
)

// New builds the configured blob store backend.
func New(ctx context.Context, cfg config.StorageConfig) (BlobStore, error) {
	switch cfg.Backend {
	case "local":
		return NewLocalStore(cfg.LocalPath)
	case "s3":
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage backend %q (valid: local, s3)", cfg.Backend)
	}
}
