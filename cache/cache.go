// Package cache keeps the resized-image cache alive between builds on
// machines that start from a clean checkout.
package cache

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"sitekit/config"
)

// Store persists a local cache directory somewhere that outlives the build
type Store interface {
	// Restore fills the local cache directory from the store.
	Restore(ctx context.Context) error
	// Save copies the local cache directory into the store.
	Save(ctx context.Context) error
}

// New returns the store selected by cfg.Cache.Backend for cfg.Images.CacheDir
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, error) {
	dir := cfg.Images.CacheDir
	switch cfg.Cache.Backend {
	case "", config.CacheNone:
		return None{}, nil
	case config.CacheRsync:
		return NewRsyncStore(dir, cfg.Cache.Rsync, logger), nil
	case config.CacheS3:
		return NewS3Store(ctx, dir, cfg.Cache.S3, logger)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// None keeps the cache on local disk only
type None struct{}

func (None) Restore(ctx context.Context) error { return nil }
func (None) Save(ctx context.Context) error    { return nil }
