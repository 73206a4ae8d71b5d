package storage

import (
	"context"
	"fmt"

	"notehub/internal/config"
)

// ImageHost stores an uploaded image and returns the URL it is served from.
type ImageHost interface {
	Upload(ctx context.Context, name string, contentType string, data []byte) (string, error)
}

// NewImageHost picks the driver named by storage.driver.
func NewImageHost(ctx context.Context, cfg config.StorageConfig) (ImageHost, error) {
	switch cfg.Driver {
	case config.StorageCloudinary:
		return NewCloudinary(cfg.Cloudinary)
	case config.StorageMinio, "":
		store, err := NewObjectStore(cfg)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
