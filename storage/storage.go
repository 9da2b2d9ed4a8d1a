package storage

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/nijaru/reelflow/config"
	"github.com/nijaru/reelflow/errors"
	"github.com/nijaru/reelflow/models"
)

// AssetStore manages named media assets grouped in collections.
type AssetStore interface {
	List(ctx context.Context, collection string) ([]models.Asset, error)
	Upload(ctx context.Context, collection, name string, body io.Reader, size int64, contentType string) (*models.Asset, error)
	Remove(ctx context.Context, collection, name string) error
	Open(ctx context.Context, collection, name string) (io.ReadCloser, error)
}

// New builds the asset store selected by cfg.Backend.
func New(ctx context.Context, cfg config.AssetsConfig) (AssetStore, error) {
	switch cfg.Backend {
	case "s3":
		return NewSpacesStore(ctx, SpacesConfig{
			AccessKey:     cfg.AccessKey,
			SecretKey:     cfg.SecretKey,
			Region:        cfg.Region,
			Endpoint:      cfg.Endpoint,
			Bucket:        cfg.Bucket,
			PublicBaseURL: cfg.PublicBaseURL,
		})
	default:
		return NewLocalStore(cfg.LocalDir, cfg.PublicBaseURL)
	}
}

// ValidateName rejects names that could escape a collection.
func ValidateName(name string) error {
	const op = "storage.ValidateName"

	if name == "" || name != path.Base(name) || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return errors.InvalidInput(op, nil, "Invalid asset name")
	}
	return nil
}

func objectKey(collection, name string) string {
	return collection + "/" + name
}
