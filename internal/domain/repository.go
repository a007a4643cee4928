package domain

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching operations.
// Values are opaque bytes so memory and Redis backends behave the same.
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// CatalogRepository returns the full product catalog as a point-in-time snapshot.
type CatalogRepository interface {
	ListProducts(ctx context.Context) ([]Product, error)
}

// CatalogWriter persists a catalog snapshot (used by the sync command).
type CatalogWriter interface {
	SaveProducts(ctx context.Context, products []Product) error
}

// QueryNormalizer turns raw user text into search tokens.
// Implementations must lowercase tokens and drop those of two characters or fewer.
type QueryNormalizer interface {
	Normalize(ctx context.Context, raw string, vocabulary []string) ([]string, error)
}
