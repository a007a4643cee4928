package domain

import "errors"

var (
	// ErrRateLimited is returned when rate limit is exceeded
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrCatalogUnavailable is returned when the catalog source cannot be read
	ErrCatalogUnavailable = errors.New("catalog unavailable")

	// ErrCatalogAPIFailure is returned when the commerce API request fails
	ErrCatalogAPIFailure = errors.New("commerce API request failed")

	// ErrNormalizerFailure is returned when query normalization fails
	ErrNormalizerFailure = errors.New("query normalization failed")

	// ErrCacheUnavailable is returned when cache service is unavailable
	ErrCacheUnavailable = errors.New("cache service unavailable")
)
