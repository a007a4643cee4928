package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RezaGemCollection/rezagemcollection-product-search-api/config"
	"github.com/RezaGemCollection/rezagemcollection-product-search-api/internal/domain"
	"github.com/RezaGemCollection/rezagemcollection-product-search-api/internal/infrastructure/cache"
	"github.com/RezaGemCollection/rezagemcollection-product-search-api/internal/infrastructure/catalog"
	"github.com/RezaGemCollection/rezagemcollection-product-search-api/internal/usecase"
	"go.uber.org/zap"
)

// cacheBackend is a CacheRepository that owns resources.
type cacheBackend interface {
	domain.CacheRepository
	Close() error
}

// app holds the wired dependencies shared by all subcommands.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	cache   cacheBackend
	catalog domain.CatalogRepository
	search  *usecase.SearchService
	closers []func() error
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := buildLogger(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	if err := a.wire(context.Background()); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cacheRepo, err := buildCache(ctx, a.cfg.Cache, a.logger)
	if err != nil {
		return err
	}
	a.cache = cacheRepo
	a.closers = append(a.closers, cacheRepo.Close)

	source, closeSource, err := buildCatalog(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	a.catalog = source
	if closeSource != nil {
		a.closers = append(a.closers, closeSource)
	}

	normalizer := usecase.NewQueryPreprocessor(usecase.QueryPreprocessorConfig{
		Cache:              a.cache,
		CacheTTL:           a.cfg.Cache.TTL,
		EnableCorrection:   a.cfg.Matching.EnableCorrection,
		EnableDebugLogging: a.cfg.Matching.EnableDebugLogging,
		Logger:             a.logger.Named("normalizer"),
	})

	a.search = usecase.NewSearchService(a.cache, a.catalog, normalizer, usecase.SearchServiceConfig{
		SnapshotTTL: a.cfg.Catalog.SnapshotTTL,
		Match: usecase.MatchConfig{
			Thresholds: usecase.MatchThresholds{
				OverlapFraction:     a.cfg.Matching.OverlapFraction,
				MinOverlapWindow:    a.cfg.Matching.MinOverlapWindow,
				SimilarityThreshold: a.cfg.Matching.SimilarityThreshold,
			},
			DisplayLimit:       a.cfg.Matching.DisplayLimit,
			EnableDebugLogging: a.cfg.Matching.EnableDebugLogging,
			Logger:             a.logger.Named("matcher"),
		},
		Logger: a.logger.Named("search"),
	})
	return nil
}

// Close releases resources in reverse order and flushes the logger.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}

// syncCatalog copies the commerce API catalog into the catalog database.
func (a *app) syncCatalog(ctx context.Context) (int, error) {
	if a.cfg.Catalog.APIURL == "" {
		return 0, fmt.Errorf("%w: catalog.api_url is required for sync", domain.ErrInvalidRequest)
	}
	if a.cfg.Catalog.DBDSN == "" {
		return 0, fmt.Errorf("%w: catalog.db_dsn is required for sync", domain.ErrInvalidRequest)
	}

	client := newCatalogClient(a.cfg, a.logger)
	products, err := client.ListProducts(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch catalog: %w", err)
	}

	store, err := catalog.OpenStore(ctx, a.cfg.Catalog.DBDriver, a.cfg.Catalog.DBDSN, a.logger)
	if err != nil {
		return 0, err
	}
	defer store.Close()

	if err := store.SaveProducts(ctx, products); err != nil {
		return 0, err
	}

	// Serving instances pick the new catalog up on their next snapshot refresh
	if err := a.search.RefreshCatalog(ctx); err != nil {
		a.logger.Warn("failed to invalidate catalog snapshot", zap.Error(err))
	}
	return len(products), nil
}

func buildLogger(cfg config.ServerConfig) (*zap.Logger, error) {
	zapCfg := zap.NewDevelopmentConfig()
	if cfg.Environment == "production" {
		zapCfg = zap.NewProductionConfig()
	}
	if cfg.LogLevel != "" {
		level, err := zap.ParseAtomicLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		zapCfg.Level = level
	}
	return zapCfg.Build()
}

func buildCache(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) (cacheBackend, error) {
	switch cfg.Type {
	case "redis":
		redisCache, err := cache.NewRedisCache(ctx, cfg.RedisURL, "")
		if err != nil {
			return nil, err
		}
		logger.Info("using redis cache")
		return redisCache, nil
	default:
		logger.Info("using in-memory cache")
		return cache.NewMemoryCache(), nil
	}
}

func newCatalogClient(cfg *config.Config, logger *zap.Logger) *catalog.Client {
	client := catalog.NewClient(catalog.ClientConfig{
		BaseURL:           cfg.Catalog.APIURL,
		AccessToken:       cfg.Catalog.AccessToken,
		RequestsPerSecond: float64(cfg.RateLimit.API),
		Timeout:           30 * time.Second,
		Logger:            logger,
	})
	if cfg.Server.Environment == "development" {
		client.SetDebug(true)
	}
	return client
}

// buildCatalog returns the configured catalog source and an optional closer.
func buildCatalog(ctx context.Context, cfg *config.Config, logger *zap.Logger) (domain.CatalogRepository, func() error, error) {
	switch cfg.Catalog.Source {
	case "database":
		store, err := catalog.OpenStore(ctx, cfg.Catalog.DBDriver, cfg.Catalog.DBDSN, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case "file":
		return catalog.NewFileSource(cfg.Catalog.FilePath), nil, nil
	default:
		return newCatalogClient(cfg, logger), nil, nil
	}
}
