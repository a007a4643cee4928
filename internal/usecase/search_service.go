package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/RezaGemCollection/rezagemcollection-product-search-api/internal/domain"
	"github.com/RezaGemCollection/rezagemcollection-product-search-api/internal/infrastructure/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Cache keys for catalog snapshots
const (
	catalogSnapshotKey     = "catalog:snapshot"
	catalogLastKnownKey    = "catalog:snapshot:last"
	defaultSnapshotTTL     = 5 * time.Minute
	defaultLastKnownTTL    = 24 * time.Hour
	defaultFetchTimeout    = time.Minute
	catalogUnavailableText = "I'm having trouble reaching our product catalog right now. " +
		"Please try again in a moment."
)

// SearchServiceConfig holds configuration for the search service
type SearchServiceConfig struct {
	SnapshotTTL  time.Duration
	LastKnownTTL time.Duration
	FetchTimeout time.Duration
	Match        MatchConfig
	Logger       *zap.Logger
}

// SearchService answers free-text product questions against the catalog.
type SearchService struct {
	cache        domain.CacheRepository
	catalog      domain.CatalogRepository
	normalizer   domain.QueryNormalizer
	matcher      *MatchingService
	formatter    *ResponseFormatter
	snapshotTTL  time.Duration
	lastKnownTTL time.Duration
	fetchTimeout time.Duration
	logger       *zap.Logger
	refresh      singleflight.Group
}

// NewSearchService creates a new search service with dependencies
func NewSearchService(
	cache domain.CacheRepository,
	catalog domain.CatalogRepository,
	normalizer domain.QueryNormalizer,
	config SearchServiceConfig,
) *SearchService {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Match.Logger == nil {
		config.Match.Logger = logger
	}
	matcher := NewMatchingService(config.Match)

	snapshotTTL := config.SnapshotTTL
	if snapshotTTL <= 0 {
		snapshotTTL = defaultSnapshotTTL
	}
	lastKnownTTL := config.LastKnownTTL
	if lastKnownTTL <= 0 {
		lastKnownTTL = defaultLastKnownTTL
	}
	fetchTimeout := config.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}

	return &SearchService{
		cache:        cache,
		catalog:      catalog,
		normalizer:   normalizer,
		matcher:      matcher,
		formatter:    NewResponseFormatter(matcher.DisplayLimit()),
		snapshotTTL:  snapshotTTL,
		lastKnownTTL: lastKnownTTL,
		fetchTimeout: fetchTimeout,
		logger:       logger,
	}
}

// BuildResponseText runs normalize -> fetch -> filter -> format for one message.
// The returned text is always suitable for a reply; the error is for logging.
func (s *SearchService) BuildResponseText(ctx context.Context, raw string) (string, error) {
	result, err := s.Search(ctx, raw)
	if result == nil {
		return catalogUnavailableText, err
	}
	return result.Text, err
}

// Search answers one query and returns the tokens, counts and formatted reply.
// Flow: load catalog snapshot -> normalize query -> filter -> format
func (s *SearchService) Search(ctx context.Context, raw string) (*domain.SearchResult, error) {
	products, err := s.loadCatalog(ctx)
	if err != nil {
		metrics.IncQuery(metrics.OutcomeError)
		return &domain.SearchResult{Text: catalogUnavailableText, Products: []domain.Product{}}, err
	}

	tokens := s.normalize(ctx, raw, products)

	start := time.Now()
	matched := s.matcher.FilterAndRank(products, tokens)
	metrics.ObserveMatchDuration(time.Since(start))
	metrics.ObserveMatchedProducts(len(matched))

	if len(matched) == 0 {
		metrics.IncQuery(metrics.OutcomeEmpty)
	} else {
		metrics.IncQuery(metrics.OutcomeMatched)
	}

	s.logger.Info("query answered",
		zap.Strings("tokens", tokens),
		zap.Int("catalog_size", len(products)),
		zap.Int("matched", len(matched)))

	limit := s.matcher.DisplayLimit()
	return &domain.SearchResult{
		Tokens:   tokens,
		Total:    len(matched),
		Products: matched[:min(len(matched), limit)],
		Text:     s.formatter.Format(matched, tokens),
	}, nil
}

// RefreshCatalog drops the cached snapshot so the next query reads the origin.
// The last-known snapshot is kept as a fallback.
func (s *SearchService) RefreshCatalog(ctx context.Context) error {
	if err := s.cache.Delete(ctx, catalogSnapshotKey); err != nil {
		return fmt.Errorf("invalidate catalog snapshot: %w", err)
	}
	s.logger.Info("catalog snapshot invalidated")
	return nil
}

// normalize runs the external normalizer and falls back to raw tokenization on failure.
func (s *SearchService) normalize(ctx context.Context, raw string, products []domain.Product) []string {
	if s.normalizer == nil {
		return Tokenize(raw)
	}

	tokens, err := s.normalizer.Normalize(ctx, raw, BuildVocabulary(products))
	if err != nil {
		s.logger.Warn("query normalization failed, using raw text", zap.Error(err))
		return Tokenize(raw)
	}
	return SearchTokens(tokens)
}

// loadCatalog returns a private copy of the current catalog snapshot.
// Each caller decodes its own slice, so concurrent refreshes never tear a scan.
func (s *SearchService) loadCatalog(ctx context.Context) ([]domain.Product, error) {
	data, err := s.cache.Get(ctx, catalogSnapshotKey)
	if err == nil {
		if products, decodeErr := decodeSnapshot(data); decodeErr == nil {
			metrics.IncCatalogFetch(metrics.SourceCache)
			return products, nil
		}
		s.logger.Warn("discarding unreadable catalog snapshot")
	} else if !errors.Is(err, domain.ErrCacheMiss) {
		s.logger.Warn("catalog cache read failed", zap.Error(err))
	}

	// The shared fetch outlives any single caller; each caller waits only as
	// long as its own context allows.
	ch := s.refresh.DoChan(catalogSnapshotKey, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()
		return s.fetchAndStore(fetchCtx)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		res = singleflight.Result{Err: ctx.Err()}
	}

	if res.Err != nil {
		metrics.IncCatalogFetch(metrics.SourceError)
		if stale, staleErr := s.lastKnown(context.WithoutCancel(ctx)); staleErr == nil {
			s.logger.Warn("serving last known catalog", zap.Error(res.Err), zap.Int("products", len(stale)))
			metrics.IncCatalogFetch(metrics.SourceStale)
			return stale, nil
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrCatalogUnavailable, res.Err)
	}
	if res.Shared {
		s.logger.Debug("catalog refresh shared between concurrent requests")
	}

	return decodeSnapshot(res.Val.([]byte))
}

// fetchAndStore reads the origin catalog and caches the encoded snapshot.
func (s *SearchService) fetchAndStore(ctx context.Context) ([]byte, error) {
	products, err := s.catalog.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []domain.Product{}
	}

	data, err := json.Marshal(products)
	if err != nil {
		return nil, fmt.Errorf("encode catalog snapshot: %w", err)
	}

	metrics.IncCatalogFetch(metrics.SourceOrigin)
	metrics.SetCatalogSize(len(products))
	s.logger.Info("catalog snapshot refreshed", zap.Int("products", len(products)))

	// Caching failures only cost a refetch on the next request
	if err := s.cache.Set(ctx, catalogSnapshotKey, data, s.snapshotTTL); err != nil {
		s.logger.Warn("failed to cache catalog snapshot", zap.Error(err))
	}
	if err := s.cache.Set(ctx, catalogLastKnownKey, data, s.lastKnownTTL); err != nil {
		s.logger.Warn("failed to cache last known catalog", zap.Error(err))
	}

	return data, nil
}

func (s *SearchService) lastKnown(ctx context.Context) ([]domain.Product, error) {
	data, err := s.cache.Get(ctx, catalogLastKnownKey)
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(data)
}

func decodeSnapshot(data []byte) ([]domain.Product, error) {
	var products []domain.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("decode catalog snapshot: %w", err)
	}
	return products, nil
}
