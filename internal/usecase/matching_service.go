package usecase

import (
	"strings"
	"unicode/utf8"

	"github.com/RezaGemCollection/rezagemcollection-product-search-api/internal/domain"
	"go.uber.org/zap"
)

// Matching thresholds shared by the match decision and the matched-token diagnostics.
const (
	// DefaultDisplayLimit caps both the unfiltered listing and the formatted reply.
	DefaultDisplayLimit = 20

	// MinTokenLength is the shortest token the matcher ever sees; shorter ones are dropped.
	MinTokenLength = 3

	defaultOverlapMinTokenLen    = 5   // overlap layer runs for tokens longer than this
	defaultOverlapFraction       = 0.7 // window = floor(fraction * token length)
	defaultMinOverlapWindow      = 5   // window is never shorter than this
	defaultSimilarityMinTokenLen = 4   // similarity layer runs for tokens longer than this
	defaultMinHaystackWordLen    = 3   // haystack words must be longer than this
	defaultSimilarityThreshold   = 0.6
)

// MatchThresholds holds the tunables of the layered matcher.
// Zero values are replaced by the defaults above.
type MatchThresholds struct {
	OverlapMinTokenLen    int
	OverlapFraction       float64
	MinOverlapWindow      int
	SimilarityMinTokenLen int
	MinHaystackWordLen    int
	SimilarityThreshold   float64
}

// MatchConfig holds configuration for the matching service
type MatchConfig struct {
	Thresholds         MatchThresholds
	DisplayLimit       int
	EnableDebugLogging bool
	Logger             *zap.Logger
}

// MatchingService decides which catalog products match a set of search tokens.
// It holds no mutable state and is safe for concurrent use.
type MatchingService struct {
	thresholds         MatchThresholds
	displayLimit       int
	enableDebugLogging bool
	logger             *zap.Logger
}

// NewMatchingService creates a new matching service with the given configuration
func NewMatchingService(config MatchConfig) *MatchingService {
	t := config.Thresholds
	if t.OverlapMinTokenLen <= 0 {
		t.OverlapMinTokenLen = defaultOverlapMinTokenLen
	}
	if t.OverlapFraction <= 0 || t.OverlapFraction > 1 {
		t.OverlapFraction = defaultOverlapFraction
	}
	if t.MinOverlapWindow <= 0 {
		t.MinOverlapWindow = defaultMinOverlapWindow
	}
	if t.SimilarityMinTokenLen <= 0 {
		t.SimilarityMinTokenLen = defaultSimilarityMinTokenLen
	}
	if t.MinHaystackWordLen <= 0 {
		t.MinHaystackWordLen = defaultMinHaystackWordLen
	}
	if t.SimilarityThreshold <= 0 || t.SimilarityThreshold > 1 {
		t.SimilarityThreshold = defaultSimilarityThreshold
	}

	limit := config.DisplayLimit
	if limit <= 0 {
		limit = DefaultDisplayLimit
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &MatchingService{
		thresholds:         t,
		displayLimit:       limit,
		enableDebugLogging: config.EnableDebugLogging,
		logger:             logger,
	}
}

// Thresholds returns the effective thresholds after defaulting.
func (s *MatchingService) Thresholds() MatchThresholds {
	return s.thresholds
}

// DisplayLimit returns the effective display cap.
func (s *MatchingService) DisplayLimit() int {
	return s.displayLimit
}

// FilterAndRank keeps the products that match at least one token, in catalog order.
// With no usable tokens it returns the first DisplayLimit products unfiltered.
// The filtered result is not capped; capping is a display concern.
func (s *MatchingService) FilterAndRank(products []domain.Product, tokens []string) []domain.Product {
	if products == nil {
		return []domain.Product{}
	}

	tokens = SearchTokens(tokens)
	if len(tokens) == 0 {
		n := min(len(products), s.displayLimit)
		out := make([]domain.Product, n)
		copy(out, products[:n])
		return out
	}

	out := make([]domain.Product, 0)
	for _, product := range products {
		result := s.Match(product, tokens)
		if !result.IsMatch {
			continue
		}
		if s.enableDebugLogging {
			s.logger.Debug("product matched",
				zap.String("product_id", product.ID),
				zap.String("title", product.Title),
				zap.Strings("matched_tokens", result.MatchedTokens))
		}
		out = append(out, product)
	}

	if s.enableDebugLogging {
		s.logger.Debug("filter complete",
			zap.Strings("tokens", tokens),
			zap.Int("catalog_size", len(products)),
			zap.Int("matched", len(out)))
	}

	return out
}

// Match reports whether any token matches the product and which tokens did.
// Tokens are expected to be lowercase search tokens (see SearchTokens).
func (s *MatchingService) Match(product domain.Product, tokens []string) domain.MatchResult {
	haystack := buildHaystack(product)
	var words []string

	result := domain.MatchResult{Product: product}
	for _, token := range tokens {
		if token == "" {
			continue
		}
		if words == nil {
			words = strings.Fields(haystack)
		}
		if s.tokenMatches(token, haystack, words) {
			result.IsMatch = true
			result.MatchedTokens = append(result.MatchedTokens, token)
		}
	}

	return result
}

// tokenMatches applies the exact, overlap and similarity layers in order.
func (s *MatchingService) tokenMatches(token, haystack string, words []string) bool {
	if strings.Contains(haystack, token) {
		return true
	}

	tokenLen := utf8.RuneCountInString(token)

	if tokenLen > s.thresholds.OverlapMinTokenLen && s.overlapMatches(token, tokenLen, haystack) {
		return true
	}

	if tokenLen > s.thresholds.SimilarityMinTokenLen {
		for _, word := range words {
			if utf8.RuneCountInString(word) <= s.thresholds.MinHaystackWordLen {
				continue
			}
			if Similarity(token, word) >= s.thresholds.SimilarityThreshold {
				return true
			}
		}
	}

	return false
}

// overlapMatches checks every contiguous window of the token against the haystack.
func (s *MatchingService) overlapMatches(token string, tokenLen int, haystack string) bool {
	window := max(s.thresholds.MinOverlapWindow, int(s.thresholds.OverlapFraction*float64(tokenLen)))
	if window > tokenLen {
		return false
	}

	runes := []rune(token)
	for i := 0; i+window <= len(runes); i++ {
		if strings.Contains(haystack, string(runes[i:i+window])) {
			return true
		}
	}
	return false
}

// buildHaystack concatenates the lowercased title and description.
func buildHaystack(product domain.Product) string {
	return strings.ToLower(product.Title) + " " + strings.ToLower(product.Description)
}

// SearchTokens drops empty tokens and tokens shorter than MinTokenLength.
func SearchTokens(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if utf8.RuneCountInString(t) < MinTokenLength {
			continue
		}
		out = append(out, t)
	}
	return out
}
