package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/RezaGemCollection/rezagemcollection-product-search-api/internal/domain"
	"github.com/cespare/xxhash/v2"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Compiled regex patterns for query preprocessing
var (
	// Anything that is not a letter, digit or whitespace
	queryPunctuationPattern = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

	// Multiple spaces cleanup
	multiSpacePattern = regexp.MustCompile(`\s+`)
)

const (
	queryCacheKeyPrefix     = "query:"
	defaultQueryCacheTTL    = 24 * time.Hour
	maxCorrectionDistance   = 2    // fuzzysearch rank distance accepted as a completion
	minCorrectionSimilarity = 0.75 // edit-distance similarity accepted as a typo fix
	minCorrectableTokenLen  = 4
	maxQueryLength          = 200
)

// queryNoiseWords are conversational filler that never identifies a product
var queryNoiseWords = map[string]bool{
	// Requests
	"show": true, "find": true, "search": true, "looking": true, "look": true,
	"want": true, "need": true, "get": true, "give": true, "tell": true,
	"please": true, "can": true, "could": true, "would": true, "like": true,
	// Pronouns and articles
	"the": true, "you": true, "your": true, "yours": true, "for": true,
	"and": true, "with": true, "some": true, "any": true, "all": true,
	"this": true, "that": true, "these": true, "those": true, "what": true,
	"which": true, "have": true, "has": true, "are": true, "there": true,
	"about": true, "from": true, "got": true, "does": true, "did": true,
	// Generic catalog words
	"products": true, "product": true, "items": true, "item": true,
	"available": true, "stock": true, "sell": true, "sale": true,
}

// QueryPreprocessorConfig holds configuration for the query preprocessor
type QueryPreprocessorConfig struct {
	Cache              domain.CacheRepository
	CacheTTL           time.Duration
	EnableCorrection   bool
	EnableDebugLogging bool
	Logger             *zap.Logger
}

// QueryPreprocessor cleans raw user text into search tokens and optionally
// corrects typos against the catalog vocabulary.
type QueryPreprocessor struct {
	cache              domain.CacheRepository
	cacheTTL           time.Duration
	enableCorrection   bool
	enableDebugLogging bool
	logger             *zap.Logger
	folder             transform.Transformer
}

// NewQueryPreprocessor creates a new query preprocessor
func NewQueryPreprocessor(config QueryPreprocessorConfig) *QueryPreprocessor {
	ttl := config.CacheTTL
	if ttl <= 0 {
		ttl = defaultQueryCacheTTL
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &QueryPreprocessor{
		cache:              config.Cache,
		cacheTTL:           ttl,
		enableCorrection:   config.EnableCorrection,
		enableDebugLogging: config.EnableDebugLogging,
		logger:             logger,
		folder:             transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
	}
}

// Normalize turns raw text into lowercase search tokens longer than two characters.
// Corrections are cached under "query:<vocabulary hash>:<tokens>", so a catalog
// change never serves corrections made against the old vocabulary.
func (p *QueryPreprocessor) Normalize(ctx context.Context, raw string, vocabulary []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNormalizerFailure, err)
	}

	cleaned := p.clean(raw)
	tokens := removeNoiseWords(Tokenize(cleaned))
	if len(tokens) == 0 || !p.enableCorrection || len(vocabulary) == 0 {
		return tokens, nil
	}

	cacheKey := queryCacheKey(tokens, vocabulary)
	if cached, ok := p.getFromCache(ctx, cacheKey); ok {
		return cached, nil
	}

	corrected := p.correct(tokens, vocabulary)

	if p.enableDebugLogging {
		p.logger.Debug("query normalized",
			zap.String("raw", raw),
			zap.Strings("tokens", tokens),
			zap.Strings("corrected", corrected))
	}

	p.setInCache(ctx, cacheKey, corrected)
	return corrected, nil
}

// clean folds accents, lowercases, strips punctuation and bounds the length.
func (p *QueryPreprocessor) clean(raw string) string {
	folded, _, err := transform.String(p.folder, raw)
	if err != nil {
		folded = raw
	}
	cleaned := strings.ToLower(folded)
	cleaned = queryPunctuationPattern.ReplaceAllString(cleaned, " ")
	cleaned = multiSpacePattern.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)

	if len(cleaned) > maxQueryLength {
		cleaned = cleaned[:maxQueryLength]
		if lastSpace := strings.LastIndex(cleaned, " "); lastSpace > maxQueryLength/2 {
			cleaned = cleaned[:lastSpace]
		}
		cleaned = strings.ToValidUTF8(cleaned, "")
	}
	return cleaned
}

// correct replaces unknown tokens with the closest vocabulary word, if one is close enough.
func (p *QueryPreprocessor) correct(tokens, vocabulary []string) []string {
	known := make(map[string]bool, len(vocabulary))
	for _, w := range vocabulary {
		known[w] = true
	}

	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if known[token] || utf8.RuneCountInString(token) < minCorrectableTokenLen {
			out = append(out, token)
			continue
		}
		out = append(out, closestWord(token, vocabulary))
	}
	return out
}

// closestWord prefers a short subsequence completion ("sapire" -> "sapphire"),
// then an edit-distance neighbour ("amethist" -> "amethyst"), else the token itself.
func closestWord(token string, vocabulary []string) string {
	ranks := fuzzy.RankFindNormalizedFold(token, vocabulary)
	if len(ranks) > 0 {
		sort.Sort(ranks)
		if ranks[0].Distance <= maxCorrectionDistance {
			return ranks[0].Target
		}
	}

	best := token
	bestScore := minCorrectionSimilarity
	tokenLen := utf8.RuneCountInString(token)
	for _, word := range vocabulary {
		diff := utf8.RuneCountInString(word) - tokenLen
		if diff > maxCorrectionDistance || diff < -maxCorrectionDistance {
			continue
		}
		if score := Similarity(token, word); score > bestScore {
			best, bestScore = word, score
		}
	}
	return best
}

// queryCacheKey scopes a corrected query to the vocabulary it was corrected against.
func queryCacheKey(tokens, vocabulary []string) string {
	digest := xxhash.New()
	for _, word := range vocabulary {
		_, _ = digest.WriteString(word)
		_, _ = digest.Write([]byte{0})
	}
	return fmt.Sprintf("%s%016x:%s", queryCacheKeyPrefix, digest.Sum64(), strings.Join(tokens, " "))
}

func (p *QueryPreprocessor) getFromCache(ctx context.Context, key string) ([]string, bool) {
	if p.cache == nil {
		return nil, false
	}
	data, err := p.cache.Get(ctx, key)
	if err != nil {
		return nil, false
	}
	var tokens []string
	if err := json.Unmarshal(data, &tokens); err != nil {
		p.logger.Warn("discarding unreadable cached query", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return tokens, true
}

func (p *QueryPreprocessor) setInCache(ctx context.Context, key string, tokens []string) {
	if p.cache == nil {
		return
	}
	data, err := json.Marshal(tokens)
	if err != nil {
		return
	}
	if err := p.cache.Set(ctx, key, data, p.cacheTTL); err != nil {
		p.logger.Warn("failed to cache corrected query", zap.String("key", key), zap.Error(err))
	}
}

// Tokenize lowercases text, splits on whitespace and drops tokens shorter than
// MinTokenLength. It is also the fallback when normalization fails.
func Tokenize(text string) []string {
	return SearchTokens(strings.Fields(strings.ToLower(text)))
}

// removeNoiseWords drops conversational filler, keeping the order of the rest.
func removeNoiseWords(tokens []string) []string {
	kept := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !queryNoiseWords[t] {
			kept = append(kept, t)
		}
	}
	return kept
}

// BuildVocabulary collects the distinct haystack words longer than three characters.
func BuildVocabulary(products []domain.Product) []string {
	seen := make(map[string]bool)
	var words []string
	for _, product := range products {
		for _, word := range strings.Fields(buildHaystack(product)) {
			word = strings.Trim(word, ",.!?;:()\"'")
			if utf8.RuneCountInString(word) <= defaultMinHaystackWordLen || seen[word] {
				continue
			}
			seen[word] = true
			words = append(words, word)
		}
	}
	sort.Strings(words)
	return words
}
