package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/RezaGemCollection/rezagemcollection-product-search-api/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultPageSize     = 250
	defaultMaxPages     = 40
	defaultMaxAttempts  = 3
	defaultHTTPTimeout  = 30 * time.Second
	maxErrorBodyBytes   = 2048
	maxResponseBodySize = 32 << 20
	accessTokenHeader   = "X-Shopify-Access-Token"
)

// ClientConfig holds configuration for the commerce API client
type ClientConfig struct {
	BaseURL           string
	AccessToken       string
	RequestsPerSecond float64 // 0 means 2 req/s
	PageSize          int
	MaxPages          int
	Timeout           time.Duration
	Logger            *zap.Logger
}

// Client fetches the product catalog from the commerce API.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
	pageSize    int
	maxPages    int
	rateLimiter *rate.Limiter
	logger      *zap.Logger
	debug       bool
}

// NewClient creates a new commerce API client
func NewClient(config ClientConfig) *Client {
	rps := config.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	pageSize := config.PageSize
	if pageSize <= 0 || pageSize > defaultPageSize {
		pageSize = defaultPageSize
	}
	maxPages := config.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(config.BaseURL, "/"),
		accessToken: config.AccessToken,
		pageSize:    pageSize,
		maxPages:    maxPages,
		rateLimiter: rate.NewLimiter(rate.Limit(rps), 4),
		logger:      logger.Named("catalog_api"),
	}
}

// SetDebug enables per-request logging
func (c *Client) SetDebug(debug bool) {
	c.debug = debug
}

func (c *Client) debugLog(msg string, fields ...zap.Field) {
	if c.debug {
		c.logger.Info(msg, fields...)
	}
}

// ListProducts fetches every catalog page in order, following the
// rel="next" cursor of the Link header until there is none.
// Products repeated across pages are kept once, at their first position.
func (c *Client) ListProducts(ctx context.Context) ([]domain.Product, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(c.pageSize))
	reqURL := fmt.Sprintf("%s/products.json?%s", c.baseURL, params.Encode())

	var products []domain.Product
	seenIDs := make(map[string]bool)
	seenURLs := make(map[string]bool)

	for page := 1; page <= c.maxPages; page++ {
		seenURLs[reqURL] = true

		raw, next, err := c.fetchPage(ctx, reqURL, page)
		if err != nil {
			return nil, err
		}

		for _, product := range MapProducts(raw) {
			if product.ID != "" {
				if seenIDs[product.ID] {
					continue
				}
				seenIDs[product.ID] = true
			}
			products = append(products, product)
		}

		if next == "" || len(raw) == 0 {
			break
		}
		if seenURLs[next] {
			c.logger.Warn("catalog API repeated a page cursor, stopping", zap.String("next", next))
			break
		}
		if page == c.maxPages {
			c.logger.Warn("catalog page limit reached", zap.Int("max_pages", c.maxPages))
		}
		reqURL = next
	}

	c.logger.Info("catalog fetched", zap.Int("products", len(products)))
	return products, nil
}

// fetchPage GETs one page and returns its products and the next page URL, if any.
func (c *Client) fetchPage(ctx context.Context, reqURL string, page int) ([]RawProduct, string, error) {
	if _, err := url.ParseRequestURI(reqURL); err != nil {
		return nil, "", fmt.Errorf("%w: invalid catalog URL: %v", domain.ErrCatalogAPIFailure, err)
	}

	var lastErr error
	for attempt := 1; attempt <= defaultMaxAttempts; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, "", fmt.Errorf("rate limiter error: %w", err)
		}

		c.debugLog("fetching catalog page", zap.Int("page", page), zap.Int("attempt", attempt))

		resp, err := c.doRequest(ctx, reqURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", fmt.Errorf("%w: %v", domain.ErrCatalogAPIFailure, ctx.Err())
			}
			c.logger.Warn("catalog request failed", zap.Int("attempt", attempt), zap.Error(err))
			lastErr = err
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, "", fmt.Errorf("%w: %v", domain.ErrCatalogAPIFailure, err)
			}
			continue
		}

		body, readErr := readLimitedBody(resp.Body, maxResponseBodySize)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("%w: read body: %v", domain.ErrCatalogAPIFailure, readErr)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			snippet := string(body[:min(len(body), maxErrorBodyBytes)])
			c.logger.Warn("catalog API error",
				zap.Int("attempt", attempt),
				zap.Int("status", resp.StatusCode),
				zap.String("body", snippet))

			if resp.StatusCode == http.StatusTooManyRequests {
				lastErr = fmt.Errorf("%w: %w", domain.ErrCatalogAPIFailure, domain.ErrRateLimited)
			} else {
				lastErr = fmt.Errorf("%w: status %d", domain.ErrCatalogAPIFailure, resp.StatusCode)
			}
			if !isRetryable(resp.StatusCode) {
				return nil, "", lastErr
			}
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, "", fmt.Errorf("%w: %v", domain.ErrCatalogAPIFailure, err)
			}
			continue
		}

		raw, err := decodeProducts(body)
		if err != nil {
			return nil, "", fmt.Errorf("%w: failed to decode response: %v", domain.ErrCatalogAPIFailure, err)
		}
		return raw, nextPageURL(resp.Request.URL, resp.Header.Values("Link")), nil
	}

	c.logger.Error("all catalog retries failed", zap.Int("page", page))
	return nil, "", lastErr
}

// doRequest executes an HTTP GET request with proper headers and error handling
func (c *Client) doRequest(ctx context.Context, reqURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "GemSearch/1.0")
	if c.accessToken != "" {
		req.Header.Set(accessTokenHeader, c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCatalogAPIFailure, err)
	}
	return resp, nil
}

// nextPageURL returns the rel="next" target of the Link headers, resolved
// against the request URL, or "" when there is no next page.
func nextPageURL(base *url.URL, links []string) string {
	for _, header := range links {
		for _, link := range strings.Split(header, ",") {
			target, params, ok := strings.Cut(strings.TrimSpace(link), ";")
			if !ok {
				continue
			}
			target = strings.TrimSpace(target)
			if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
				continue
			}
			if !hasRelNext(params) {
				continue
			}
			ref, err := url.Parse(strings.Trim(target, "<>"))
			if err != nil {
				continue
			}
			if base != nil {
				ref = base.ResolveReference(ref)
			}
			return ref.String()
		}
	}
	return ""
}

func hasRelNext(params string) bool {
	for _, param := range strings.Split(params, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "rel") {
			continue
		}
		for _, rel := range strings.Fields(strings.Trim(strings.TrimSpace(value), `"`)) {
			if strings.EqualFold(rel, "next") {
				return true
			}
		}
	}
	return false
}

// decodeProducts reads a {"products": [...]} envelope, keeping numbers verbatim.
func decodeProducts(body []byte) ([]RawProduct, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var envelope productsEnvelope
	if err := dec.Decode(&envelope); err != nil {
		return nil, err
	}
	return envelope.Products, nil
}

// backoff waits before the next attempt; there is no wait after the last one.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	if attempt >= defaultMaxAttempts {
		return nil
	}
	return sleepContext(ctx, exponentialBackoff(attempt))
}

func isRetryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// exponentialBackoff returns 500ms, 1s, 2s, ... for attempts 1, 2, 3, ...
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(500*(1<<(attempt-1))) * time.Millisecond
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// readLimitedBody reads at most limit bytes from r.
func readLimitedBody(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return body, nil
}
