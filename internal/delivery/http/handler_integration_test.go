package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/RezaGemCollection/rezagemcollection-product-search-api/config"
	"github.com/RezaGemCollection/rezagemcollection-product-search-api/internal/domain"
	"github.com/RezaGemCollection/rezagemcollection-product-search-api/internal/infrastructure/cache"
	"github.com/RezaGemCollection/rezagemcollection-product-search-api/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// TestMain sets up test environment before running tests
func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

const testAdminToken = "test-admin-token"

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:           "8080",
			Environment:    "test",
			AllowedOrigins: []string{"https://reza-gems.myshopify.com", "http://localhost:3000"},
			RequestTimeout: 5 * time.Second,
			AdminToken:     testAdminToken,
		},
		Catalog: config.CatalogConfig{
			Source: "api",
			APIURL: "https://shop.example.com",
		},
		Cache: config.CacheConfig{
			Type: "memory",
		},
	}
}

// setupTestRouter creates a test router without a search service
func setupTestRouter() *gin.Engine {
	handler := NewHandler(nil, nil)
	if handler == nil {
		panic("setupTestRouter: NewHandler returned nil")
	}

	router := SetupRouter(testConfig(), handler, nil)
	if router == nil {
		panic("setupTestRouter: SetupRouter returned nil *gin.Engine")
	}

	return router
}

// TestHealthCheckEndpoint tests the health check endpoint
func TestHealthCheckEndpoint(t *testing.T) {
	t.Run("returns healthy status", func(t *testing.T) {
		router := setupTestRouter()

		req, _ := http.NewRequest("GET", "/health", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
		}

		var response map[string]interface{}
		if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
			t.Fatalf("Failed to unmarshal response: %v", err)
		}

		if response["status"] != "healthy" {
			t.Errorf("status = %v, want healthy", response["status"])
		}
		if response["service"] != "gemsearch-backend" {
			t.Errorf("service = %v, want gemsearch-backend", response["service"])
		}
		version, ok := response["version"].(string)
		if !ok || strings.TrimSpace(version) == "" {
			t.Errorf("version = %v, want non-empty string", response["version"])
		}
	})

	t.Run("accepts GET requests only", func(t *testing.T) {
		router := setupTestRouter()

		for _, method := range []string{"POST", "PUT", "DELETE", "PATCH"} {
			req, _ := http.NewRequest(method, "/health", nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != http.StatusNotFound {
				t.Errorf("Method %s: Status = %d, want %d", method, w.Code, http.StatusNotFound)
			}
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	router := setupTestRouter()

	req, _ := http.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("expected default Go collectors in /metrics output")
	}
}

// TestUnconfiguredSearch tests the endpoints when no search service is wired
func TestUnconfiguredSearch(t *testing.T) {
	endpoints := []struct {
		method string
		path   string
		body   string
	}{
		{"POST", "/webhook", `{"queryResult":{"queryText":"ruby"}}`},
		{"GET", "/api/v1/products/search?q=ruby", ""},
		{"POST", "/api/v1/catalog/refresh", ""},
	}

	for _, endpoint := range endpoints {
		t.Run(endpoint.method+" "+endpoint.path, func(t *testing.T) {
			router := setupTestRouter()

			req, _ := http.NewRequest(endpoint.method, endpoint.path, strings.NewReader(endpoint.body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+testAdminToken)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != http.StatusNotImplemented {
				t.Errorf("Status = %d, want %d", w.Code, http.StatusNotImplemented)
			}

			var response map[string]interface{}
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Fatalf("Failed to unmarshal response: %v", err)
			}
			errorMsg, _ := response["error"].(string)
			if !strings.Contains(errorMsg, "not configured") {
				t.Errorf("error = %q, want to contain 'not configured'", errorMsg)
			}
		})
	}
}

// TestRouting tests methods and paths
func TestRouting(t *testing.T) {
	router := setupTestRouter()

	cases := []struct {
		method string
		path   string
	}{
		{"GET", "/webhook"},
		{"PUT", "/webhook"},
		{"POST", "/api/v1/products/search"},
		{"GET", "/api/v1/catalog/refresh"},
		{"GET", "/api/products/search"},
		{"GET", "/products/search"},
		{"POST", "/api/v1/products"},
	}

	for _, tc := range cases {
		req, _ := http.NewRequest(tc.method, tc.path, nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("%s %s: Status = %d, want %d", tc.method, tc.path, w.Code, http.StatusNotFound)
		}
	}
}

// TestCORSIntegration tests CORS headers work end-to-end with full router
func TestCORSIntegration(t *testing.T) {
	t.Run("health endpoint has CORS for the storefront", func(t *testing.T) {
		router := setupTestRouter()

		req, _ := http.NewRequest("GET", "/health", nil)
		req.Header.Set("Origin", "https://reza-gems.myshopify.com")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://reza-gems.myshopify.com" {
			t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "https://reza-gems.myshopify.com")
		}
		if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
			t.Errorf("Access-Control-Allow-Credentials = %q, want %q", got, "true")
		}
	})

	t.Run("webhook has CORS for localhost", func(t *testing.T) {
		router := setupTestRouter()

		req, _ := http.NewRequest("POST", "/webhook", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
			t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "http://localhost:3000")
		}
	})
}

// TestRecoveryMiddleware tests panic recovery
func TestRecoveryMiddleware(t *testing.T) {
	router := setupTestRouter()

	router.GET("/panic", func(c *gin.Context) {
		panic("test panic")
	})

	req, _ := http.NewRequest("GET", "/panic", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

// --- Handler tests with a stub searcher ---

type stubSearcher struct {
	result     *domain.SearchResult
	err        error
	refreshErr error
	queries    []string
	refreshed  int
}

func (s *stubSearcher) Search(ctx context.Context, raw string) (*domain.SearchResult, error) {
	s.queries = append(s.queries, raw)
	return s.result, s.err
}

func (s *stubSearcher) RefreshCatalog(ctx context.Context) error {
	s.refreshed++
	return s.refreshErr
}

func serve(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	return serveWithAuth(router, method, path, body, "")
}

func serveWithAuth(router *gin.Engine, method, path, body, token string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestWebhook(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		searcher   *stubSearcher
		wantStatus int
		wantQuery  string
		wantText   string
	}{
		{
			name:       "dialogflow request",
			body:       `{"session":"s1","queryResult":{"queryText":"ruby beads"}}`,
			searcher:   &stubSearcher{result: &domain.SearchResult{Text: "Found 1 product(s) for you:"}},
			wantStatus: http.StatusOK,
			wantQuery:  "ruby beads",
			wantText:   "Found 1 product(s) for you:",
		},
		{
			name:       "plain query",
			body:       `{"query":"amethyst"}`,
			searcher:   &stubSearcher{result: &domain.SearchResult{Text: "ok"}},
			wantStatus: http.StatusOK,
			wantQuery:  "amethyst",
			wantText:   "ok",
		},
		{
			name:       "parameters only",
			body:       `{"queryResult":{"parameters":{"stone":"jade","color":"green"}}}`,
			searcher:   &stubSearcher{result: &domain.SearchResult{Text: "ok"}},
			wantStatus: http.StatusOK,
			wantQuery:  "green jade",
			wantText:   "ok",
		},
		{
			name: "catalog failure still replies",
			body: `{"queryResult":{"queryText":"onyx"}}`,
			searcher: &stubSearcher{
				result: &domain.SearchResult{Text: "I'm having trouble reaching our product catalog right now."},
				err:    domain.ErrCatalogUnavailable,
			},
			wantStatus: http.StatusOK,
			wantQuery:  "onyx",
			wantText:   "I'm having trouble reaching our product catalog right now.",
		},
		{
			name:       "nil result falls back",
			body:       `{"queryResult":{"queryText":"onyx"}}`,
			searcher:   &stubSearcher{err: errors.New("boom")},
			wantStatus: http.StatusOK,
			wantQuery:  "onyx",
			wantText:   fallbackReply,
		},
		{
			name:       "empty query",
			body:       `{"queryResult":{"queryText":"   "}}`,
			searcher:   &stubSearcher{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid JSON",
			body:       `{invalid json}`,
			searcher:   &stubSearcher{},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := SetupRouter(testConfig(), NewHandler(tt.searcher, nil), nil)

			w := serve(router, "POST", "/webhook", tt.body)

			if w.Code != tt.wantStatus {
				t.Fatalf("Status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				if len(tt.searcher.queries) != 0 {
					t.Errorf("searcher called with %v, want no calls", tt.searcher.queries)
				}
				return
			}

			if len(tt.searcher.queries) != 1 || tt.searcher.queries[0] != tt.wantQuery {
				t.Errorf("queries = %v, want [%q]", tt.searcher.queries, tt.wantQuery)
			}

			var response domain.WebhookResponse
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Fatalf("Failed to unmarshal response: %v", err)
			}
			if response.FulfillmentText != tt.wantText {
				t.Errorf("fulfillmentText = %q, want %q", response.FulfillmentText, tt.wantText)
			}
			if len(response.FulfillmentMessages) != 1 || response.FulfillmentMessages[0].Text.Text[0] != tt.wantText {
				t.Errorf("fulfillmentMessages = %+v", response.FulfillmentMessages)
			}
		})
	}
}

func TestSearchProducts(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		searcher   *stubSearcher
		wantStatus int
	}{
		{
			name: "returns results",
			path: "/api/v1/products/search?q=ruby",
			searcher: &stubSearcher{result: &domain.SearchResult{
				Tokens:   []string{"ruby"},
				Total:    1,
				Products: []domain.Product{{ID: "1", Title: "Ruby Beads"}},
				Text:     "Found 1 product(s) for you:",
			}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing q",
			path:       "/api/v1/products/search",
			searcher:   &stubSearcher{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "catalog unavailable",
			path:       "/api/v1/products/search?q=ruby",
			searcher:   &stubSearcher{result: &domain.SearchResult{Text: "sorry"}, err: domain.ErrCatalogUnavailable},
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "timeout",
			path:       "/api/v1/products/search?q=ruby",
			searcher:   &stubSearcher{err: context.DeadlineExceeded},
			wantStatus: http.StatusGatewayTimeout,
		},
		{
			name:       "unexpected error",
			path:       "/api/v1/products/search?q=ruby",
			searcher:   &stubSearcher{err: errors.New("boom")},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := SetupRouter(testConfig(), NewHandler(tt.searcher, nil), nil)

			w := serve(router, "GET", tt.path, "")

			if w.Code != tt.wantStatus {
				t.Fatalf("Status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
				t.Errorf("Content-Type = %q", got)
			}

			var response map[string]interface{}
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Fatalf("Response should be valid JSON, got error: %v", err)
			}
			if tt.wantStatus == http.StatusOK {
				if response["total"] != float64(1) {
					t.Errorf("total = %v, want 1", response["total"])
				}
			} else if response["error"] == nil {
				t.Error("expected error field in response")
			}
		})
	}
}

func TestRefreshCatalog(t *testing.T) {
	t.Run("invalidates snapshot", func(t *testing.T) {
		searcher := &stubSearcher{}
		router := SetupRouter(testConfig(), NewHandler(searcher, nil), nil)

		w := serveWithAuth(router, "POST", "/api/v1/catalog/refresh", "", testAdminToken)

		if w.Code != http.StatusAccepted {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusAccepted)
		}
		if searcher.refreshed != 1 {
			t.Errorf("refreshed = %d, want 1", searcher.refreshed)
		}
	})

	t.Run("cache failure", func(t *testing.T) {
		searcher := &stubSearcher{refreshErr: domain.ErrCacheUnavailable}
		router := SetupRouter(testConfig(), NewHandler(searcher, nil), nil)

		w := serveWithAuth(router, "POST", "/api/v1/catalog/refresh", "", testAdminToken)

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusServiceUnavailable)
		}
	})

	t.Run("requires admin token", func(t *testing.T) {
		searcher := &stubSearcher{}
		router := SetupRouter(testConfig(), NewHandler(searcher, nil), nil)

		w := serve(router, "POST", "/api/v1/catalog/refresh", "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		w = serveWithAuth(router, "POST", "/api/v1/catalog/refresh", "", "wrong-token")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if searcher.refreshed != 0 {
			t.Errorf("refreshed = %d, want 0", searcher.refreshed)
		}
	})

	t.Run("disabled without configured token", func(t *testing.T) {
		searcher := &stubSearcher{}
		cfg := testConfig()
		cfg.Server.AdminToken = ""
		router := SetupRouter(cfg, NewHandler(searcher, nil), nil)

		w := serveWithAuth(router, "POST", "/api/v1/catalog/refresh", "", testAdminToken)
		if w.Code != http.StatusForbidden {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusForbidden)
		}
		if searcher.refreshed != 0 {
			t.Errorf("refreshed = %d, want 0", searcher.refreshed)
		}
	})
}

// --- End-to-end with the real search service ---

type staticCatalog struct {
	products []domain.Product
	err      error
}

func (s *staticCatalog) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.products, s.err
}

func TestWebhookWithSearchService(t *testing.T) {
	memoryCache := cache.NewMemoryCache()
	defer memoryCache.Close()

	catalog := &staticCatalog{products: []domain.Product{
		{
			ID:          "1",
			Title:       "Ruby Beads",
			Description: "Deep red gemstone beads",
			Variants: []domain.Variant{{
				Title:             "6mm",
				Price:             decimal.NewNullDecimal(decimal.RequireFromString("12.5")),
				InventoryQuantity: 5,
			}},
		},
		{ID: "2", Title: "Jade Pendant", Description: "Green jade"},
	}}

	service := usecase.NewSearchService(memoryCache, catalog, usecase.NewQueryPreprocessor(usecase.QueryPreprocessorConfig{
		Cache: memoryCache,
	}), usecase.SearchServiceConfig{})

	router := SetupRouter(testConfig(), NewHandler(service, nil), nil)

	w := serve(router, "POST", "/webhook", `{"queryResult":{"queryText":"Do you have ruby?"}}`)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	var response domain.WebhookResponse
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	want := "Found 1 product(s) for you:\n\n" +
		"💎 Ruby Beads\n" +
		"   • 6mm: $12.50 (In Stock - 5 left)\n\n" +
		"\nWould you like more details about any of these products? Just ask! 💎"
	if response.FulfillmentText != want {
		t.Errorf("fulfillmentText =\n%q\nwant\n%q", response.FulfillmentText, want)
	}
}
