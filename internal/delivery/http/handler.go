package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/RezaGemCollection/rezagemcollection-product-search-api/internal/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	serviceName    = "gemsearch-backend"
	serviceVersion = "1.0.0"
	maxQueryChars  = 500
	fallbackReply  = "Sorry, I couldn't search our products just now. Please try again in a moment."
)

// ProductSearcher is the search usecase the handlers depend on
type ProductSearcher interface {
	Search(ctx context.Context, raw string) (*domain.SearchResult, error)
	RefreshCatalog(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	search ProductSearcher
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler. A nil searcher makes the search
// endpoints answer 501.
func NewHandler(search ProductSearcher, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{search: search, logger: logger}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": serviceName,
		"version": serviceVersion,
	})
}

// Webhook answers a conversational fulfillment request.
// Any query that reaches the search service gets a 200 with reply text, even
// when the catalog is down; the failure is only logged.
func (h *Handler) Webhook(c *gin.Context) {
	if !h.configured(c) {
		return
	}

	var req domain.WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request body",
			"details": err.Error(),
		})
		return
	}

	text := req.Text()
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "query text is required",
		})
		return
	}

	result, err := h.search.Search(c.Request.Context(), truncateQuery(text))
	if err != nil {
		h.logger.Error("webhook search failed",
			zap.String("session", req.Session),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Error(err))
		_ = c.Error(err)
	}

	reply := fallbackReply
	if result != nil && result.Text != "" {
		reply = result.Text
	}
	c.JSON(http.StatusOK, domain.NewWebhookResponse(reply))
}

// SearchProducts handles GET /api/v1/products/search?q=
func (h *Handler) SearchProducts(c *gin.Context) {
	if !h.configured(c) {
		return
	}

	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "query parameter 'q' is required",
		})
		return
	}

	result, err := h.search.Search(c.Request.Context(), truncateQuery(query))
	if err != nil {
		h.handleError(c, err, result)
		return
	}

	c.JSON(http.StatusOK, result)
}

// RefreshCatalog invalidates the cached catalog snapshot
func (h *Handler) RefreshCatalog(c *gin.Context) {
	if !h.configured(c) {
		return
	}

	if err := h.search.RefreshCatalog(c.Request.Context()); err != nil {
		h.handleError(c, err, nil)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status": "catalog snapshot invalidated",
	})
}

func (h *Handler) configured(c *gin.Context) bool {
	if h.search == nil {
		c.JSON(http.StatusNotImplemented, gin.H{
			"error": "product search not configured",
		})
		return false
	}
	return true
}

// handleError maps domain errors to HTTP status codes
func (h *Handler) handleError(c *gin.Context, err error, result *domain.SearchResult) {
	h.logger.Error("request failed",
		zap.String("path", c.Request.URL.Path),
		zap.String("request_id", c.GetString(requestIDKey)),
		zap.Error(err))
	_ = c.Error(err)

	body := gin.H{}
	if result != nil && result.Text != "" {
		body["text"] = result.Text
	}

	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		body["error"] = "invalid request"
		c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, domain.ErrRateLimited):
		body["error"] = "rate limit exceeded"
		c.JSON(http.StatusTooManyRequests, body)
	case errors.Is(err, domain.ErrCatalogUnavailable), errors.Is(err, domain.ErrCatalogAPIFailure):
		body["error"] = "product catalog temporarily unavailable"
		c.JSON(http.StatusServiceUnavailable, body)
	case errors.Is(err, domain.ErrCacheUnavailable):
		body["error"] = "cache temporarily unavailable"
		c.JSON(http.StatusServiceUnavailable, body)
	case errors.Is(err, context.DeadlineExceeded):
		body["error"] = "request timed out"
		c.JSON(http.StatusGatewayTimeout, body)
	default:
		body["error"] = "internal server error"
		c.JSON(http.StatusInternalServerError, body)
	}
}

func truncateQuery(q string) string {
	runes := []rune(q)
	if len(runes) <= maxQueryChars {
		return q
	}
	return string(runes[:maxQueryChars])
}
