package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"catalog-platform/seeder/internal/bootstrap"
	"catalog-platform/seeder/internal/catalog"
)

// bootstrapService is the subset of *bootstrap.Bootstrapper used by the HTTP
// handlers.
type bootstrapService interface {
	RunBootstrap(ctx context.Context) (*bootstrap.Result, error)
	RunDeepHealth(ctx context.Context) map[string]bootstrap.ProbeResult
	IsReady() bool
	IsBootstrapInProgress() bool
	LastResult() *bootstrap.Result
}

// catalogReader is satisfied by *clients.PostgresClient.
type catalogReader interface {
	ListCategories(ctx context.Context) ([]catalog.Category, error)
	ListProducts(ctx context.Context) ([]catalog.Product, error)
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Status string `json:"status" example:"error"`
	Error  string `json:"error" example:"circuit open"`
}

// Handler holds the dependencies shared across all HTTP handlers.
type Handler struct {
	bootstrapper     bootstrapService
	catalog          catalogReader
	bootstrapTimeout time.Duration
}

// StartBootstrap handles POST /api/v1/bootstrap.
//
//	@Summary		Start a bootstrap run
//	@Description	Ensures the catalog tables and seeds them in the background.
//	@Tags			bootstrap
//	@Produce		json
//	@Success		202	{object}	map[string]string
//	@Failure		409	{object}	map[string]string
//	@Router			/api/v1/bootstrap [post]
func (h *Handler) StartBootstrap(c *gin.Context) {
	if h.bootstrapper.IsBootstrapInProgress() {
		c.JSON(http.StatusConflict, gin.H{"status": bootstrap.StatusInProgress})
		return
	}
	go h.runBackground(context.WithoutCancel(c.Request.Context()))
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// runBackground detaches from the request's cancellation but keeps its values,
// so the bootstrap span joins the request trace.
func (h *Handler) runBackground(ctx context.Context) {
	if h.bootstrapTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.bootstrapTimeout)
		defer cancel()
	}
	if _, err := h.bootstrapper.RunBootstrap(ctx); err != nil && !errors.Is(err, bootstrap.ErrBootstrapInProgress) {
		slog.ErrorContext(ctx, "background bootstrap failed", "error", err)
	}
}

// BootstrapStatus handles GET /api/v1/bootstrap.
//
//	@Summary	Last bootstrap result
//	@Tags		bootstrap
//	@Produce	json
//	@Success	200	{object}	bootstrap.Result
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/v1/bootstrap [get]
func (h *Handler) BootstrapStatus(c *gin.Context) {
	result := h.bootstrapper.LastResult()
	if result == nil {
		status := "not-run"
		if h.bootstrapper.IsBootstrapInProgress() {
			status = bootstrap.StatusInProgress
		}
		c.JSON(http.StatusNotFound, ErrorResponse{Status: status, Error: "no bootstrap has completed yet"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListCategories handles GET /api/v1/categories.
//
//	@Summary	List categories
//	@Tags		catalog
//	@Produce	json
//	@Success	200	{array}		catalog.Category
//	@Failure	503	{object}	ErrorResponse
//	@Router		/api/v1/categories [get]
func (h *Handler) ListCategories(c *gin.Context) {
	categories, err := h.catalog.ListCategories(c.Request.Context())
	if err != nil {
		h.unavailable(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

// ListProducts handles GET /api/v1/products.
//
//	@Summary	List products
//	@Tags		catalog
//	@Produce	json
//	@Success	200	{array}		catalog.Product
//	@Failure	503	{object}	ErrorResponse
//	@Router		/api/v1/products [get]
func (h *Handler) ListProducts(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context())
	if err != nil {
		h.unavailable(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handler) unavailable(c *gin.Context, err error) {
	slog.WarnContext(c.Request.Context(), "catalog read failed", "path", c.Request.URL.Path, "error", err)
	c.JSON(http.StatusServiceUnavailable, ErrorResponse{Status: bootstrap.StatusError, Error: err.Error()})
}

// Health handles GET /health.
// It always returns 200; this is the liveness probe.
//
//	@Summary	Liveness probe
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	map[string]string
//	@Router		/health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"mode":   "shallow",
	})
}

// DeepHealth handles GET /health/deep.
// It returns 200 only when every configured dependency probe is OK.
//
//	@Summary	Dependency health
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	map[string]any
//	@Failure	503	{object}	map[string]any
//	@Router		/health/deep [get]
func (h *Handler) DeepHealth(c *gin.Context) {
	probes := h.bootstrapper.RunDeepHealth(c.Request.Context())

	allOK := true
	for _, p := range probes {
		if !p.OK {
			allOK = false
			break
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !allOK {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":       status,
		"dependencies": probes,
	})
}

// Ready handles GET /ready.
// It returns 200 only after a successful bootstrap; 503 otherwise.
//
//	@Summary	Readiness probe
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	map[string]bool
//	@Failure	503	{object}	map[string]bool
//	@Router		/ready [get]
func (h *Handler) Ready(c *gin.Context) {
	if h.bootstrapper.IsReady() {
		c.JSON(http.StatusOK, gin.H{"ready": true})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
}
