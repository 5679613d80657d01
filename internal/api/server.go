package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "catalog-platform/seeder/docs" // register generated Swagger spec
)

// RouterConfig carries the settings the router needs beyond its services.
type RouterConfig struct {
	ServiceName string
	// BootstrapTimeout bounds runs started through POST /api/v1/bootstrap.
	// Zero means no deadline.
	BootstrapTimeout time.Duration
}

// Router wraps a configured Gin engine and exposes it as an http.Handler.
type Router struct {
	engine *gin.Engine
}

// NewRouter constructs a Router with the middleware chain and all routes
// registered. Middleware order:
//  1. Recovery, panic to 500
//  2. Tracing, otel span per request
//  3. RequestLogger
func NewRouter(b bootstrapService, reader catalogReader, cfg RouterConfig) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(Recovery(slog.Default()))
	engine.Use(Tracing(cfg.ServiceName))
	engine.Use(RequestLogger(slog.Default()))

	h := &Handler{
		bootstrapper:     b,
		catalog:          reader,
		bootstrapTimeout: cfg.BootstrapTimeout,
	}

	v1 := engine.Group("/api/v1")
	v1.POST("/bootstrap", h.StartBootstrap)
	v1.GET("/bootstrap", h.BootstrapStatus)
	v1.GET("/categories", h.ListCategories)
	v1.GET("/products", h.ListProducts)

	engine.GET("/health", h.Health)
	engine.GET("/health/deep", h.DeepHealth)
	engine.GET("/ready", h.Ready)

	engine.GET("/api-docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/api-docs/index.html")
	})
	engine.GET("/api-docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return &Router{engine: engine}
}

// Handler returns the underlying http.Handler for use with net/http servers.
func (r *Router) Handler() http.Handler {
	return r.engine
}
