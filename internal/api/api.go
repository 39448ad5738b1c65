// Package api is the read-only HTTP view over stored prices and derived metrics.
// The only non-GET route drops the read cache; nothing here writes price data.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	"MarketLedger/internal/analysis"
	"MarketLedger/internal/model"
)

const (
	DefaultTimeout      = 30 * time.Second
	DefaultCacheTTL     = 24 * time.Hour
	DefaultLookbackDays = 365
	ServiceVersion      = "1.0.0"
	ServiceName         = "marketledger-api"
	RequestIDContextKey = "request_id"
	RequestIDHeaderKey  = "X-Request-ID"
)

// MarketService is the read side the handlers depend on. *analysis.Service satisfies it.
type MarketService interface {
	Symbols(ctx context.Context) ([]string, error)
	Bars(ctx context.Context, symbol string, r model.DateRange) ([]model.PriceBar, error)
	Risk(ctx context.Context, symbols []string, r model.DateRange) (*analysis.RiskReport, error)
	Performance(ctx context.Context, symbols []string, r model.DateRange) (*analysis.PerformanceReport, error)
}

// APIHandler handles HTTP requests using Gin framework.
type APIHandler struct {
	service   MarketService
	cache     *cache.Cache
	validator *Validator
	logger    *slog.Logger
	now       func() time.Time
}

// NewAPIHandler creates a handler whose responses are cached for cacheTTL.
func NewAPIHandler(service MarketService, cacheTTL time.Duration, logger *slog.Logger) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	return &APIHandler{
		service:   service,
		cache:     cache.New(cacheTTL, time.Hour),
		validator: GetValidator(),
		logger:    logger,
		now:       time.Now,
	}
}

// NewServer wraps the routes in an http.Server listening on addr.
func (h *APIHandler) NewServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// SetupRoutes configures all API routes.
func (h *APIHandler) SetupRoutes() *gin.Engine {
	router := gin.New()

	router.Use(requestIDMiddleware())
	router.Use(loggerMiddleware(h.logger))
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/health", h.HealthCheck)
	router.GET("/symbols", h.GetSymbols)
	router.GET("/bars", h.GetBars)
	router.GET("/metrics", h.GetMetrics)
	router.GET("/performance", h.GetPerformance)
	router.POST("/cache/refresh", h.RefreshCache)

	return router
}
