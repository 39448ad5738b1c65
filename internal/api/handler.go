package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	"MarketLedger/internal/model"
)

// HealthCheck handles GET /health requests.
func (h *APIHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"service":   ServiceName,
		"timestamp": h.now().UTC().Format(time.RFC3339),
		"version":   ServiceVersion,
	})
}

// GetSymbols handles GET /symbols requests.
func (h *APIHandler) GetSymbols(c *gin.Context) {
	h.cached(c, "symbols", func(ctx context.Context) (any, error) {
		symbols, err := h.service.Symbols(ctx)
		if err != nil {
			return nil, err
		}
		if symbols == nil {
			symbols = []string{}
		}
		return gin.H{"symbols": symbols}, nil
	})
}

// GetBars handles GET /bars?symbol=&start=&end= requests.
func (h *APIHandler) GetBars(c *gin.Context) {
	symbol, err := h.validator.ValidateSymbol(c.Query("symbol"))
	if err != nil {
		h.handleValidationError(c, err)
		return
	}
	r, err := h.validator.ValidateRange(c.Query("start"), c.Query("end"), h.now())
	if err != nil {
		h.handleValidationError(c, err)
		return
	}

	h.cached(c, cacheKey("bars", []string{symbol}, r), func(ctx context.Context) (any, error) {
		bars, err := h.service.Bars(ctx, symbol, r)
		if err != nil {
			return nil, err
		}
		if bars == nil {
			bars = []model.PriceBar{}
		}
		return gin.H{"symbol": symbol, "range": r, "bars": bars}, nil
	})
}

// GetMetrics handles GET /metrics?symbols=&start=&end= requests.
func (h *APIHandler) GetMetrics(c *gin.Context) {
	symbols, r, ok := h.parseMulti(c)
	if !ok {
		return
	}
	h.cached(c, cacheKey("metrics", symbols, r), func(ctx context.Context) (any, error) {
		return h.service.Risk(ctx, symbols, r)
	})
}

// GetPerformance handles GET /performance?symbols=&start=&end= requests.
func (h *APIHandler) GetPerformance(c *gin.Context) {
	symbols, r, ok := h.parseMulti(c)
	if !ok {
		return
	}
	h.cached(c, cacheKey("performance", symbols, r), func(ctx context.Context) (any, error) {
		return h.service.Performance(ctx, symbols, r)
	})
}

// RefreshCache handles POST /cache/refresh: the next reads go back to storage.
func (h *APIHandler) RefreshCache(c *gin.Context) {
	n := h.cache.ItemCount()
	h.cache.Flush()
	h.logger.Info("read cache flushed", slog.Int("entries", n))
	c.JSON(http.StatusOK, gin.H{"flushed": n})
}

func (h *APIHandler) parseMulti(c *gin.Context) ([]string, model.DateRange, bool) {
	symbols, err := h.validator.ValidateSymbols(c.Query("symbols"))
	if err != nil {
		h.handleValidationError(c, err)
		return nil, model.DateRange{}, false
	}
	r, err := h.validator.ValidateRange(c.Query("start"), c.Query("end"), h.now())
	if err != nil {
		h.handleValidationError(c, err)
		return nil, model.DateRange{}, false
	}
	return symbols, r, true
}

// cached serves key from the read cache, computing and storing it on a miss.
func (h *APIHandler) cached(c *gin.Context, key string, load func(ctx context.Context) (any, error)) {
	if v, found := h.cache.Get(key); found {
		c.Header("X-Cache", "HIT")
		c.JSON(http.StatusOK, v)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	v, err := load(ctx)
	if err != nil {
		h.handleError(c, err, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.cache.Set(key, v, cache.DefaultExpiration)
	c.Header("X-Cache", "MISS")
	c.JSON(http.StatusOK, v)
}

func cacheKey(kind string, symbols []string, r model.DateRange) string {
	return kind + "|" + strings.Join(symbols, ",") + "|" + r.String()
}

// handleError logs the error and sends appropriate HTTP response.
func (h *APIHandler) handleError(c *gin.Context, err error, statusCode int, userMessage string) {
	requestID := c.GetString(RequestIDContextKey)
	if requestID == "" {
		requestID = "unknown"
	}

	h.logger.Error("API error",
		slog.String("request_id", requestID),
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("error", err.Error()),
		slog.Int("status_code", statusCode),
	)

	c.JSON(statusCode, gin.H{
		"error":      userMessage,
		"request_id": requestID,
	})
}

func (h *APIHandler) handleValidationError(c *gin.Context, err error) {
	h.handleError(c, err, http.StatusBadRequest, err.Error())
}
