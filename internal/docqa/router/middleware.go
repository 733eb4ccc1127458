package router

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/pkg/utils/errors"
	"github.com/kart-io/docqa/pkg/utils/id"
	"github.com/kart-io/docqa/pkg/utils/response"
)

const (
	// HeaderXRequestID carries the request identifier.
	HeaderXRequestID = "X-Request-ID"

	// HealthPath is the liveness endpoint.
	HealthPath = "/healthz"

	// MetricsPath serves metrics in the Prometheus text format.
	MetricsPath = "/metrics"

	unmatchedRoute = "unmatched"
)

// RequestID reuses an incoming X-Request-ID when it is a ULID and generates
// one otherwise. The ID is echoed in the response header and stored in the
// gin context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderXRequestID)
		if !id.IsULID(requestID) {
			requestID = id.NewULID()
		}
		c.Header(HeaderXRequestID, requestID)
		c.Set(response.RequestIDKey, requestID)
		c.Next()
	}
}

// Logger logs one structured line per request.
func Logger(skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if skip[path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		fields := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"remote_addr", c.ClientIP(),
			"latency_ms", latency.Milliseconds(),
		}
		if rid := c.GetString(response.RequestIDKey); rid != "" {
			fields = append(fields, "request_id", rid)
		}
		if c.Writer.Status() >= 500 {
			logger.Warnw("HTTP Request", fields...)
			return
		}
		logger.Infow("HTTP Request", fields...)
	}
}

// Recovery converts panics into an internal error response.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("Panic recovered", "path", c.Request.URL.Path, "panic", r)
				response.Fail(c, errors.ErrInternal.WithMessage(fmt.Sprintf("panic: %v", r)))
				c.Abort()
			}
		}()
		c.Next()
	}
}

// Metrics records request latency by method, route template and status.
func Metrics(m *metrics.DocQAMetrics, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		m.RecordHTTP(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

// MetricsHandler writes the registry in the Prometheus text exposition format.
func MetricsHandler(m *metrics.DocQAMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Data(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8", []byte(m.Export()))
	}
}
