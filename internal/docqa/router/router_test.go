package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/kart-io/docqa/internal/docqa/handler"
	"github.com/kart-io/docqa/internal/docqa/metrics"
	obs "github.com/kart-io/docqa/pkg/observability/metrics"
	"github.com/kart-io/docqa/pkg/utils/id"
)

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := w.Header().Get(HeaderXRequestID)
	assert.True(t, id.IsULID(generated))
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderXRequestID, generated)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, generated, w.Header().Get(HeaderXRequestID))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderXRequestID, "abc\r\nX-Injected: 1")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.True(t, id.IsULID(w.Header().Get(HeaderXRequestID)))
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery(), RequestID())
	r.GET("/panic", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "panic: boom")
}

func TestRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := New(handler.NewDocQAHandler(nil, 0), metrics.New(obs.NewRegistry()))

	routes := map[string]bool{}
	for _, ri := range engine.Routes() {
		routes[ri.Method+" "+ri.Path] = true
	}
	for _, want := range []string{
		"GET /healthz",
		"GET /metrics",
		"POST /v1/docqa/reload",
		"POST /v1/docqa/ask",
		"GET /v1/docqa/stats",
		"DELETE /v1/docqa/history/:user_id",
		"POST /v1/docqa/documents",
	} {
		assert.True(t, routes[want], want)
	}
}

func TestRoutes_WithoutMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := New(handler.NewDocQAHandler(nil, 0), nil)
	for _, ri := range engine.Routes() {
		assert.NotEqual(t, MetricsPath, ri.Path)
	}
}

func TestMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := metrics.New(obs.NewRegistry())

	r := gin.New()
	r.Use(Metrics(m, MetricsPath))
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET(MetricsPath, MetricsHandler(m))

	for _, path := range []string{"/items/1", "/items/2", "/nope"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, MetricsPath, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")

	body := w.Body.String()
	assert.Contains(t, body, `docqa_http_request_duration_seconds_count{method="GET",path="/items/:id",status="204"} 2`)
	assert.Contains(t, body, `docqa_http_request_duration_seconds_count{method="GET",path="unmatched",status="404"} 1`)
	assert.NotContains(t, body, `path="/metrics"`)
}
