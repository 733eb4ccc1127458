// Package metrics 提供 docqa 服务的业务指标收集。
package metrics

import (
	"strconv"
	"sync"
	"time"

	obs "github.com/kart-io/docqa/pkg/observability/metrics"
)

// 问答结果标签。
const (
	AskAnswered  = "answered"
	AskNoContext = "no_context"
	AskError     = "error"
)

// 重载结果标签。
const (
	ReloadOK          = "ok"
	ReloadNoDocuments = "no_documents"
	ReloadError       = "error"
)

// DocQAMetrics docqa 服务业务指标。
type DocQAMetrics struct {
	registry *obs.Registry

	asks        obs.CounterVec
	askDuration obs.Histogram
	retrieval   obs.Histogram
	generation  obs.Histogram
	genErrors   obs.Counter
	reloads     obs.CounterVec
	chunks      obs.Gauge
	httpReqs    obs.HistogramVec
}

var (
	defaultMetrics *DocQAMetrics
	defaultOnce    sync.Once
)

// Default 返回注册在全局 registry 上的指标实例。
func Default() *DocQAMetrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(obs.DefaultRegistry)
	})
	return defaultMetrics
}

// New 创建指标并注册到 reg。
func New(reg *obs.Registry) *DocQAMetrics {
	m := &DocQAMetrics{
		registry:    reg,
		asks:        obs.NewCounterVec("docqa_asks_total", "Questions handled, by result.", "result"),
		askDuration: obs.NewHistogram("docqa_ask_duration_seconds", "End-to-end question latency.", nil),
		retrieval:   obs.NewHistogram("docqa_retrieval_duration_seconds", "Vector index search latency.", nil),
		generation:  obs.NewHistogram("docqa_generation_duration_seconds", "Answer generation latency.", nil),
		genErrors:   obs.NewCounter("docqa_generation_errors_total", "Failed answer generations."),
		reloads:     obs.NewCounterVec("docqa_reloads_total", "Index reloads, by result.", "result"),
		chunks:      obs.NewGauge("docqa_index_chunks", "Chunks in the vector index."),
		httpReqs:    obs.NewHistogramVec("docqa_http_request_duration_seconds", "HTTP request latency.", nil, "method", "path", "status"),
	}
	reg.MustRegister(m.asks, m.askDuration, m.retrieval, m.generation, m.genErrors, m.reloads, m.chunks, m.httpReqs)
	return m
}

// RecordAsk 记录一次问答及其总耗时。
func (m *DocQAMetrics) RecordAsk(result string, d time.Duration) {
	m.asks.With(result).Inc()
	m.askDuration.Observe(d.Seconds())
}

// RecordRetrieval 记录一次检索耗时。
func (m *DocQAMetrics) RecordRetrieval(d time.Duration) {
	m.retrieval.Observe(d.Seconds())
}

// RecordGeneration 记录一次生成调用。
func (m *DocQAMetrics) RecordGeneration(d time.Duration, err error) {
	m.generation.Observe(d.Seconds())
	if err != nil {
		m.genErrors.Inc()
	}
}

// RecordReload 记录一次重载；成功或无文档时同步索引分块数。
func (m *DocQAMetrics) RecordReload(result string, chunks int) {
	m.reloads.With(result).Inc()
	if result != ReloadError {
		m.chunks.Set(float64(chunks))
	}
}

// SetChunks 设置索引分块数。
func (m *DocQAMetrics) SetChunks(n int) {
	m.chunks.Set(float64(n))
}

// RecordHTTP 记录一次 HTTP 请求。
func (m *DocQAMetrics) RecordHTTP(method, path string, status int, d time.Duration) {
	m.httpReqs.With(method, path, strconv.Itoa(status)).Observe(d.Seconds())
}

// Export 以 Prometheus 文本格式导出所属 registry 的全部指标。
func (m *DocQAMetrics) Export() string {
	return m.registry.Export()
}

// Asks 返回指定结果的问答计数。
func (m *DocQAMetrics) Asks(result string) float64 {
	return m.asks.With(result).Get()
}

// Reloads 返回指定结果的重载计数。
func (m *DocQAMetrics) Reloads(result string) float64 {
	return m.reloads.With(result).Get()
}

// Chunks 返回当前记录的分块数。
func (m *DocQAMetrics) Chunks() float64 {
	return m.chunks.Get()
}
