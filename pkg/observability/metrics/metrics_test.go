package metrics

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter(t *testing.T) {
	c := NewCounter("docqa_test_total", "Test counter.")
	c.Inc()
	c.Add(2.5)
	c.Add(-1)
	assert.Equal(t, 3.5, c.Get())
	assert.Equal(t, "# HELP docqa_test_total Test counter.\n# TYPE docqa_test_total counter\ndocqa_test_total 3.5\n", c.Describe())
}

func TestCounter_Concurrent(t *testing.T) {
	c := NewCounter("c", "h")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Inc()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, float64(5000), c.Get())
}

func TestGauge(t *testing.T) {
	g := NewGauge("docqa_chunks", "Chunks.")
	g.Set(10)
	g.Add(-3)
	assert.Equal(t, float64(7), g.Get())
	assert.Contains(t, g.Describe(), "docqa_chunks 7\n")
}

func TestHistogram(t *testing.T) {
	h := NewHistogram("latency_seconds", "Latency.", []float64{1, 0.1})
	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(3)

	assert.Equal(t, uint64(3), h.Count())
	assert.InDelta(t, 3.55, h.Sum(), 1e-9)

	out := h.Describe()
	assert.Contains(t, out, `latency_seconds_bucket{le="0.1"} 1`)
	assert.Contains(t, out, `latency_seconds_bucket{le="1"} 2`)
	assert.Contains(t, out, `latency_seconds_bucket{le="+Inf"} 3`)
	assert.Contains(t, out, "latency_seconds_count 3\n")
}

func TestCounterVec(t *testing.T) {
	v := NewCounterVec("asks_total", "Asks.", "result")
	v.With("answered").Inc()
	v.With("answered").Inc()
	v.With("error").Inc()

	assert.Equal(t, float64(2), v.With("answered").Get())
	out := v.Describe()
	assert.Contains(t, out, `asks_total{result="answered"} 2`)
	assert.Contains(t, out, `asks_total{result="error"} 1`)
	assert.Less(t, strings.Index(out, "answered"), strings.Index(out, "error"), "series are sorted")

	assert.Panics(t, func() { v.With("a", "b") })
}

func TestHistogramVec(t *testing.T) {
	v := NewHistogramVec("http_seconds", "HTTP.", []float64{0.5}, "method", "status")
	v.With("GET", "200").Observe(0.1)

	out := v.Describe()
	assert.Contains(t, out, `http_seconds_bucket{method="GET",status="200",le="0.5"} 1`)
	assert.Contains(t, out, `http_seconds_sum{method="GET",status="200"} 0.1`)
	assert.Contains(t, out, `http_seconds_count{method="GET",status="200"} 1`)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	b := NewCounter("b_total", "B.")
	a := NewGauge("a", "A.")
	r.MustRegister(b, a)

	require.Error(t, r.Register(NewCounter("a", "dup")))
	assert.Less(t, strings.Index(r.Export(), "# HELP a "), strings.Index(r.Export(), "# HELP b_total"))

	r.Unregister("a")
	assert.NotContains(t, r.Export(), "# HELP a ")
}
