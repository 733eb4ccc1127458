package metrics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// DefBuckets are the default histogram buckets, in seconds.
var DefBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

type baseMetric struct {
	name string
	help string
	typ  MetricType
}

func (m *baseMetric) Name() string     { return m.name }
func (m *baseMetric) Help() string     { return m.help }
func (m *baseMetric) Type() MetricType { return m.typ }

func (m *baseMetric) header(sb *strings.Builder) {
	fmt.Fprintf(sb, "# HELP %s %s\n", m.name, m.help)
	fmt.Fprintf(sb, "# TYPE %s %s\n", m.name, m.typ)
}

// atomicFloat stores a float64 as bits for CAS updates.
type atomicFloat struct {
	bits uint64
}

func (f *atomicFloat) add(v float64) {
	for {
		old := atomic.LoadUint64(&f.bits)
		if atomic.CompareAndSwapUint64(&f.bits, old, math.Float64bits(math.Float64frombits(old)+v)) {
			return
		}
	}
}

func (f *atomicFloat) set(v float64) { atomic.StoreUint64(&f.bits, math.Float64bits(v)) }
func (f *atomicFloat) get() float64  { return math.Float64frombits(atomic.LoadUint64(&f.bits)) }

// --- Counter ---

type counter struct {
	baseMetric
	val atomicFloat
}

// NewCounter creates a Counter.
func NewCounter(name, help string) Counter {
	return &counter{baseMetric: baseMetric{name: name, help: help, typ: TypeCounter}}
}

func (c *counter) Inc() { c.val.add(1) }

// Add ignores negative values.
func (c *counter) Add(v float64) {
	if v > 0 {
		c.val.add(v)
	}
}

func (c *counter) Get() float64 { return c.val.get() }

func (c *counter) Describe() string {
	var sb strings.Builder
	c.header(&sb)
	fmt.Fprintf(&sb, "%s %s\n", c.name, formatValue(c.Get()))
	return sb.String()
}

// --- Gauge ---

type gauge struct {
	baseMetric
	val atomicFloat
}

// NewGauge creates a Gauge.
func NewGauge(name, help string) Gauge {
	return &gauge{baseMetric: baseMetric{name: name, help: help, typ: TypeGauge}}
}

func (g *gauge) Set(v float64) { g.val.set(v) }
func (g *gauge) Add(v float64) { g.val.add(v) }
func (g *gauge) Get() float64  { return g.val.get() }

func (g *gauge) Describe() string {
	var sb strings.Builder
	g.header(&sb)
	fmt.Fprintf(&sb, "%s %s\n", g.name, formatValue(g.Get()))
	return sb.String()
}

// --- Histogram ---

type histogram struct {
	baseMetric
	buckets []float64

	mu     sync.Mutex
	counts []uint64
	sum    float64
	count  uint64
}

// NewHistogram creates a Histogram. Nil buckets select DefBuckets.
func NewHistogram(name, help string, buckets []float64) Histogram {
	return newHistogram(name, help, buckets)
}

func newHistogram(name, help string, buckets []float64) *histogram {
	if len(buckets) == 0 {
		buckets = DefBuckets
	}
	b := append([]float64(nil), buckets...)
	sort.Float64s(b)
	return &histogram{
		baseMetric: baseMetric{name: name, help: help, typ: TypeHistogram},
		buckets:    b,
		counts:     make([]uint64, len(b)),
	}
}

func (h *histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, upper := range h.buckets {
		if v <= upper {
			h.counts[i]++
		}
	}
}

func (h *histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func (h *histogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

func (h *histogram) Describe() string {
	var sb strings.Builder
	h.header(&sb)
	h.samples(&sb, h.name, "")
	return sb.String()
}

// samples writes the bucket, sum and count lines; labels is "k=\"v\",..." or "".
func (h *histogram) samples(sb *strings.Builder, name, labels string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sep := ""
	if labels != "" {
		sep = ","
	}
	for i, upper := range h.buckets {
		fmt.Fprintf(sb, "%s_bucket{%s%sle=\"%s\"} %d\n", name, labels, sep, formatValue(upper), h.counts[i])
	}
	fmt.Fprintf(sb, "%s_bucket{%s%sle=\"+Inf\"} %d\n", name, labels, sep, h.count)
	fmt.Fprintf(sb, "%s_sum%s %s\n", name, braces(labels), formatValue(h.sum))
	fmt.Fprintf(sb, "%s_count%s %d\n", name, braces(labels), h.count)
}

// --- Vectors ---

type vec[M any] struct {
	baseMetric
	labels []string
	create func() M

	mu      sync.RWMutex
	members map[string]M
}

func (v *vec[M]) with(values []string) M {
	if len(values) != len(v.labels) {
		panic(fmt.Sprintf("metrics: %s expects %d label values, got %d", v.name, len(v.labels), len(values)))
	}
	key := v.labelString(values)

	v.mu.RLock()
	m, ok := v.members[key]
	v.mu.RUnlock()
	if ok {
		return m
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if m, ok = v.members[key]; !ok {
		m = v.create()
		v.members[key] = m
	}
	return m
}

func (v *vec[M]) labelString(values []string) string {
	pairs := make([]string, len(values))
	for i, val := range values {
		pairs[i] = fmt.Sprintf("%s=%q", v.labels[i], val)
	}
	return strings.Join(pairs, ",")
}

func (v *vec[M]) sortedKeys() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	keys := make([]string, 0, len(v.members))
	for k := range v.members {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (v *vec[M]) get(key string) M {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.members[key]
}

type counterVec struct {
	vec[*counter]
}

// NewCounterVec creates a CounterVec with the given label names.
func NewCounterVec(name, help string, labels ...string) CounterVec {
	v := &counterVec{}
	v.baseMetric = baseMetric{name: name, help: help, typ: TypeCounter}
	v.labels = labels
	v.members = make(map[string]*counter)
	v.create = func() *counter { return &counter{baseMetric: v.baseMetric} }
	return v
}

func (v *counterVec) With(values ...string) Counter { return v.with(values) }

func (v *counterVec) Describe() string {
	var sb strings.Builder
	v.header(&sb)
	for _, key := range v.sortedKeys() {
		fmt.Fprintf(&sb, "%s{%s} %s\n", v.name, key, formatValue(v.get(key).Get()))
	}
	return sb.String()
}

type histogramVec struct {
	vec[*histogram]
}

// NewHistogramVec creates a HistogramVec with the given buckets and label names.
func NewHistogramVec(name, help string, buckets []float64, labels ...string) HistogramVec {
	v := &histogramVec{}
	v.baseMetric = baseMetric{name: name, help: help, typ: TypeHistogram}
	v.labels = labels
	v.members = make(map[string]*histogram)
	v.create = func() *histogram { return newHistogram(name, help, buckets) }
	return v
}

func (v *histogramVec) With(values ...string) Histogram { return v.with(values) }

func (v *histogramVec) Describe() string {
	var sb strings.Builder
	v.header(&sb)
	for _, key := range v.sortedKeys() {
		v.get(key).samples(&sb, v.name, key)
	}
	return sb.String()
}

func braces(labels string) string {
	if labels == "" {
		return ""
	}
	return "{" + labels + "}"
}

func formatValue(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return fmt.Sprintf("%g", v)
}
