// Package metrics provides lock-light metric primitives and a registry that
// exports them in the Prometheus text format.
package metrics

// MetricType represents the type of metric.
type MetricType string

// Metric type constants define the supported metric types.
const (
	TypeCounter   MetricType = "counter"
	TypeGauge     MetricType = "gauge"
	TypeHistogram MetricType = "histogram"
)

// Metric is the base interface for all metrics.
type Metric interface {
	Name() string
	Help() string
	Type() MetricType
	// Describe returns the HELP/TYPE header and samples in Prometheus format.
	Describe() string
}

// Counter is a monotonically increasing value.
type Counter interface {
	Metric
	Inc()
	Add(float64)
	Get() float64
}

// Gauge is a value that can go up and down.
type Gauge interface {
	Metric
	Set(float64)
	Add(float64)
	Get() float64
}

// Histogram counts observations in cumulative buckets.
type Histogram interface {
	Metric
	Observe(float64)
	Count() uint64
	Sum() float64
}

// CounterVec is a family of counters partitioned by label values.
type CounterVec interface {
	Metric
	// With returns the counter for the label values, in label-name order.
	With(values ...string) Counter
}

// HistogramVec is a family of histograms partitioned by label values.
type HistogramVec interface {
	Metric
	// With returns the histogram for the label values, in label-name order.
	With(values ...string) Histogram
}
