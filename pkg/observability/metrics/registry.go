package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry holds metrics by name.
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]Metric
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]Metric)}
}

// DefaultRegistry is the process-wide registry.
var DefaultRegistry = NewRegistry()

// Register adds m. A second metric with the same name is an error.
func (r *Registry) Register(m Metric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.metrics[m.Name()]; ok {
		return fmt.Errorf("metric %q already registered", m.Name())
	}
	r.metrics[m.Name()] = m
	return nil
}

// MustRegister registers every metric and panics on a duplicate name.
func (r *Registry) MustRegister(ms ...Metric) {
	for _, m := range ms {
		if err := r.Register(m); err != nil {
			panic(err)
		}
	}
}

// Unregister removes the metric with the given name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.metrics, name)
}

// Export returns all metrics, sorted by name, in Prometheus text format.
func (r *Registry) Export() string {
	r.mu.RLock()
	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		r.mu.RLock()
		m, ok := r.metrics[name]
		r.mu.RUnlock()
		if ok {
			sb.WriteString(m.Describe())
		}
	}
	return sb.String()
}

// Export exports the default registry.
func Export() string {
	return DefaultRegistry.Export()
}
