// internal/utils/metrics.go
package utils

import (
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector collects engine metrics
type MetricsCollector struct {
	counters   map[string]*Counter
	histograms map[string]*Histogram

	mu sync.RWMutex
}

// Counter metric - using atomic operations for thread-safe value updates
type Counter struct {
	name  string
	value int64
}

// Histogram metric (simple implementation tracking count, sum, min, max)
type Histogram struct {
	name  string
	count int64
	sum   int64
	min   int64
	max   int64
	mu    sync.Mutex
}

var (
	globalMetrics *MetricsCollector
	metricsOnce   sync.Once
)

// GetMetricsCollector returns the global metrics collector
func GetMetricsCollector() *MetricsCollector {
	metricsOnce.Do(func() {
		globalMetrics = &MetricsCollector{
			counters:   make(map[string]*Counter),
			histograms: make(map[string]*Histogram),
		}
	})
	return globalMetrics
}

// IncrementCounter increments a counter metric
func (m *MetricsCollector) IncrementCounter(name string) {
	m.AddCounter(name, 1)
}

// AddCounter adds a value to a counter metric
func (m *MetricsCollector) AddCounter(name string, value int64) {
	// Fast path for existing counters
	m.mu.RLock()
	counter, exists := m.counters[name]
	m.mu.RUnlock()

	if exists {
		atomic.AddInt64(&counter.value, value)
		return
	}

	m.mu.Lock()
	counter, exists = m.counters[name]
	if !exists {
		counter = &Counter{name: name}
		m.counters[name] = counter
	}
	m.mu.Unlock()

	atomic.AddInt64(&counter.value, value)
}

// GetCounterValue returns the current value of a counter
func (m *MetricsCollector) GetCounterValue(name string) int64 {
	m.mu.RLock()
	counter, exists := m.counters[name]
	m.mu.RUnlock()

	if !exists {
		return 0
	}
	return atomic.LoadInt64(&counter.value)
}

// RecordHistogram records a value into a histogram metric
func (m *MetricsCollector) RecordHistogram(name string, value int64) {
	m.mu.RLock()
	hist, exists := m.histograms[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		hist, exists = m.histograms[name]
		if !exists {
			hist = &Histogram{name: name, min: value, max: value}
			m.histograms[name] = hist
		}
		m.mu.Unlock()
	}

	hist.mu.Lock()
	defer hist.mu.Unlock()
	hist.count++
	hist.sum += value
	if value < hist.min {
		hist.min = value
	}
	if value > hist.max {
		hist.max = value
	}
}

// GetMetrics returns a snapshot of all metrics
func (m *MetricsCollector) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := make(map[string]interface{})
	for name, counter := range m.counters {
		snapshot[name] = atomic.LoadInt64(&counter.value)
	}
	for name, hist := range m.histograms {
		hist.mu.Lock()
		snapshot[name] = map[string]int64{
			"count": hist.count,
			"sum":   hist.sum,
			"min":   hist.min,
			"max":   hist.max,
		}
		hist.mu.Unlock()
	}
	return snapshot
}

// EngineMetrics provides engine-specific recording helpers
type EngineMetrics struct {
	collector *MetricsCollector
}

// NewEngineMetrics creates engine metrics helpers on the global collector
func NewEngineMetrics() *EngineMetrics {
	return &EngineMetrics{collector: GetMetricsCollector()}
}

// RecordCycle records one completed perception cycle
func (em *EngineMetrics) RecordCycle(worldID string, duration time.Duration, failed bool) {
	em.collector.IncrementCounter("cycles_total")
	em.collector.IncrementCounter("cycles_world_" + worldID)
	em.collector.RecordHistogram("cycle_duration_ms", duration.Milliseconds())
	if failed {
		em.collector.IncrementCounter("cycles_failed")
	}
}

// RecordTrigger records one fired trigger decision by reason
func (em *EngineMetrics) RecordTrigger(reason string) {
	em.collector.IncrementCounter("triggers_" + reason)
}

// RecordRendererRequest records one renderer attempt
func (em *EngineMetrics) RecordRendererRequest(provider string, duration time.Duration, success bool) {
	em.collector.IncrementCounter("renderer_requests")
	em.collector.IncrementCounter("renderer_requests_" + provider)
	em.collector.RecordHistogram("renderer_latency_ms", duration.Milliseconds())
	if !success {
		em.collector.IncrementCounter("renderer_failures")
	}
}

// RecordError records an error by component
func (em *EngineMetrics) RecordError(errorType, component string) {
	em.collector.IncrementCounter("errors_" + component + "_" + errorType)
}
