package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics is the narrow recording surface every component depends on,
// grounded on the teacher's habit of passing a single meter-backed facade
// into services rather than reaching for the global otel API everywhere.
type Metrics interface {
	ObserveHistogram(name string, ms float64, attrs map[string]string)
	IncrCounter(name string, delta int64, attrs map[string]string)
	SetGauge(name string, value float64, attrs map[string]string)
}

type otelMetrics struct {
	meter      metric.Meter
	mu         sync.Mutex
	histograms map[string]metric.Float64Histogram
	counters   map[string]metric.Int64Counter
	gauges     map[string]metric.Float64Gauge
}

// NewOtelMetrics builds a Metrics backed by the process MeterProvider
// (already configured by InitOTel with both OTLP and Prometheus readers).
func NewOtelMetrics(meter metric.Meter) Metrics {
	return &otelMetrics{
		meter:      meter,
		histograms: make(map[string]metric.Float64Histogram),
		counters:   make(map[string]metric.Int64Counter),
		gauges:     make(map[string]metric.Float64Gauge),
	}
}

func (m *otelMetrics) ObserveHistogram(name string, ms float64, attrs map[string]string) {
	m.mu.Lock()
	h, ok := m.histograms[name]
	if !ok {
		var err error
		h, err = m.meter.Float64Histogram(name)
		if err != nil {
			m.mu.Unlock()
			return
		}
		m.histograms[name] = h
	}
	m.mu.Unlock()
	h.Record(context.Background(), ms, metric.WithAttributes(toAttrs(attrs)...))
}

func (m *otelMetrics) IncrCounter(name string, delta int64, attrs map[string]string) {
	m.mu.Lock()
	c, ok := m.counters[name]
	if !ok {
		var err error
		c, err = m.meter.Int64Counter(name)
		if err != nil {
			m.mu.Unlock()
			return
		}
		m.counters[name] = c
	}
	m.mu.Unlock()
	c.Add(context.Background(), delta, metric.WithAttributes(toAttrs(attrs)...))
}

func (m *otelMetrics) SetGauge(name string, value float64, attrs map[string]string) {
	m.mu.Lock()
	g, ok := m.gauges[name]
	if !ok {
		var err error
		g, err = m.meter.Float64Gauge(name)
		if err != nil {
			m.mu.Unlock()
			return
		}
		m.gauges[name] = g
	}
	m.mu.Unlock()
	g.Record(context.Background(), value, metric.WithAttributes(toAttrs(attrs)...))
}

// NoopMetrics discards everything. Used in tests and for components built
// without an otel MeterProvider (e.g. before InitOTel runs).
type NoopMetrics struct{}

func (NoopMetrics) ObserveHistogram(string, float64, map[string]string) {}
func (NoopMetrics) IncrCounter(string, int64, map[string]string)        {}
func (NoopMetrics) SetGauge(string, float64, map[string]string)         {}

func toAttrs(m map[string]string) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(m))
	for k, v := range m {
		out = append(out, attribute.String(k, v))
	}
	return out
}
