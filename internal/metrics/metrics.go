package metrics

import (
	"github.com/pyusd-analytics/blocktracer/internal/metrics/metricsTypes"
)

// MetricsSink fans metric writes out to every configured client. A nil
// sink is valid and drops everything, so components never need to guard
// their metric calls.
type MetricsSink struct {
	clients []metricsTypes.IMetricsClient
}

func NewMetricsSink(clients []metricsTypes.IMetricsClient) *MetricsSink {
	return &MetricsSink{
		clients: clients,
	}
}

func (ms *MetricsSink) Incr(name string, labels []metricsTypes.MetricsLabel) {
	if ms == nil {
		return
	}
	for _, client := range ms.clients {
		_ = client.Incr(name, labels, 1)
	}
}

func (ms *MetricsSink) Gauge(name string, value float64, labels []metricsTypes.MetricsLabel) {
	if ms == nil {
		return
	}
	for _, client := range ms.clients {
		_ = client.Gauge(name, value, labels)
	}
}

func (ms *MetricsSink) ObserveDuration(name string, seconds float64, labels []metricsTypes.MetricsLabel) {
	if ms == nil {
		return
	}
	for _, client := range ms.clients {
		_ = client.ObserveDuration(name, seconds, labels)
	}
}
