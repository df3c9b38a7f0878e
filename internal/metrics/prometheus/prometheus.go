package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pyusd-analytics/blocktracer/internal/metrics/metricsTypes"
	"go.uber.org/zap"
)

type PrometheusMetricsClient struct {
	logger *zap.Logger

	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

var (
	counterNames = []string{
		metricsTypes.Metric_Incr_CacheHit,
		metricsTypes.Metric_Incr_CacheMiss,
		metricsTypes.Metric_Incr_CacheEvict,
		metricsTypes.Metric_Incr_TraceFetch,
		metricsTypes.Metric_Incr_RpcError,
	}
	gaugeNames = []string{
		metricsTypes.Metric_Gauge_CacheSize,
	}
	histogramNames = []string{
		metricsTypes.Metric_Duration_Trace,
		metricsTypes.Metric_Duration_RpcCall,
	}
)

func NewPrometheusMetricsClient(registerer prometheus.Registerer, l *zap.Logger) (*PrometheusMetricsClient, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	client := &PrometheusMetricsClient{
		logger:     l,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}

	for _, name := range counterNames {
		c := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name}, []string{"stage"})
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
		client.counters[name] = c
	}
	for _, name := range gaugeNames {
		g := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name}, []string{"stage"})
		if err := registerer.Register(g); err != nil {
			return nil, err
		}
		client.gauges[name] = g
	}
	for _, name := range histogramNames {
		h := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name}, []string{"stage"})
		if err := registerer.Register(h); err != nil {
			return nil, err
		}
		client.histograms[name] = h
	}

	return client, nil
}

func labelsToPrometheus(labels []metricsTypes.MetricsLabel) prometheus.Labels {
	out := prometheus.Labels{"stage": ""}
	for _, label := range labels {
		if label.Name == "stage" {
			out["stage"] = label.Value
		}
	}
	return out
}

func (pmc *PrometheusMetricsClient) Incr(name string, labels []metricsTypes.MetricsLabel, value float64) error {
	c, ok := pmc.counters[name]
	if !ok {
		pmc.logger.Sugar().Warnw("Unknown prometheus counter", zap.String("name", name))
		return nil
	}
	c.With(labelsToPrometheus(labels)).Add(value)
	return nil
}

func (pmc *PrometheusMetricsClient) Gauge(name string, value float64, labels []metricsTypes.MetricsLabel) error {
	g, ok := pmc.gauges[name]
	if !ok {
		pmc.logger.Sugar().Warnw("Unknown prometheus gauge", zap.String("name", name))
		return nil
	}
	g.With(labelsToPrometheus(labels)).Set(value)
	return nil
}

func (pmc *PrometheusMetricsClient) ObserveDuration(name string, seconds float64, labels []metricsTypes.MetricsLabel) error {
	h, ok := pmc.histograms[name]
	if !ok {
		pmc.logger.Sugar().Warnw("Unknown prometheus histogram", zap.String("name", name))
		return nil
	}
	h.With(labelsToPrometheus(labels)).Observe(seconds)
	return nil
}
