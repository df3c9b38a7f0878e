package metricsTypes

type MetricsLabel struct {
	Name  string
	Value string
}

type IMetricsClient interface {
	Incr(name string, labels []MetricsLabel, value float64) error
	Gauge(name string, value float64, labels []MetricsLabel) error
	ObserveDuration(name string, seconds float64, labels []MetricsLabel) error
}

// Metric names recorded by the trace pipeline.
const (
	Metric_Incr_CacheHit    = "blocktracer_cache_hits"
	Metric_Incr_CacheMiss   = "blocktracer_cache_misses"
	Metric_Incr_CacheEvict  = "blocktracer_cache_evictions"
	Metric_Incr_TraceFetch  = "blocktracer_trace_fetches"
	Metric_Incr_RpcError    = "blocktracer_rpc_errors"
	Metric_Gauge_CacheSize  = "blocktracer_cache_size"
	Metric_Duration_Trace   = "blocktracer_trace_duration_seconds"
	Metric_Duration_RpcCall = "blocktracer_rpc_call_duration_seconds"
)
