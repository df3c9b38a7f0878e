package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

const ENV_PREFIX = "BLOCKTRACER"

// Dotted kebab-case keys, bound to flags and env vars by cmd/root.go.
const (
	Debug = "debug"

	EthereumRpcBaseUrl = "ethereum.rpc-url"

	TracerName        = "tracer.name"
	TracerOnlyTopCall = "tracer.only-top-call"
	TracerWithLog     = "tracer.with-log"

	CacheMaxEntries = "cache.max-entries"
	CacheTtlSeconds = "cache.ttl-seconds"

	DebugTraceTimeoutSeconds = "timeouts.debug-trace-seconds"
	BlockInfoTimeoutSeconds  = "timeouts.block-info-seconds"

	BatchMaxConcurrentRequests = "batch.max-concurrent-requests"
	BatchChunkDelayMs          = "batch.chunk-delay-ms"

	BlocksLargeBlockThreshold = "blocks.large-block-threshold"
	BlocksSearchScanCap       = "blocks.search-scan-cap"

	ContractsRecognizedAddress = "contracts.recognized-address"
)

// PYUSD on mainnet. Interactions with this contract get flagged during
// validation and processing.
const DefaultRecognizedAddress = "0x6c3ea9036406852006290770bedfcaba0e23a0e8"

const (
	DefaultTracerName            = "callTracer"
	DefaultCacheMaxEntries       = 50
	DefaultCacheTtl              = 5 * time.Minute
	DefaultDebugTraceTimeout     = 60 * time.Second
	DefaultBlockInfoTimeout      = 15 * time.Second
	DefaultMaxConcurrentRequests = 3
	DefaultChunkDelay            = 1 * time.Second
	DefaultLargeBlockThreshold   = 200
	DefaultSearchScanCap         = 100
)

type EthereumRpcConfig struct {
	BaseUrl string
}

type TracerConfig struct {
	Name        string
	OnlyTopCall bool
	WithLog     bool
}

type CacheConfig struct {
	MaxEntries int
	Ttl        time.Duration
}

type TimeoutConfig struct {
	DebugTrace time.Duration
	BlockInfo  time.Duration
}

type BatchConfig struct {
	MaxConcurrentRequests int
	ChunkDelay            time.Duration
}

type BlocksConfig struct {
	LargeBlockThreshold int
	SearchScanCap       int
}

type Config struct {
	Debug             bool
	EthereumRpcConfig EthereumRpcConfig
	TracerConfig      TracerConfig
	CacheConfig       CacheConfig
	TimeoutConfig     TimeoutConfig
	BatchConfig       BatchConfig
	BlocksConfig      BlocksConfig
	RecognizedAddress string
}

func KebabToSnakeCase(s string) string {
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ReplaceAll(s, ".", "_")
}

func getString(key string, defaultVal string) string {
	v := viper.GetString(KebabToSnakeCase(key))
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) int {
	v := viper.GetInt(KebabToSnakeCase(key))
	if v == 0 {
		return defaultVal
	}
	return v
}

func getDurationSeconds(key string, defaultVal time.Duration) time.Duration {
	v := viper.GetInt(KebabToSnakeCase(key))
	if v == 0 {
		return defaultVal
	}
	return time.Duration(v) * time.Second
}

func getDurationMs(key string, defaultVal time.Duration) time.Duration {
	v := viper.GetInt(KebabToSnakeCase(key))
	if v == 0 {
		return defaultVal
	}
	return time.Duration(v) * time.Millisecond
}

func NewConfig() *Config {
	return &Config{
		Debug: viper.GetBool(KebabToSnakeCase(Debug)),
		EthereumRpcConfig: EthereumRpcConfig{
			BaseUrl: viper.GetString(KebabToSnakeCase(EthereumRpcBaseUrl)),
		},
		TracerConfig: TracerConfig{
			Name:        getString(TracerName, DefaultTracerName),
			OnlyTopCall: viper.GetBool(KebabToSnakeCase(TracerOnlyTopCall)),
			WithLog:     viper.GetBool(KebabToSnakeCase(TracerWithLog)),
		},
		CacheConfig: CacheConfig{
			MaxEntries: getInt(CacheMaxEntries, DefaultCacheMaxEntries),
			Ttl:        getDurationSeconds(CacheTtlSeconds, DefaultCacheTtl),
		},
		TimeoutConfig: TimeoutConfig{
			DebugTrace: getDurationSeconds(DebugTraceTimeoutSeconds, DefaultDebugTraceTimeout),
			BlockInfo:  getDurationSeconds(BlockInfoTimeoutSeconds, DefaultBlockInfoTimeout),
		},
		BatchConfig: BatchConfig{
			MaxConcurrentRequests: getInt(BatchMaxConcurrentRequests, DefaultMaxConcurrentRequests),
			ChunkDelay:            getDurationMs(BatchChunkDelayMs, DefaultChunkDelay),
		},
		BlocksConfig: BlocksConfig{
			LargeBlockThreshold: getInt(BlocksLargeBlockThreshold, DefaultLargeBlockThreshold),
			SearchScanCap:       getInt(BlocksSearchScanCap, DefaultSearchScanCap),
		},
		RecognizedAddress: strings.ToLower(getString(ContractsRecognizedAddress, DefaultRecognizedAddress)),
	}
}
