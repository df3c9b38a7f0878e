package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/pyusd-analytics/blocktracer/internal/config"
	"github.com/pyusd-analytics/blocktracer/internal/logger"
	"github.com/pyusd-analytics/blocktracer/internal/metrics"
	"github.com/pyusd-analytics/blocktracer/internal/metrics/metricsTypes"
	prometheusClient "github.com/pyusd-analytics/blocktracer/internal/metrics/prometheus"
	"github.com/pyusd-analytics/blocktracer/pkg/blockinfo"
	"github.com/pyusd-analytics/blocktracer/pkg/clients/ethereum"
	"github.com/pyusd-analytics/blocktracer/pkg/fetcher"
	"github.com/pyusd-analytics/blocktracer/pkg/orchestrator"
	"github.com/pyusd-analytics/blocktracer/pkg/processor"
	"github.com/pyusd-analytics/blocktracer/pkg/tracecache"
	"github.com/pyusd-analytics/blocktracer/pkg/validator"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var traceCmd = &cobra.Command{
	Use:   "trace <block identifier> [more identifiers...]",
	Short: "Trace one or more blocks and print the processed analysis",
	Long: `Trace a block identified by number, hex number, tag (latest, safe,
finalized, earliest, pending), or block hash. Multiple identifiers are
traced as a batch with bounded concurrency.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.NewConfig()

		l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})
		if err != nil {
			log.Fatalln(err)
		}
		defer l.Sync() //nolint:errcheck

		if cfg.EthereumRpcConfig.BaseUrl == "" {
			return fmt.Errorf("ethereum.rpc-url is required")
		}

		orch, cache := buildOrchestrator(cfg, l)

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		useCache := !viper.GetBool("no_cache")
		includeGas := viper.GetBool("gas")

		if len(args) == 1 {
			result, err := orch.TraceBlock(ctx, args[0], &orchestrator.TraceOptions{
				UseCache:           useCache,
				IncludeGasAnalysis: includeGas,
			})
			if err != nil {
				return err
			}
			printJson(result)
		} else {
			ids := make([]any, 0, len(args))
			for _, arg := range args {
				ids = append(ids, arg)
			}
			results := orch.BatchTraceBlocks(ctx, ids, &orchestrator.BatchOptions{
				MaxConcurrent: cfg.BatchConfig.MaxConcurrentRequests,
				UseCache:      useCache,
			})
			for _, r := range results {
				if r.Err != nil {
					l.Sugar().Errorw("Batch item failed",
						zap.Any("identifier", r.Identifier),
						zap.Error(r.Err),
					)
					continue
				}
				printJson(r.Result)
			}
		}

		stats := cache.GetStats()
		l.Sugar().Infow("Cache statistics",
			zap.Int("size", stats.Size),
			zap.Uint64("hits", stats.Hits),
			zap.Uint64("misses", stats.Misses),
			zap.Float64("hitRate", stats.HitRate),
		)
		return nil
	},
}

func buildOrchestrator(cfg *config.Config, l *zap.Logger) (*orchestrator.Orchestrator, *tracecache.TraceCache) {
	clients := []metricsTypes.IMetricsClient{}
	promClient, err := prometheusClient.NewPrometheusMetricsClient(prometheus.NewRegistry(), l)
	if err != nil {
		l.Sugar().Warnw("Failed to register prometheus metrics, continuing without them", zap.Error(err))
	} else {
		clients = append(clients, promClient)
	}
	sink := metrics.NewMetricsSink(clients)

	clientCfg := ethereum.DefaultEthereumClientConfig()
	clientCfg.BaseUrl = cfg.EthereumRpcConfig.BaseUrl
	clientCfg.BlockInfoTimeout = cfg.TimeoutConfig.BlockInfo
	clientCfg.DebugTraceTimeout = cfg.TimeoutConfig.DebugTrace
	ethClient := ethereum.NewClient(clientCfg, l)

	resolver := blockinfo.NewResolver(ethClient, cfg, l)
	traceFetcher := fetcher.NewTraceFetcher(ethClient, resolver, cfg, l)
	traceValidator := validator.NewTraceValidator(cfg, l)
	cache := tracecache.NewTraceCache(&tracecache.TraceCacheConfig{
		MaxEntries: cfg.CacheConfig.MaxEntries,
		Ttl:        cfg.CacheConfig.Ttl,
	}, l, sink)
	traceProcessor := processor.NewTraceProcessor(cfg, l)

	gasPriceGwei, err := decimal.NewFromString(viper.GetString("gas_price_gwei"))
	if err != nil {
		gasPriceGwei = decimal.NewFromInt(20)
	}
	gas := orchestrator.NewStaticGasAnalyzer(gasPriceGwei.Shift(9))

	orch := orchestrator.NewOrchestrator(resolver, traceFetcher, traceValidator, cache, traceProcessor, gas, cfg, l, sink)
	return orch, cache
}

func printJson(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to render result: %v\n", err)
		return
	}
	fmt.Println(string(data))
}
