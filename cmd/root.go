package cmd

import (
	"os"
	"strings"

	"github.com/pyusd-analytics/blocktracer/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "blocktracer",
	Short: "Fetch, validate, and cache Ethereum block debug traces",
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	initConfig(rootCmd)

	rootCmd.PersistentFlags().Bool(config.Debug, false, `"true" or "false"`)

	rootCmd.PersistentFlags().String(config.EthereumRpcBaseUrl, "", `e.g. "http://<hostname>:8545"`)

	rootCmd.PersistentFlags().String(config.TracerName, config.DefaultTracerName, `Tracer passed to debug_traceBlock*`)
	rootCmd.PersistentFlags().Bool(config.TracerOnlyTopCall, false, `Only trace the top-level call of each transaction`)
	rootCmd.PersistentFlags().Bool(config.TracerWithLog, false, `Include event logs in trace results`)

	rootCmd.PersistentFlags().Int(config.CacheMaxEntries, config.DefaultCacheMaxEntries, `Maximum number of cached trace analyses`)
	rootCmd.PersistentFlags().Int(config.CacheTtlSeconds, int(config.DefaultCacheTtl.Seconds()), `Cache entry time-to-live in seconds`)

	rootCmd.PersistentFlags().Int(config.DebugTraceTimeoutSeconds, int(config.DefaultDebugTraceTimeout.Seconds()), `Timeout for debug_traceBlock* calls in seconds`)
	rootCmd.PersistentFlags().Int(config.BlockInfoTimeoutSeconds, int(config.DefaultBlockInfoTimeout.Seconds()), `Timeout for block metadata calls in seconds`)

	rootCmd.PersistentFlags().Int(config.BatchMaxConcurrentRequests, config.DefaultMaxConcurrentRequests, `Concurrent traces per batch chunk`)
	rootCmd.PersistentFlags().Int(config.BatchChunkDelayMs, int(config.DefaultChunkDelay.Milliseconds()), `Delay between batch chunks in milliseconds`)

	rootCmd.PersistentFlags().Int(config.BlocksLargeBlockThreshold, config.DefaultLargeBlockThreshold, `Transaction count above which a block is considered large`)
	rootCmd.PersistentFlags().Int(config.BlocksSearchScanCap, config.DefaultSearchScanCap, `Maximum blocks scanned by a search`)

	rootCmd.PersistentFlags().String(config.ContractsRecognizedAddress, config.DefaultRecognizedAddress, `Contract address flagged in traces`)

	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(blockCmd)
	rootCmd.AddCommand(runVersionCmd)

	traceCmd.PersistentFlags().Bool("no-cache", false, `Bypass the trace cache`)
	traceCmd.PersistentFlags().Bool("gas", false, `Include a gas cost estimate`)
	traceCmd.PersistentFlags().String("gas-price-gwei", "20", `Gas price in gwei used for cost estimates`)

	blockCmd.PersistentFlags().Int("recent", 0, `Show the N most recent blocks instead of a single block`)

	for _, flags := range []*pflag.FlagSet{
		rootCmd.PersistentFlags(),
		traceCmd.PersistentFlags(),
		blockCmd.PersistentFlags(),
	} {
		flags.VisitAll(func(f *pflag.Flag) {
			key := config.KebabToSnakeCase(f.Name)
			viper.BindPFlag(key, f) //nolint:errcheck
			viper.BindEnv(key)      //nolint:errcheck
		})
	}
}

func initConfig(cmd *cobra.Command) {
	viper.SetEnvPrefix(config.ENV_PREFIX)

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	viper.AutomaticEnv()
}
