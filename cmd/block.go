package cmd

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/pyusd-analytics/blocktracer/internal/config"
	"github.com/pyusd-analytics/blocktracer/internal/logger"
	"github.com/pyusd-analytics/blocktracer/pkg/blockinfo"
	"github.com/pyusd-analytics/blocktracer/pkg/clients/ethereum"
	"github.com/pyusd-analytics/blocktracer/pkg/identifier"
	"github.com/pyusd-analytics/blocktracer/pkg/tracetypes"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var blockCmd = &cobra.Command{
	Use:   "block [identifier]",
	Short: "Show block metadata without tracing",
	Args:  cobra.MaximumNArgs(1),
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

		clientCfg := ethereum.DefaultEthereumClientConfig()
		clientCfg.BaseUrl = cfg.EthereumRpcConfig.BaseUrl
		clientCfg.BlockInfoTimeout = cfg.TimeoutConfig.BlockInfo
		clientCfg.DebugTraceTimeout = cfg.TimeoutConfig.DebugTrace
		ethClient := ethereum.NewClient(clientCfg, l)
		resolver := blockinfo.NewResolver(ethClient, cfg, l)

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		if recent := viper.GetInt("recent"); recent > 0 {
			blocks, err := resolver.GetRecent(ctx, recent)
			if err != nil {
				return err
			}
			for _, block := range blocks {
				printJson(blockinfo.Stats(block))
			}
			return nil
		}

		id := "latest"
		if len(args) == 1 {
			id = args[0]
		}
		var block *tracetypes.BlockInfo
		if identifier.Classify(id) == identifier.Kind_BlockHashOrTxHash {
			block, err = resolver.GetByHash(ctx, id, true)
		} else {
			block, err = resolver.GetByNumber(ctx, id, true)
		}
		if err != nil {
			return err
		}
		printJson(block)
		printJson(blockinfo.Stats(block))

		network, err := resolver.GetNetworkInfo(ctx)
		if err == nil {
			printJson(network)
		}
		return nil
	},
}
