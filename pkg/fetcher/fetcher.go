package fetcher

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/pyusd-analytics/blocktracer/internal/config"
	"github.com/pyusd-analytics/blocktracer/pkg/blockinfo"
	"github.com/pyusd-analytics/blocktracer/pkg/clients/ethereum"
	"github.com/pyusd-analytics/blocktracer/pkg/identifier"
	"github.com/pyusd-analytics/blocktracer/pkg/tracetypes"
	"go.uber.org/zap"
)

// TraceFetcher issues debug_traceBlock* calls and normalizes the raw
// result into index-aligned RawTraceItems.
type TraceFetcher struct {
	EthClient *ethereum.Client
	Resolver  *blockinfo.Resolver
	Logger    *zap.Logger
	Config    *config.Config
}

func NewTraceFetcher(ethClient *ethereum.Client, resolver *blockinfo.Resolver, cfg *config.Config, l *zap.Logger) *TraceFetcher {
	return &TraceFetcher{
		EthClient: ethClient,
		Resolver:  resolver,
		Logger:    l,
		Config:    cfg,
	}
}

// FetchedTrace pairs the raw trace items with the block metadata resolved
// during the pre-check.
type FetchedTrace struct {
	Block *tracetypes.BlockInfo
	Items []*tracetypes.RawTraceItem
}

func (f *TraceFetcher) traceConfig() *ethereum.TraceConfig {
	return &ethereum.TraceConfig{
		Tracer: f.Config.TracerConfig.Name,
		TracerConfig: &ethereum.TracerCallOptions{
			OnlyTopCall: f.Config.TracerConfig.OnlyTopCall,
			WithLog:     f.Config.TracerConfig.WithLog,
		},
	}
}

func (f *TraceFetcher) warnIfLarge(block *tracetypes.BlockInfo) {
	if block.TransactionCount > f.Config.BlocksConfig.LargeBlockThreshold {
		estimate := EstimateProcessingTime(block.TransactionCount)
		f.Logger.Sugar().Warnw("Tracing a large block, this may be slow",
			zap.Uint64("blockNumber", block.Number),
			zap.Int("transactionCount", block.TransactionCount),
			zap.Int("estimatedSeconds", estimate.EstimatedSeconds),
			zap.String("category", string(estimate.Category)),
		)
	}
}

// TraceBlockByNumber traces a block identified by number or tag. The
// block's metadata is resolved first so the transaction count can drive
// the large-block advisory and hash alignment.
func (f *TraceFetcher) TraceBlockByNumber(ctx context.Context, id any) (*FetchedTrace, error) {
	block, err := f.Resolver.GetByNumber(ctx, id, false)
	if err != nil {
		return nil, err
	}
	return f.TraceResolvedBlock(ctx, block)
}

// TraceResolvedBlock traces a block whose metadata is already resolved,
// skipping the extra eth_getBlockBy* round trip.
func (f *TraceFetcher) TraceResolvedBlock(ctx context.Context, block *tracetypes.BlockInfo) (*FetchedTrace, error) {
	f.warnIfLarge(block)

	numberOrTag, err := identifier.Normalize(block.Number)
	if err != nil {
		return nil, tracetypes.NewServiceError(tracetypes.ErrorCode_ValidationError, "invalid block identifier", fmt.Sprintf("%d", block.Number), err, nil)
	}

	items, err := f.EthClient.DebugTraceBlockByNumber(ctx, numberOrTag, f.traceConfig())
	if err != nil {
		return nil, wrapTraceError(err, numberOrTag)
	}
	if items == nil {
		return nil, tracetypes.NewServiceError(tracetypes.ErrorCode_ParsingError, "node returned no trace data", numberOrTag, nil, nil)
	}

	return &FetchedTrace{
		Block: block,
		Items: f.normalizeItems(items, block),
	}, nil
}

func (f *TraceFetcher) TraceBlockByHash(ctx context.Context, hash string) (*FetchedTrace, error) {
	block, err := f.Resolver.GetByHash(ctx, hash, false)
	if err != nil {
		return nil, err
	}
	f.warnIfLarge(block)

	items, err := f.EthClient.DebugTraceBlockByHash(ctx, block.Hash, f.traceConfig())
	if err != nil {
		return nil, wrapTraceError(err, block.Hash)
	}
	if items == nil {
		return nil, tracetypes.NewServiceError(tracetypes.ErrorCode_ParsingError, "node returned no trace data", block.Hash, nil, nil)
	}

	return &FetchedTrace{
		Block: block,
		Items: f.normalizeItems(items, block),
	}, nil
}

var txHashPattern = regexp.MustCompile(`^0x[0-9a-f]{64}$`)

// normalizeItems coerces every wire item into the RawTraceItem shape.
// Items missing a usable hash fall back to the block's transaction list
// when index-aligned, then to a synthetic tx_<index> placeholder. One
// malformed item never fails the rest of the block.
func (f *TraceFetcher) normalizeItems(items []*ethereum.TraceBlockItem, block *tracetypes.BlockInfo) []*tracetypes.RawTraceItem {
	normalized := make([]*tracetypes.RawTraceItem, 0, len(items))
	for i, item := range items {
		out := &tracetypes.RawTraceItem{}
		if item == nil {
			out.TxHash = fmt.Sprintf("tx_%d", i)
			out.SyntheticHash = true
			normalized = append(normalized, out)
			continue
		}

		hash := item.TxHash.Value()
		if !txHashPattern.MatchString(hash) {
			if i < len(block.Transactions) && txHashPattern.MatchString(block.Transactions[i]) {
				hash = block.Transactions[i]
			} else {
				hash = fmt.Sprintf("tx_%d", i)
				out.SyntheticHash = true
				f.Logger.Sugar().Debugw("Trace item missing transaction hash, using placeholder",
					zap.Int("index", i),
					zap.Uint64("blockNumber", block.Number),
				)
			}
		}
		out.TxHash = hash
		out.Error = item.Error
		out.Result = convertFrame(item.Result)
		normalized = append(normalized, out)
	}
	return normalized
}

func convertFrame(frame *ethereum.TraceCallFrame) *tracetypes.TraceCallResult {
	if frame == nil {
		return nil
	}
	out := &tracetypes.TraceCallResult{
		Type:    frame.Type.Value(),
		From:    frame.From.Value(),
		To:      frame.To.Value(),
		Value:   frame.Value.Value(),
		Gas:     frame.Gas.Value(),
		GasUsed: frame.GasUsed.Value(),
		Input:   frame.Input.Value(),
		Output:  frame.Output.Value(),
		Error:   frame.Error,
	}
	for _, call := range frame.Calls {
		out.Calls = append(out.Calls, convertFrame(call))
	}
	return out
}

func wrapTraceError(err error, id string) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "timeout"):
		return tracetypes.NewServiceError(tracetypes.ErrorCode_NetworkError, "debug trace timed out", id, err, nil)
	case strings.Contains(msg, "unmarshal") || strings.Contains(msg, "parse"):
		return tracetypes.NewServiceError(tracetypes.ErrorCode_ParsingError, "failed to parse trace response", id, err, nil)
	default:
		return tracetypes.NewServiceError(tracetypes.ErrorCode_RpcError, "debug trace failed", id, err, nil)
	}
}

// EstimateProcessingTime maps a transaction count onto fixed expectation
// breakpoints.
func EstimateProcessingTime(txCount int) *tracetypes.ProcessingEstimate {
	switch {
	case txCount <= 50:
		return &tracetypes.ProcessingEstimate{
			EstimatedSeconds: 30,
			Category:         tracetypes.EstimateCategory_Fast,
		}
	case txCount <= 200:
		return &tracetypes.ProcessingEstimate{
			EstimatedSeconds: 120,
			Category:         tracetypes.EstimateCategory_Medium,
		}
	case txCount <= 500:
		return &tracetypes.ProcessingEstimate{
			EstimatedSeconds: 300,
			Category:         tracetypes.EstimateCategory_Slow,
			Warning:          "Large block, trace processing may take several minutes",
		}
	default:
		return &tracetypes.ProcessingEstimate{
			EstimatedSeconds: 600,
			Category:         tracetypes.EstimateCategory_VerySlow,
			Warning:          "Very large block, consider tracing a smaller block",
		}
	}
}
