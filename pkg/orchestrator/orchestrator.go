package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pyusd-analytics/blocktracer/internal/config"
	"github.com/pyusd-analytics/blocktracer/internal/metrics"
	"github.com/pyusd-analytics/blocktracer/internal/metrics/metricsTypes"
	"github.com/pyusd-analytics/blocktracer/pkg/blockinfo"
	"github.com/pyusd-analytics/blocktracer/pkg/fetcher"
	"github.com/pyusd-analytics/blocktracer/pkg/identifier"
	"github.com/pyusd-analytics/blocktracer/pkg/tracecache"
	"github.com/pyusd-analytics/blocktracer/pkg/tracetypes"
	"github.com/pyusd-analytics/blocktracer/pkg/validator"
	"go.uber.org/zap"
)

// Stage tags where in the pipeline a request currently is, and where an
// error originated.
type Stage string

const (
	Stage_Validating    Stage = "validating"
	Stage_Fetching      Stage = "fetching"
	Stage_ValidatingRaw Stage = "validating_raw"
	Stage_Processing    Stage = "processing"
	Stage_Caching       Stage = "caching"
	Stage_Completed     Stage = "completed"
)

// Processor converts normalized trace items into the processed analysis.
type Processor interface {
	Process(ctx context.Context, block *tracetypes.BlockInfo, items []*tracetypes.RawTraceItem) (*tracetypes.ProcessedTraceAnalysis, error)
}

// GasAnalyzer optionally derives gas cost figures from a processed
// analysis.
type GasAnalyzer interface {
	AnalyzeGasCosts(ctx context.Context, analysis *tracetypes.ProcessedTraceAnalysis) (*tracetypes.GasCostAnalysis, error)
}

// Orchestrator coordinates one trace request end to end: validation,
// cache lookup, fetch, raw validation, processing, caching. All
// collaborators are injected; the orchestrator holds no state beyond
// them.
type Orchestrator struct {
	Resolver  *blockinfo.Resolver
	Fetcher   *fetcher.TraceFetcher
	Validator *validator.TraceValidator
	Cache     *tracecache.TraceCache
	Processor Processor
	Gas       GasAnalyzer
	Logger    *zap.Logger
	Config    *config.Config

	sink *metrics.MetricsSink
}

func NewOrchestrator(
	resolver *blockinfo.Resolver,
	f *fetcher.TraceFetcher,
	v *validator.TraceValidator,
	cache *tracecache.TraceCache,
	p Processor,
	gas GasAnalyzer,
	cfg *config.Config,
	l *zap.Logger,
	sink *metrics.MetricsSink,
) *Orchestrator {
	return &Orchestrator{
		Resolver:  resolver,
		Fetcher:   f,
		Validator: v,
		Cache:     cache,
		Processor: p,
		Gas:       gas,
		Logger:    l,
		Config:    cfg,
		sink:      sink,
	}
}

type TraceOptions struct {
	UseCache           bool
	IncludeGasAnalysis bool
}

func DefaultTraceOptions() *TraceOptions {
	return &TraceOptions{
		UseCache: true,
	}
}

type TraceResult struct {
	BlockNumber uint64                             `json:"blockNumber"`
	Analysis    *tracetypes.ProcessedTraceAnalysis `json:"analysis"`
	Gas         *tracetypes.GasCostAnalysis        `json:"gas,omitempty"`
	FromCache   bool                               `json:"fromCache"`
	Warnings    []string                           `json:"warnings,omitempty"`
}

// cacheKey derives the cache key from the resolved block number so that
// number, hash, and tag requests for the same block share one entry.
func cacheKey(blockNumber uint64) string {
	return strconv.FormatUint(blockNumber, 10)
}

func (o *Orchestrator) TraceBlock(ctx context.Context, id any, opts *TraceOptions) (*TraceResult, error) {
	if opts == nil {
		opts = DefaultTraceOptions()
	}
	requestId := uuid.New().String()
	start := time.Now()
	stage := Stage_Validating

	l := o.Logger.With(zap.String("requestId", requestId))

	idResult := o.Validator.ValidateIdentifier(id)
	if !idResult.IsValid {
		return nil, o.enrichError(
			tracetypes.NewServiceError(tracetypes.ErrorCode_ValidationError, "invalid block identifier", fmt.Sprintf("%v", id), nil, idResult.ErrorStrings()),
			fmt.Sprintf("%v", id), stage)
	}
	for _, w := range idResult.WarningStrings() {
		l.Sugar().Warnw("Identifier validation warning", zap.String("warning", w))
	}

	block, err := o.resolveBlock(ctx, id)
	if err != nil {
		return nil, o.enrichError(err, fmt.Sprintf("%v", id), stage)
	}

	key := cacheKey(block.Number)
	if opts.UseCache {
		if analysis, ok := o.Cache.Get(key); ok {
			l.Sugar().Debugw("Cache hit",
				zap.Uint64("blockNumber", block.Number),
			)
			return &TraceResult{
				BlockNumber: block.Number,
				Analysis:    analysis,
				FromCache:   true,
			}, nil
		}
	}

	stage = Stage_Fetching
	fetched, err := o.Fetcher.TraceResolvedBlock(ctx, block)
	if err != nil {
		o.sink.Incr(metricsTypes.Metric_Incr_RpcError, []metricsTypes.MetricsLabel{{Name: "stage", Value: string(stage)}})
		return nil, o.enrichError(err, fmt.Sprintf("%v", id), stage)
	}
	o.sink.Incr(metricsTypes.Metric_Incr_TraceFetch, nil)

	stage = Stage_ValidatingRaw
	rawResult := o.Validator.ValidateRawTraces(fetched.Items, block)
	for _, w := range rawResult.WarningStrings() {
		l.Sugar().Warnw("Raw trace validation warning",
			zap.Uint64("blockNumber", block.Number),
			zap.String("warning", w),
		)
	}
	if !rawResult.IsValid {
		return nil, o.enrichError(
			tracetypes.NewServiceError(tracetypes.ErrorCode_ValidationError, "raw trace validation failed", fmt.Sprintf("%v", id), nil, rawResult.ErrorStrings()),
			fmt.Sprintf("%v", id), stage)
	}

	stage = Stage_Processing
	analysis, err := o.Processor.Process(ctx, block, fetched.Items)
	if err != nil {
		return nil, o.enrichError(err, fmt.Sprintf("%v", id), stage)
	}

	processedResult := o.Validator.ValidateProcessedAnalysis(analysis)
	for _, w := range processedResult.WarningStrings() {
		l.Sugar().Warnw("Processed analysis validation warning",
			zap.Uint64("blockNumber", block.Number),
			zap.String("warning", w),
		)
	}
	if !processedResult.IsValid {
		return nil, o.enrichError(
			tracetypes.NewServiceError(tracetypes.ErrorCode_ParsingError, "processed analysis is structurally invalid", fmt.Sprintf("%v", id), nil, processedResult.ErrorStrings()),
			fmt.Sprintf("%v", id), stage)
	}

	stage = Stage_Caching
	if opts.UseCache {
		o.Cache.Set(key, analysis)
	}

	result := &TraceResult{
		BlockNumber: block.Number,
		Analysis:    analysis,
	}
	report := validator.GenerateValidationReport(idResult, rawResult, processedResult)
	for _, r := range report.Results {
		result.Warnings = append(result.Warnings, r.WarningStrings()...)
	}

	if opts.IncludeGasAnalysis && o.Gas != nil {
		gas, err := o.Gas.AnalyzeGasCosts(ctx, analysis)
		if err != nil {
			l.Sugar().Warnw("Gas analysis failed, continuing without it",
				zap.Uint64("blockNumber", block.Number),
				zap.Error(err),
			)
		} else {
			result.Gas = gas
		}
	}

	o.sink.ObserveDuration(metricsTypes.Metric_Duration_Trace, time.Since(start).Seconds(), nil)
	l.Sugar().Infow("Trace completed",
		zap.Uint64("blockNumber", block.Number),
		zap.Int("transactionCount", block.TransactionCount),
		zap.String("stage", string(Stage_Completed)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

// resolveBlock routes hashes through the by-hash lookup and everything
// else through the by-number path. A hash that resolves to no block may
// be a transaction hash, so the error says so.
func (o *Orchestrator) resolveBlock(ctx context.Context, id any) (*tracetypes.BlockInfo, error) {
	kind := identifier.Classify(id)
	if kind == identifier.Kind_BlockHashOrTxHash {
		hash, _ := id.(string)
		block, err := o.Resolver.GetByHash(ctx, hash, false)
		if err != nil {
			if tracetypes.IsNotFound(err) {
				return nil, tracetypes.NewServiceError(tracetypes.ErrorCode_ValidationError,
					"no block with this hash", hash, err,
					[]string{
						"If this is a transaction hash, trace its containing block instead",
						"Verify the hash and the network you are connected to",
					})
			}
			return nil, err
		}
		return block, nil
	}
	return o.Resolver.GetByNumber(ctx, id, false)
}

type BatchOptions struct {
	MaxConcurrent int
	UseCache      bool
}

func DefaultBatchOptions() *BatchOptions {
	return &BatchOptions{
		MaxConcurrent: 3,
		UseCache:      true,
	}
}

// BatchResult is one entry of a batch response, at the same index as its
// identifier in the input.
type BatchResult struct {
	Identifier any
	Result     *TraceResult
	Err        error
}

// BatchTraceBlocks traces identifiers in chunks of MaxConcurrent.
// Failures are captured per identifier and never abort sibling work. A
// fixed delay separates chunks, except after the final one. The returned
// slice preserves input order.
func (o *Orchestrator) BatchTraceBlocks(ctx context.Context, ids []any, opts *BatchOptions) []*BatchResult {
	if opts == nil {
		opts = DefaultBatchOptions()
	}
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = o.Config.BatchConfig.MaxConcurrentRequests
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	results := make([]*BatchResult, len(ids))
	traceOpts := &TraceOptions{UseCache: opts.UseCache}

	for chunkStart := 0; chunkStart < len(ids); chunkStart += maxConcurrent {
		chunkEnd := chunkStart + maxConcurrent
		if chunkEnd > len(ids) {
			chunkEnd = len(ids)
		}

		done := make(chan struct{}, chunkEnd-chunkStart)
		for i := chunkStart; i < chunkEnd; i++ {
			go func(i int) {
				defer func() { done <- struct{}{} }()
				result, err := o.TraceBlock(ctx, ids[i], traceOpts)
				results[i] = &BatchResult{
					Identifier: ids[i],
					Result:     result,
					Err:        err,
				}
			}(i)
		}
		for i := chunkStart; i < chunkEnd; i++ {
			<-done
		}

		if chunkEnd < len(ids) {
			select {
			case <-ctx.Done():
				for i := chunkEnd; i < len(ids); i++ {
					results[i] = &BatchResult{Identifier: ids[i], Err: ctx.Err()}
				}
				return results
			case <-time.After(o.Config.BatchConfig.ChunkDelay):
			}
		}
	}
	return results
}

// enrichError wraps anything that is not already a tagged ServiceError,
// stamping the originating stage and attaching keyword-tailored
// suggestions.
func (o *Orchestrator) enrichError(err error, id string, stage Stage) error {
	svcErr, ok := err.(*tracetypes.ServiceError)
	if !ok {
		svcErr = classifyError(err, id)
	}
	svcErr.Stage = string(stage)
	if len(svcErr.Suggestions) == 0 {
		svcErr.Suggestions = suggestionsFor(svcErr)
	}
	o.Logger.Sugar().Errorw("Trace request failed",
		zap.String("identifier", id),
		zap.String("stage", string(stage)),
		zap.String("code", string(svcErr.Code)),
		zap.Error(err),
	)
	return svcErr
}

func classifyError(err error, id string) *tracetypes.ServiceError {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return tracetypes.NewServiceError(tracetypes.ErrorCode_NetworkError, "request timed out", id, err, nil)
	case strings.Contains(msg, "not found"):
		return tracetypes.NewServiceError(tracetypes.ErrorCode_ValidationError, "block not found", id, err, nil)
	case strings.Contains(msg, "parse") || strings.Contains(msg, "unmarshal"):
		return tracetypes.NewServiceError(tracetypes.ErrorCode_ParsingError, "failed to parse response", id, err, nil)
	default:
		return tracetypes.NewServiceError(tracetypes.ErrorCode_RpcError, "rpc call failed", id, err, nil)
	}
}

func suggestionsFor(svcErr *tracetypes.ServiceError) []string {
	msg := strings.ToLower(svcErr.Message)
	if svcErr.Err != nil {
		msg += " " + strings.ToLower(svcErr.Err.Error())
	}
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") || strings.Contains(msg, "deadline"):
		return []string{
			"Try a block with fewer transactions",
			"Try a different RPC endpoint",
			"Increase the debug trace timeout",
		}
	case strings.Contains(msg, "not found"):
		return []string{
			"Verify the block identifier",
			"Check you are connected to the right network",
		}
	case strings.Contains(msg, "parse") || strings.Contains(msg, "corrupt") || strings.Contains(msg, "unmarshal"):
		return []string{
			"Trace data may be corrupted, try a different block",
		}
	default:
		return []string{
			"Check the RPC endpoint is reachable and supports debug_trace methods",
		}
	}
}
