package processor

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pyusd-analytics/blocktracer/internal/config"
	"github.com/pyusd-analytics/blocktracer/pkg/tracetypes"
	"github.com/pyusd-analytics/blocktracer/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TraceProcessor aggregates normalized trace items into a
// ProcessedTraceAnalysis. Token semantics stay out of scope beyond
// flagging interactions with the recognized contract.
type TraceProcessor struct {
	Logger *zap.Logger
	Config *config.Config
}

func NewTraceProcessor(cfg *config.Config, l *zap.Logger) *TraceProcessor {
	return &TraceProcessor{
		Logger: l,
		Config: cfg,
	}
}

func (p *TraceProcessor) Process(ctx context.Context, block *tracetypes.BlockInfo, items []*tracetypes.RawTraceItem) (*tracetypes.ProcessedTraceAnalysis, error) {
	analysis := &tracetypes.ProcessedTraceAnalysis{
		Summary: &tracetypes.TraceSummary{
			TransactionCount: len(items),
		},
		TransactionSummaries: make([]*tracetypes.TransactionSummary, 0, len(items)),
		Transfers:            make([]*tracetypes.TransferRecord, 0),
		InternalCalls:        make([]*tracetypes.InternalCallRecord, 0),
	}
	if block != nil {
		analysis.Summary.BlockNumber = block.Number
	}

	for _, item := range items {
		summary := &tracetypes.TransactionSummary{
			TxHash: item.TxHash,
			Failed: item.Error != "",
		}

		if item.Result != nil {
			res := item.Result
			summary.From = res.From
			summary.To = res.To
			summary.GasUsed = parseGas(res.GasUsed)
			summary.ValueWei = weiString(res.Value)
			if res.Error != "" {
				summary.Failed = true
			}
			p.walkFrame(item.TxHash, res, 0, analysis, summary)
		}

		if summary.Failed {
			analysis.Summary.FailedCount++
		}
		analysis.Summary.TotalGasUsed += summary.GasUsed
		analysis.TransactionSummaries = append(analysis.TransactionSummaries, summary)
	}

	analysis.Summary.InternalCallCount = len(analysis.InternalCalls)
	return analysis, nil
}

// walkFrame records transfers and internal calls for a frame and recurses
// into its children.
func (p *TraceProcessor) walkFrame(txHash string, frame *tracetypes.TraceCallResult, depth int, analysis *tracetypes.ProcessedTraceAnalysis, summary *tracetypes.TransactionSummary) {
	summary.CallCount++

	recognized := p.touchesRecognized(frame)
	if recognized {
		analysis.Summary.RecognizedInteractions++
	}

	if wei := parseWei(frame.Value); wei != nil && wei.Sign() > 0 {
		analysis.Transfers = append(analysis.Transfers, &tracetypes.TransferRecord{
			TxHash:     txHash,
			From:       frame.From,
			To:         frame.To,
			Value:      decimal.NewFromBigInt(wei, -18),
			Depth:      depth,
			Recognized: recognized,
		})
	}

	if depth > 0 {
		analysis.InternalCalls = append(analysis.InternalCalls, &tracetypes.InternalCallRecord{
			TxHash:   txHash,
			From:     frame.From,
			To:       frame.To,
			CallType: frame.Type,
			GasUsed:  parseGas(frame.GasUsed),
			Depth:    depth,
		})
	}

	for _, call := range frame.Calls {
		if call == nil {
			continue
		}
		p.walkFrame(txHash, call, depth+1, analysis, summary)
	}
}

func (p *TraceProcessor) touchesRecognized(frame *tracetypes.TraceCallResult) bool {
	addr := p.Config.RecognizedAddress
	if addr == "" {
		return false
	}
	return utils.AreAddressesEqual(frame.To, addr) || utils.AreAddressesEqual(frame.From, addr)
}

func parseGas(s string) uint64 {
	if s == "" {
		return 0
	}
	if strings.HasPrefix(s, "0x") {
		n, err := hexutil.DecodeUint64(s)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

func parseWei(s string) *big.Int {
	if s == "" || s == "0x0" {
		return nil
	}
	if strings.HasPrefix(s, "0x") {
		n, err := hexutil.DecodeBig(s)
		if err != nil {
			return nil
		}
		return n
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil
	}
	return n
}

func weiString(s string) string {
	wei := parseWei(s)
	if wei == nil {
		return "0"
	}
	return wei.String()
}
