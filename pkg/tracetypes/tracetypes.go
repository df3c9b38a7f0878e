package tracetypes

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type ErrorCode string

const (
	ErrorCode_NetworkError    ErrorCode = "network_error"
	ErrorCode_RpcError        ErrorCode = "rpc_error"
	ErrorCode_ParsingError    ErrorCode = "parsing_error"
	ErrorCode_ValidationError ErrorCode = "validation_error"
)

// ServiceError is the tagged error surfaced to callers of the trace
// subsystem. Suggestions carry actionable remediation hints alongside the
// message. Stage names the pipeline stage the error originated in, when
// one applies.
type ServiceError struct {
	Code        ErrorCode
	Message     string
	Identifier  string
	Stage       string
	Err         error
	Suggestions []string
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is the "block not found" service error.
func IsNotFound(err error) bool {
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		return false
	}
	return svcErr.Code == ErrorCode_ValidationError && strings.Contains(svcErr.Message, "not found")
}

func NewServiceError(code ErrorCode, message string, identifier string, err error, suggestions []string) *ServiceError {
	return &ServiceError{
		Code:        code,
		Message:     message,
		Identifier:  identifier,
		Err:         err,
		Suggestions: suggestions,
	}
}

// BlockInfo is block metadata reduced to what trace analysis needs.
// TransactionCount is always len(Transactions).
type BlockInfo struct {
	Number           uint64   `json:"number"`
	Hash             string   `json:"hash"`
	ParentHash       string   `json:"parentHash"`
	Timestamp        uint64   `json:"timestamp"`
	GasUsed          uint64   `json:"gasUsed"`
	GasLimit         uint64   `json:"gasLimit"`
	Transactions     []string `json:"transactions"`
	TransactionCount int      `json:"transactionCount"`
}

type BlockStats struct {
	Number           uint64  `json:"number"`
	TransactionCount int     `json:"transactionCount"`
	GasUsed          uint64  `json:"gasUsed"`
	GasLimit         uint64  `json:"gasLimit"`
	GasUtilization   float64 `json:"gasUtilization"`
	AvgGasPerTx      float64 `json:"avgGasPerTx"`
}

type BlockRange struct {
	Start             *BlockInfo `json:"start"`
	End               *BlockInfo `json:"end"`
	TotalBlocks       uint64     `json:"totalBlocks"`
	TotalTransactions int        `json:"totalTransactions"`
}

type NetworkInfo struct {
	Name    string `json:"name"`
	ChainId uint64 `json:"chainId"`
}

// RawTraceItem is one normalized element of a block debug trace, aligned
// with the block's transaction list when the node provides hashes.
type RawTraceItem struct {
	TxHash string           `json:"txHash"`
	Result *TraceCallResult `json:"result"`
	Error  string           `json:"error,omitempty"`
	// SyntheticHash marks items whose hash was missing from the node
	// response and replaced with a tx_<index> placeholder.
	SyntheticHash bool `json:"syntheticHash,omitempty"`
}

type TraceCallResult struct {
	Type    string             `json:"type,omitempty"`
	From    string             `json:"from"`
	To      string             `json:"to"`
	Value   string             `json:"value,omitempty"`
	Gas     string             `json:"gas,omitempty"`
	GasUsed string             `json:"gasUsed,omitempty"`
	Input   string             `json:"input,omitempty"`
	Output  string             `json:"output,omitempty"`
	Error   string             `json:"error,omitempty"`
	Calls   []*TraceCallResult `json:"calls,omitempty"`
}

type TraceSummary struct {
	BlockNumber            uint64 `json:"blockNumber"`
	TransactionCount       int    `json:"transactionCount"`
	FailedCount            int    `json:"failedCount"`
	TotalGasUsed           uint64 `json:"totalGasUsed"`
	InternalCallCount      int    `json:"internalCallCount"`
	RecognizedInteractions int    `json:"recognizedInteractions"`
}

type TransactionSummary struct {
	TxHash    string `json:"txHash"`
	From      string `json:"from"`
	To        string `json:"to"`
	GasUsed   uint64 `json:"gasUsed"`
	ValueWei  string `json:"valueWei"`
	Failed    bool   `json:"failed"`
	CallCount int    `json:"callCount"`
}

// TransferRecord is a native-value movement observed in a trace. Value is
// denominated in ether.
type TransferRecord struct {
	TxHash     string          `json:"txHash"`
	From       string          `json:"from"`
	To         string          `json:"to"`
	Value      decimal.Decimal `json:"value"`
	Depth      int             `json:"depth"`
	Recognized bool            `json:"recognized"`
}

type InternalCallRecord struct {
	TxHash   string `json:"txHash"`
	From     string `json:"from"`
	To       string `json:"to"`
	CallType string `json:"callType"`
	GasUsed  uint64 `json:"gasUsed"`
	Depth    int    `json:"depth"`
}

// ProcessedTraceAnalysis is the validated, aggregated output of trace
// processing. Once stored in the cache it is never mutated in place.
type ProcessedTraceAnalysis struct {
	Summary              *TraceSummary         `json:"summary"`
	TransactionSummaries []*TransactionSummary `json:"transactionSummaries"`
	Transfers            []*TransferRecord     `json:"transfers"`
	InternalCalls        []*InternalCallRecord `json:"internalCalls"`
}

// Clone returns a copy safe to hand to callers while the cache retains
// ownership of the original.
func (p *ProcessedTraceAnalysis) Clone() *ProcessedTraceAnalysis {
	if p == nil {
		return nil
	}
	out := &ProcessedTraceAnalysis{}
	if p.Summary != nil {
		s := *p.Summary
		out.Summary = &s
	}
	out.TransactionSummaries = make([]*TransactionSummary, 0, len(p.TransactionSummaries))
	for _, ts := range p.TransactionSummaries {
		c := *ts
		out.TransactionSummaries = append(out.TransactionSummaries, &c)
	}
	out.Transfers = make([]*TransferRecord, 0, len(p.Transfers))
	for _, tr := range p.Transfers {
		c := *tr
		out.Transfers = append(out.Transfers, &c)
	}
	out.InternalCalls = make([]*InternalCallRecord, 0, len(p.InternalCalls))
	for _, ic := range p.InternalCalls {
		c := *ic
		out.InternalCalls = append(out.InternalCalls, &c)
	}
	return out
}

// GasCostAnalysis is the optional auxiliary output of a gas collaborator.
type GasCostAnalysis struct {
	TotalGasUsed      uint64          `json:"totalGasUsed"`
	AvgGasPerTx       float64         `json:"avgGasPerTx"`
	GasPriceWei       decimal.Decimal `json:"gasPriceWei"`
	EstimatedCostEth  decimal.Decimal `json:"estimatedCostEth"`
}

type EstimateCategory string

const (
	EstimateCategory_Fast     EstimateCategory = "fast"
	EstimateCategory_Medium   EstimateCategory = "medium"
	EstimateCategory_Slow     EstimateCategory = "slow"
	EstimateCategory_VerySlow EstimateCategory = "very_slow"
)

type ProcessingEstimate struct {
	EstimatedSeconds int              `json:"estimatedSeconds"`
	Category         EstimateCategory `json:"category"`
	Warning          string           `json:"warning,omitempty"`
}
