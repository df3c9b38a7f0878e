package validator

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pyusd-analytics/blocktracer/internal/config"
	"github.com/pyusd-analytics/blocktracer/pkg/identifier"
	"github.com/pyusd-analytics/blocktracer/pkg/tracetypes"
	"github.com/pyusd-analytics/blocktracer/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Severity string

const (
	Severity_Error   Severity = "error"
	Severity_Warning Severity = "warning"
)

// Issue is one validation finding. Issues stay structured internally;
// they render to strings only at the presentation boundary.
type Issue struct {
	Code     string
	Severity Severity
	Field    string
	Message  string
	Context  map[string]string
}

func (i *Issue) Render() string {
	if i.Field != "" {
		return fmt.Sprintf("[%s] %s (%s)", i.Code, i.Message, i.Field)
	}
	return fmt.Sprintf("[%s] %s", i.Code, i.Message)
}

type ValidationResult struct {
	IsValid   bool
	Errors    []*Issue
	Warnings  []*Issue
	BlockInfo *tracetypes.BlockInfo
}

func (r *ValidationResult) addError(issue *Issue) {
	issue.Severity = Severity_Error
	r.Errors = append(r.Errors, issue)
	r.IsValid = false
}

func (r *ValidationResult) addWarning(issue *Issue) {
	issue.Severity = Severity_Warning
	r.Warnings = append(r.Warnings, issue)
}

func (r *ValidationResult) ErrorStrings() []string {
	out := make([]string, 0, len(r.Errors))
	for _, issue := range r.Errors {
		out = append(out, issue.Render())
	}
	return out
}

func (r *ValidationResult) WarningStrings() []string {
	out := make([]string, 0, len(r.Warnings))
	for _, issue := range r.Warnings {
		out = append(out, issue.Render())
	}
	return out
}

func newResult() *ValidationResult {
	return &ValidationResult{
		IsValid:  true,
		Errors:   make([]*Issue, 0),
		Warnings: make([]*Issue, 0),
	}
}

// Issue codes.
const (
	Code_InvalidIdentifier    = "INVALID_IDENTIFIER"
	Code_NegativeBlockNumber  = "NEGATIVE_BLOCK_NUMBER"
	Code_SuspiciousBlockNum   = "SUSPICIOUS_BLOCK_NUMBER"
	Code_MalformedHash        = "MALFORMED_TX_HASH"
	Code_MalformedAddress     = "MALFORMED_ADDRESS"
	Code_ImplausibleGas       = "IMPLAUSIBLE_GAS_USED"
	Code_ImplausibleValue     = "IMPLAUSIBLE_VALUE"
	Code_OddInputLength       = "ODD_INPUT_LENGTH"
	Code_MissingResult        = "MISSING_TRACE_RESULT"
	Code_MalformedNestedCall  = "MALFORMED_NESTED_CALL"
	Code_HighFailureRate      = "HIGH_FAILURE_RATE"
	Code_GasOutliers          = "GAS_OUTLIERS"
	Code_PlaceholderHashes    = "PLACEHOLDER_HASHES"
	Code_CallConcentration    = "CALL_CONCENTRATION"
	Code_MissingSummary       = "MISSING_SUMMARY"
	Code_MissingTransactions  = "MISSING_TRANSACTION_SUMMARIES"
	Code_CountMismatch        = "TRANSACTION_COUNT_MISMATCH"
	Code_GasSumMismatch       = "GAS_SUM_MISMATCH"
)

// Heuristic thresholds.
const (
	failureRateThreshold   = 0.20
	gasOutlierMultiplier   = 5.0
	concentrationThreshold = 0.80
	gasSumTolerance        = 1000
	// Warn on block numbers far beyond any plausible chain height.
	suspiciousBlockNumber = uint64(100_000_000)
)

// valueSanityBound is 1000 native-token units in wei.
var valueSanityBound = decimal.New(1000, 18)

type TraceValidator struct {
	Logger *zap.Logger
	Config *config.Config
}

func NewTraceValidator(cfg *config.Config, l *zap.Logger) *TraceValidator {
	return &TraceValidator{
		Logger: l,
		Config: cfg,
	}
}

// ValidateIdentifier performs the syntactic pass over a user-supplied
// block identifier. No network calls.
func (v *TraceValidator) ValidateIdentifier(id any) *ValidationResult {
	result := newResult()
	kind := identifier.Classify(id)

	switch kind {
	case identifier.Kind_Invalid:
		result.addError(&Issue{
			Code:    Code_InvalidIdentifier,
			Field:   "identifier",
			Message: identifier.Guidance(kind),
		})
	case identifier.Kind_ContractAddress:
		result.addError(&Issue{
			Code:    Code_InvalidIdentifier,
			Field:   "identifier",
			Message: identifier.Guidance(kind),
		})
	case identifier.Kind_BlockNumber, identifier.Kind_HexBlockNumber:
		if identifier.IsNegative(id) {
			result.addError(&Issue{
				Code:    Code_NegativeBlockNumber,
				Field:   "identifier",
				Message: "block number cannot be negative",
			})
			break
		}
		if n, err := identifier.Normalize(id); err == nil {
			if parsed, err := hexutil.DecodeUint64(n); err == nil && parsed > suspiciousBlockNumber {
				result.addWarning(&Issue{
					Code:    Code_SuspiciousBlockNum,
					Field:   "identifier",
					Message: fmt.Sprintf("block number %d is suspiciously large", parsed),
				})
			}
		}
	}
	return result
}

var strictTxHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// ValidateRawTraces checks every normalized trace item and then runs the
// aggregate anomaly heuristics over the whole set. Per-item problems are
// warnings: partial annotated results beat total failure.
func (v *TraceValidator) ValidateRawTraces(items []*tracetypes.RawTraceItem, block *tracetypes.BlockInfo) *ValidationResult {
	result := newResult()
	result.BlockInfo = block

	failedCount := 0
	syntheticCount := 0
	gasValues := make([]uint64, 0, len(items))
	receiverCounts := make(map[string]int)

	for i, item := range items {
		field := fmt.Sprintf("items[%d]", i)

		if item.SyntheticHash {
			syntheticCount++
		} else if !strictTxHashPattern.MatchString(item.TxHash) {
			result.addWarning(&Issue{
				Code:    Code_MalformedHash,
				Field:   field,
				Message: fmt.Sprintf("transaction hash %q is malformed", item.TxHash),
			})
		}

		if item.Error != "" {
			failedCount++
		}

		if item.Result == nil {
			result.addWarning(&Issue{
				Code:    Code_MissingResult,
				Field:   field,
				Message: "trace item carries no call result",
			})
			continue
		}
		res := item.Result
		if res.Error != "" && item.Error == "" {
			failedCount++
		}

		if res.From != "" && !common.IsHexAddress(res.From) {
			result.addWarning(&Issue{
				Code:    Code_MalformedAddress,
				Field:   field + ".from",
				Message: fmt.Sprintf("sender address %q is malformed", res.From),
			})
		}
		if res.To != "" && !common.IsHexAddress(res.To) {
			result.addWarning(&Issue{
				Code:    Code_MalformedAddress,
				Field:   field + ".to",
				Message: fmt.Sprintf("recipient address %q is malformed", res.To),
			})
		}
		if res.To != "" {
			receiverCounts[strings.ToLower(res.To)]++
		}

		if gasUsed, err := parseQuantity(res.GasUsed); err == nil {
			gasValues = append(gasValues, gasUsed)
			if block != nil && block.GasLimit > 0 && gasUsed > block.GasLimit {
				result.addWarning(&Issue{
					Code:    Code_ImplausibleGas,
					Field:   field + ".gasUsed",
					Message: fmt.Sprintf("gas used %d exceeds the block gas limit %d", gasUsed, block.GasLimit),
				})
			}
		}

		if res.Value != "" && res.Value != "0x0" {
			if wei, ok := parseBigQuantity(res.Value); ok {
				if decimal.NewFromBigInt(wei, 0).GreaterThan(valueSanityBound) {
					result.addWarning(&Issue{
						Code:    Code_ImplausibleValue,
						Field:   field + ".value",
						Message: "transfer value exceeds 1000 native tokens",
					})
				}
			}
		}

		if res.Input != "" && utils.IsHexString(res.Input) && len(res.Input)%2 != 0 {
			result.addWarning(&Issue{
				Code:    Code_OddInputLength,
				Field:   field + ".input",
				Message: "input data has odd hex length",
			})
		}

		for j, call := range res.Calls {
			if call == nil {
				result.addWarning(&Issue{
					Code:    Code_MalformedNestedCall,
					Field:   fmt.Sprintf("%s.calls[%d]", field, j),
					Message: "nested call is missing its body",
				})
			}
		}
	}

	v.applyAnomalyHeuristics(result, items, failedCount, syntheticCount, gasValues, receiverCounts)
	return result
}

// applyAnomalyHeuristics adds the aggregate warnings. Outliers are
// collected into one warning per heuristic to keep output bounded.
func (v *TraceValidator) applyAnomalyHeuristics(
	result *ValidationResult,
	items []*tracetypes.RawTraceItem,
	failedCount int,
	syntheticCount int,
	gasValues []uint64,
	receiverCounts map[string]int,
) {
	n := len(items)
	if n == 0 {
		return
	}

	if rate := float64(failedCount) / float64(n); rate > failureRateThreshold {
		result.addWarning(&Issue{
			Code:    Code_HighFailureRate,
			Message: fmt.Sprintf("%d of %d traces failed (%.0f%%)", failedCount, n, rate*100),
			Context: map[string]string{"failedCount": fmt.Sprintf("%d", failedCount)},
		})
	}

	if len(gasValues) > 0 {
		var total uint64
		for _, g := range gasValues {
			total += g
		}
		mean := float64(total) / float64(len(gasValues))
		outliers := 0
		for _, g := range gasValues {
			if mean > 0 && float64(g) > mean*gasOutlierMultiplier {
				outliers++
			}
		}
		if outliers > 0 {
			result.addWarning(&Issue{
				Code:    Code_GasOutliers,
				Message: fmt.Sprintf("%d traces used more than %.0fx the mean gas", outliers, gasOutlierMultiplier),
				Context: map[string]string{"outlierCount": fmt.Sprintf("%d", outliers)},
			})
		}
	}

	if syntheticCount > 0 {
		result.addWarning(&Issue{
			Code:    Code_PlaceholderHashes,
			Message: fmt.Sprintf("%d traces carry synthetic placeholder hashes", syntheticCount),
		})
	}

	for addr, count := range receiverCounts {
		if share := float64(count) / float64(n); share > concentrationThreshold {
			ctx := map[string]string{"address": addr}
			msg := fmt.Sprintf("address %s receives %.0f%% of all calls", addr, share*100)
			if utils.AreAddressesEqual(addr, v.Config.RecognizedAddress) {
				ctx["recognized"] = "true"
				msg = fmt.Sprintf("recognized contract %s receives %.0f%% of all calls", addr, share*100)
			}
			result.addWarning(&Issue{
				Code:    Code_CallConcentration,
				Message: msg,
				Context: ctx,
			})
		}
	}
}

// ValidateProcessedAnalysis runs the structural and cross-consistency
// checks over processed output. Count and gas mismatches are warnings:
// the data is still usable.
func (v *TraceValidator) ValidateProcessedAnalysis(analysis *tracetypes.ProcessedTraceAnalysis) *ValidationResult {
	result := newResult()

	if analysis == nil {
		result.addError(&Issue{
			Code:    Code_MissingSummary,
			Message: "processed analysis is missing",
		})
		return result
	}
	if analysis.Summary == nil {
		result.addError(&Issue{
			Code:    Code_MissingSummary,
			Field:   "summary",
			Message: "processed analysis has no summary",
		})
		return result
	}
	if analysis.TransactionSummaries == nil {
		result.addError(&Issue{
			Code:    Code_MissingTransactions,
			Field:   "transactionSummaries",
			Message: "processed analysis has no transaction summaries array",
		})
		return result
	}

	if analysis.Summary.TransactionCount != len(analysis.TransactionSummaries) {
		result.addWarning(&Issue{
			Code:  Code_CountMismatch,
			Field: "summary.transactionCount",
			Message: fmt.Sprintf("summary says %d transactions but %d summaries are present",
				analysis.Summary.TransactionCount, len(analysis.TransactionSummaries)),
		})
	}

	var recomputed uint64
	for _, ts := range analysis.TransactionSummaries {
		recomputed += ts.GasUsed
	}
	diff := int64(analysis.Summary.TotalGasUsed) - int64(recomputed)
	if diff < 0 {
		diff = -diff
	}
	if diff > gasSumTolerance {
		result.addWarning(&Issue{
			Code:  Code_GasSumMismatch,
			Field: "summary.totalGasUsed",
			Message: fmt.Sprintf("summary total gas %d differs from recomputed %d by more than %d",
				analysis.Summary.TotalGasUsed, recomputed, gasSumTolerance),
		})
	}

	return result
}

func parseQuantity(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty quantity")
	}
	if strings.HasPrefix(s, "0x") {
		return hexutil.DecodeUint64(s)
	}
	var n uint64
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func parseBigQuantity(s string) (*big.Int, bool) {
	if s == "" {
		return nil, false
	}
	if strings.HasPrefix(s, "0x") {
		b, err := hexutil.DecodeBig(s)
		if err != nil {
			return nil, false
		}
		return b, true
	}
	b, ok := new(big.Int).SetString(s, 10)
	return b, ok
}
