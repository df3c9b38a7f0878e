package validator

import (
	"fmt"
	"testing"

	"github.com/pyusd-analytics/blocktracer/internal/config"
	"github.com/pyusd-analytics/blocktracer/internal/logger"
	"github.com/pyusd-analytics/blocktracer/pkg/tracetypes"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func setup() (*TraceValidator, *zap.Logger) {
	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: true})
	cfg := config.NewConfig()
	return NewTraceValidator(cfg, l), l
}

func hasIssue(issues []*Issue, code string) bool {
	for _, issue := range issues {
		if issue.Code == code {
			return true
		}
	}
	return false
}

func Test_ValidateIdentifier(t *testing.T) {
	v, _ := setup()

	t.Run("Accepts numbers, hex numbers, tags, and hashes", func(t *testing.T) {
		for _, id := range []any{19000000, "19000000", "0x121eac0", "latest", "finalized",
			"0xabcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789"} {
			result := v.ValidateIdentifier(id)
			assert.True(t, result.IsValid, fmt.Sprintf("%v", id))
		}
	})

	t.Run("Rejects negative block numbers", func(t *testing.T) {
		result := v.ValidateIdentifier(-1)
		assert.False(t, result.IsValid)
		assert.True(t, hasIssue(result.Errors, Code_NegativeBlockNumber))
	})

	t.Run("Rejects contract addresses with targeted guidance", func(t *testing.T) {
		result := v.ValidateIdentifier("0x6c3ea9036406852006290770bedfcaba0e23a0e8")
		assert.False(t, result.IsValid)
		assert.True(t, hasIssue(result.Errors, Code_InvalidIdentifier))
		assert.Contains(t, result.ErrorStrings()[0], "contract address")
	})

	t.Run("Rejects garbage", func(t *testing.T) {
		result := v.ValidateIdentifier("not-a-block")
		assert.False(t, result.IsValid)
		assert.True(t, hasIssue(result.Errors, Code_InvalidIdentifier))
	})

	t.Run("Warns on suspiciously large block numbers", func(t *testing.T) {
		result := v.ValidateIdentifier("999999999")
		assert.True(t, result.IsValid)
		assert.True(t, hasIssue(result.Warnings, Code_SuspiciousBlockNum))
	})
}

func validItem(i int) *tracetypes.RawTraceItem {
	return &tracetypes.RawTraceItem{
		TxHash: fmt.Sprintf("0x%064x", i),
		Result: &tracetypes.TraceCallResult{
			Type:    "CALL",
			From:    "0x1111111111111111111111111111111111111111",
			To:      "0x2222222222222222222222222222222222222222",
			GasUsed: "0x5208",
		},
	}
}

func Test_ValidateRawTraces(t *testing.T) {
	v, _ := setup()
	block := &tracetypes.BlockInfo{
		Number:   19000000,
		GasLimit: 30000000,
	}

	t.Run("Clean traces validate with no findings", func(t *testing.T) {
		items := make([]*tracetypes.RawTraceItem, 0, 10)
		for i := 0; i < 10; i++ {
			items = append(items, validItem(i))
		}
		result := v.ValidateRawTraces(items, block)
		assert.True(t, result.IsValid)
		assert.Empty(t, result.Errors)
		assert.False(t, hasIssue(result.Warnings, Code_HighFailureRate))
		assert.False(t, hasIssue(result.Warnings, Code_GasOutliers))
	})

	t.Run("Per-item problems are warnings, not errors", func(t *testing.T) {
		items := []*tracetypes.RawTraceItem{
			{TxHash: "garbage", Result: &tracetypes.TraceCallResult{From: "0xnotanaddress"}},
			{TxHash: fmt.Sprintf("0x%064x", 1)},
		}
		result := v.ValidateRawTraces(items, block)
		assert.True(t, result.IsValid)
		assert.True(t, hasIssue(result.Warnings, Code_MalformedHash))
		assert.True(t, hasIssue(result.Warnings, Code_MalformedAddress))
		assert.True(t, hasIssue(result.Warnings, Code_MissingResult))
	})

	t.Run("Flags a failure rate above twenty percent", func(t *testing.T) {
		items := make([]*tracetypes.RawTraceItem, 0, 10)
		for i := 0; i < 10; i++ {
			item := validItem(i)
			if i < 3 {
				item.Error = "execution reverted"
			}
			items = append(items, item)
		}
		result := v.ValidateRawTraces(items, block)
		assert.True(t, hasIssue(result.Warnings, Code_HighFailureRate))
	})

	t.Run("Two failures in ten stays quiet", func(t *testing.T) {
		items := make([]*tracetypes.RawTraceItem, 0, 10)
		for i := 0; i < 10; i++ {
			item := validItem(i)
			if i < 2 {
				item.Error = "execution reverted"
			}
			items = append(items, item)
		}
		result := v.ValidateRawTraces(items, block)
		assert.False(t, hasIssue(result.Warnings, Code_HighFailureRate))
	})

	t.Run("Flags gas outliers beyond five times the mean", func(t *testing.T) {
		items := make([]*tracetypes.RawTraceItem, 0, 10)
		for i := 0; i < 10; i++ {
			item := validItem(i)
			if i == 0 {
				// ~48x the mean of the others.
				item.Result.GasUsed = "0xf4240"
			}
			items = append(items, item)
		}
		result := v.ValidateRawTraces(items, block)
		assert.True(t, hasIssue(result.Warnings, Code_GasOutliers))
	})

	t.Run("Flags gas used above the block gas limit", func(t *testing.T) {
		item := validItem(0)
		item.Result.GasUsed = "0x2faf080" // 50M > 30M limit
		result := v.ValidateRawTraces([]*tracetypes.RawTraceItem{item}, block)
		assert.True(t, hasIssue(result.Warnings, Code_ImplausibleGas))
	})

	t.Run("Flags transfers above the value sanity bound", func(t *testing.T) {
		item := validItem(0)
		// 1001 ether in wei.
		item.Result.Value = "0x3643aa647986040000"
		result := v.ValidateRawTraces([]*tracetypes.RawTraceItem{item}, block)
		assert.True(t, hasIssue(result.Warnings, Code_ImplausibleValue))
	})

	t.Run("Flags synthetic placeholder hashes", func(t *testing.T) {
		items := []*tracetypes.RawTraceItem{
			validItem(0),
			{TxHash: "tx_1", SyntheticHash: true},
		}
		result := v.ValidateRawTraces(items, block)
		assert.True(t, hasIssue(result.Warnings, Code_PlaceholderHashes))
	})

	t.Run("Flags call concentration on the recognized contract", func(t *testing.T) {
		items := make([]*tracetypes.RawTraceItem, 0, 10)
		for i := 0; i < 10; i++ {
			item := validItem(i)
			if i < 9 {
				item.Result.To = config.DefaultRecognizedAddress
			}
			items = append(items, item)
		}
		result := v.ValidateRawTraces(items, block)
		assert.True(t, hasIssue(result.Warnings, Code_CallConcentration))

		found := false
		for _, issue := range result.Warnings {
			if issue.Code == Code_CallConcentration && issue.Context["recognized"] == "true" {
				found = true
			}
		}
		assert.True(t, found)
	})

	t.Run("Empty trace set validates", func(t *testing.T) {
		result := v.ValidateRawTraces([]*tracetypes.RawTraceItem{}, block)
		assert.True(t, result.IsValid)
		assert.Empty(t, result.Warnings)
	})
}

func Test_ValidateProcessedAnalysis(t *testing.T) {
	v, _ := setup()

	valid := func() *tracetypes.ProcessedTraceAnalysis {
		return &tracetypes.ProcessedTraceAnalysis{
			Summary: &tracetypes.TraceSummary{
				TransactionCount: 2,
				TotalGasUsed:     42000,
			},
			TransactionSummaries: []*tracetypes.TransactionSummary{
				{TxHash: "0xaa", GasUsed: 21000},
				{TxHash: "0xbb", GasUsed: 21000},
			},
		}
	}

	t.Run("Consistent analysis validates", func(t *testing.T) {
		result := v.ValidateProcessedAnalysis(valid())
		assert.True(t, result.IsValid)
		assert.Empty(t, result.Warnings)
	})

	t.Run("Missing structures are errors", func(t *testing.T) {
		result := v.ValidateProcessedAnalysis(nil)
		assert.False(t, result.IsValid)
		assert.True(t, hasIssue(result.Errors, Code_MissingSummary))

		a := valid()
		a.Summary = nil
		result = v.ValidateProcessedAnalysis(a)
		assert.False(t, result.IsValid)

		a = valid()
		a.TransactionSummaries = nil
		result = v.ValidateProcessedAnalysis(a)
		assert.False(t, result.IsValid)
		assert.True(t, hasIssue(result.Errors, Code_MissingTransactions))
	})

	t.Run("Count mismatch is a warning", func(t *testing.T) {
		a := valid()
		a.Summary.TransactionCount = 5
		result := v.ValidateProcessedAnalysis(a)
		assert.True(t, result.IsValid)
		assert.True(t, hasIssue(result.Warnings, Code_CountMismatch))
	})

	t.Run("Gas sum mismatch beyond tolerance is a warning", func(t *testing.T) {
		a := valid()
		a.Summary.TotalGasUsed = 50000
		result := v.ValidateProcessedAnalysis(a)
		assert.True(t, result.IsValid)
		assert.True(t, hasIssue(result.Warnings, Code_GasSumMismatch))
	})

	t.Run("Gas sum within tolerance stays quiet", func(t *testing.T) {
		a := valid()
		a.Summary.TotalGasUsed = 42500
		result := v.ValidateProcessedAnalysis(a)
		assert.False(t, hasIssue(result.Warnings, Code_GasSumMismatch))
	})
}

func Test_GenerateValidationReport(t *testing.T) {
	v, _ := setup()

	t.Run("Any error forces error status", func(t *testing.T) {
		bad := v.ValidateIdentifier(-1)
		good := v.ValidateIdentifier("latest")
		report := GenerateValidationReport(good, bad, nil)
		assert.Equal(t, ReportStatus_Error, report.OverallStatus)
		assert.Equal(t, 1, report.ErrorCount)
		assert.Len(t, report.Results, 2)
	})

	t.Run("Warnings without errors force warning status", func(t *testing.T) {
		warned := v.ValidateIdentifier("999999999")
		report := GenerateValidationReport(warned)
		assert.Equal(t, ReportStatus_Warning, report.OverallStatus)
	})

	t.Run("Clean results are valid", func(t *testing.T) {
		report := GenerateValidationReport(v.ValidateIdentifier("latest"))
		assert.Equal(t, ReportStatus_Valid, report.OverallStatus)
	})
}
