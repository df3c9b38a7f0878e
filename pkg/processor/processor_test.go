package processor

import (
	"context"
	"testing"

	"github.com/pyusd-analytics/blocktracer/internal/config"
	"github.com/pyusd-analytics/blocktracer/internal/logger"
	"github.com/pyusd-analytics/blocktracer/pkg/tracetypes"
	"github.com/stretchr/testify/assert"
)

func setup() *TraceProcessor {
	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: true})
	cfg := config.NewConfig()
	return NewTraceProcessor(cfg, l)
}

func Test_Process(t *testing.T) {
	p := setup()
	block := &tracetypes.BlockInfo{Number: 19000000}

	t.Run("Summarizes transactions, transfers, and internal calls", func(t *testing.T) {
		items := []*tracetypes.RawTraceItem{
			{
				TxHash: "0xaa",
				Result: &tracetypes.TraceCallResult{
					Type:    "CALL",
					From:    "0x1111111111111111111111111111111111111111",
					To:      "0x2222222222222222222222222222222222222222",
					Value:   "0xde0b6b3a7640000", // 1 ether
					GasUsed: "0x5208",
					Calls: []*tracetypes.TraceCallResult{
						{
							Type:    "DELEGATECALL",
							From:    "0x2222222222222222222222222222222222222222",
							To:      "0x3333333333333333333333333333333333333333",
							GasUsed: "0x1388",
						},
					},
				},
			},
			{
				TxHash: "0xbb",
				Result: &tracetypes.TraceCallResult{
					Type:    "CALL",
					From:    "0x4444444444444444444444444444444444444444",
					To:      "0x5555555555555555555555555555555555555555",
					GasUsed: "0x5208",
				},
			},
		}

		analysis, err := p.Process(context.Background(), block, items)
		assert.Nil(t, err)

		assert.Equal(t, uint64(19000000), analysis.Summary.BlockNumber)
		assert.Equal(t, 2, analysis.Summary.TransactionCount)
		assert.Equal(t, 0, analysis.Summary.FailedCount)
		assert.Equal(t, uint64(42000), analysis.Summary.TotalGasUsed)
		assert.Equal(t, 1, analysis.Summary.InternalCallCount)

		assert.Len(t, analysis.TransactionSummaries, 2)
		assert.Equal(t, 2, analysis.TransactionSummaries[0].CallCount)
		assert.Equal(t, "1000000000000000000", analysis.TransactionSummaries[0].ValueWei)

		assert.Len(t, analysis.Transfers, 1)
		assert.Equal(t, "1", analysis.Transfers[0].Value.String())
		assert.Equal(t, 0, analysis.Transfers[0].Depth)

		assert.Len(t, analysis.InternalCalls, 1)
		assert.Equal(t, "DELEGATECALL", analysis.InternalCalls[0].CallType)
		assert.Equal(t, 1, analysis.InternalCalls[0].Depth)
		assert.Equal(t, uint64(5000), analysis.InternalCalls[0].GasUsed)
	})

	t.Run("Counts failures from item and frame errors", func(t *testing.T) {
		items := []*tracetypes.RawTraceItem{
			{TxHash: "0xaa", Error: "dropped"},
			{TxHash: "0xbb", Result: &tracetypes.TraceCallResult{Error: "execution reverted"}},
			{TxHash: "0xcc", Result: &tracetypes.TraceCallResult{GasUsed: "0x5208"}},
		}

		analysis, err := p.Process(context.Background(), block, items)
		assert.Nil(t, err)
		assert.Equal(t, 2, analysis.Summary.FailedCount)
		assert.True(t, analysis.TransactionSummaries[0].Failed)
		assert.True(t, analysis.TransactionSummaries[1].Failed)
		assert.False(t, analysis.TransactionSummaries[2].Failed)
	})

	t.Run("Flags recognized contract interactions at any depth", func(t *testing.T) {
		items := []*tracetypes.RawTraceItem{
			{
				TxHash: "0xaa",
				Result: &tracetypes.TraceCallResult{
					From: "0x1111111111111111111111111111111111111111",
					To:   "0x2222222222222222222222222222222222222222",
					Calls: []*tracetypes.TraceCallResult{
						{
							From: "0x2222222222222222222222222222222222222222",
							To:   config.DefaultRecognizedAddress,
						},
					},
				},
			},
		}

		analysis, err := p.Process(context.Background(), block, items)
		assert.Nil(t, err)
		assert.Equal(t, 1, analysis.Summary.RecognizedInteractions)
	})

	t.Run("Empty input yields an empty but well-formed analysis", func(t *testing.T) {
		analysis, err := p.Process(context.Background(), block, []*tracetypes.RawTraceItem{})
		assert.Nil(t, err)
		assert.NotNil(t, analysis.Summary)
		assert.NotNil(t, analysis.TransactionSummaries)
		assert.NotNil(t, analysis.Transfers)
		assert.NotNil(t, analysis.InternalCalls)
		assert.Equal(t, 0, analysis.Summary.TransactionCount)
	})
}

func Test_Clone(t *testing.T) {
	p := setup()
	block := &tracetypes.BlockInfo{Number: 1}

	items := []*tracetypes.RawTraceItem{
		{
			TxHash: "0xaa",
			Result: &tracetypes.TraceCallResult{
				From:    "0x1111111111111111111111111111111111111111",
				To:      "0x2222222222222222222222222222222222222222",
				Value:   "0xde0b6b3a7640000",
				GasUsed: "0x5208",
			},
		},
	}

	analysis, err := p.Process(context.Background(), block, items)
	assert.Nil(t, err)

	clone := analysis.Clone()
	clone.Summary.TotalGasUsed = 0
	clone.TransactionSummaries[0].GasUsed = 0
	clone.Transfers[0].From = "mutated"

	assert.Equal(t, uint64(21000), analysis.Summary.TotalGasUsed)
	assert.Equal(t, uint64(21000), analysis.TransactionSummaries[0].GasUsed)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", analysis.Transfers[0].From)
}
