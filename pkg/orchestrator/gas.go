package orchestrator

import (
	"context"

	"github.com/pyusd-analytics/blocktracer/pkg/tracetypes"
	"github.com/shopspring/decimal"
)

// StaticGasAnalyzer prices a block's total gas at a fixed gas price. Good
// enough for ballpark cost figures without an eth_gasPrice dependency.
type StaticGasAnalyzer struct {
	GasPriceWei decimal.Decimal
}

func NewStaticGasAnalyzer(gasPriceWei decimal.Decimal) *StaticGasAnalyzer {
	return &StaticGasAnalyzer{
		GasPriceWei: gasPriceWei,
	}
}

func (a *StaticGasAnalyzer) AnalyzeGasCosts(ctx context.Context, analysis *tracetypes.ProcessedTraceAnalysis) (*tracetypes.GasCostAnalysis, error) {
	out := &tracetypes.GasCostAnalysis{
		GasPriceWei: a.GasPriceWei,
	}
	if analysis == nil || analysis.Summary == nil {
		return out, nil
	}

	out.TotalGasUsed = analysis.Summary.TotalGasUsed
	if analysis.Summary.TransactionCount > 0 {
		out.AvgGasPerTx = float64(out.TotalGasUsed) / float64(analysis.Summary.TransactionCount)
	}

	totalGas := decimal.NewFromUint64(out.TotalGasUsed)
	costWei := totalGas.Mul(a.GasPriceWei)
	out.EstimatedCostEth = costWei.Shift(-18)
	return out, nil
}
