package llm

// Default per-1000-token prices.
const (
	DefaultPriceInPer1K  = 0.0005
	DefaultPriceOutPer1K = 0.0015
)

// CostEstimator converts token usage into a monetary cost.
type CostEstimator struct {
	InPer1K  float64
	OutPer1K float64
}

// DefaultCostEstimator uses the default per-1000-token prices.
func DefaultCostEstimator() CostEstimator {
	return CostEstimator{InPer1K: DefaultPriceInPer1K, OutPer1K: DefaultPriceOutPer1K}
}

// Estimate returns the cost of a call with the given token counts.
func (c CostEstimator) Estimate(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1000.0*c.InPer1K + float64(outputTokens)/1000.0*c.OutPer1K
}
