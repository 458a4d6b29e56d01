package llm

import "fmt"

// DeepSeek token pricing, USD per million tokens.
const (
	MaxContextLength = 128_000

	PricePer1MInputTokensCacheHitUSD  = 0.028
	PricePer1MInputTokensCacheMissUSD = 0.28
	PricePer1MOutputTokensUSD         = 0.42

	tokensPriceDivisor = 1_000_000.0
)

// InputCostCacheHitUSD prices prompt tokens served from the cache
func InputCostCacheHitUSD(tokens int) float64 {
	return float64(tokens) * PricePer1MInputTokensCacheHitUSD / tokensPriceDivisor
}

// InputCostCacheMissUSD prices prompt tokens that missed the cache
func InputCostCacheMissUSD(tokens int) float64 {
	return float64(tokens) * PricePer1MInputTokensCacheMissUSD / tokensPriceDivisor
}

// OutputCostUSD prices completion tokens
func OutputCostUSD(tokens int) float64 {
	return float64(tokens) * PricePer1MOutputTokensUSD / tokensPriceDivisor
}

// RequestCostUSD reconstructs the USD cost of one request from its
// usage split.
func RequestCostUSD(cacheHitTokens, cacheMissTokens, completionTokens int) float64 {
	return InputCostCacheHitUSD(cacheHitTokens) +
		InputCostCacheMissUSD(cacheMissTokens) +
		OutputCostUSD(completionTokens)
}

// FormatUSD renders a cost with the precision used in usage reports
func FormatUSD(value float64) string {
	return fmt.Sprintf("$%.6f", value)
}
