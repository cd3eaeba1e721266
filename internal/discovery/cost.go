package discovery

import "strings"

// Published per-MTok prices. Cache reads are billed at a tenth of the
// input rate, cache writes at a quarter.
const (
	cacheReadFactor  = 0.1
	cacheWriteFactor = 0.25
	perMillion       = 1_000_000.0
)

func modelPricing(model string) (inputPerMTok, outputPerMTok float64) {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "opus"):
		return 15, 75
	case strings.Contains(lower, "haiku"):
		return 0.8, 4
	default:
		return 3, 15
	}
}

// EstimatedCostUSD prices the session's accumulated token usage against
// the session's model. Sessions that switched models mid-conversation are
// priced entirely at the last model seen.
func (s Session) EstimatedCostUSD() float64 {
	in, out := modelPricing(s.Model)
	cost := float64(s.InputTokens) / perMillion * in
	cost += float64(s.OutputTokens) / perMillion * out
	cost += float64(s.CacheReadTokens) / perMillion * in * cacheReadFactor
	cost += float64(s.CacheCreationTokens) / perMillion * in * cacheWriteFactor
	return cost
}

// TotalTokens is the sum of all token classes, for display.
func (s Session) TotalTokens() int64 {
	return s.InputTokens + s.OutputTokens + s.CacheReadTokens + s.CacheCreationTokens
}
