package metrics

import "strings"

// Price is USD per million tokens.
type Price struct {
	Input  float64
	Output float64
}

var pricing = map[string]Price{
	"claude-sonnet-4": {Input: 3.00, Output: 15.00},
	"claude-haiku":    {Input: 0.25, Output: 1.25},
	"gpt-4":           {Input: 30.00, Output: 60.00},
	"gpt-3.5-turbo":   {Input: 0.50, Output: 1.50},
}

// Cost estimates the USD cost of a call. Model names are matched by prefix
// so dated snapshots price like their family; unknown models cost zero.
func Cost(model string, inputTokens, outputTokens int) float64 {
	p, ok := lookupPrice(model)
	if !ok {
		return 0
	}
	return (float64(inputTokens)*p.Input + float64(outputTokens)*p.Output) / 1_000_000
}

func lookupPrice(model string) (Price, bool) {
	if p, ok := pricing[model]; ok {
		return p, true
	}
	best := ""
	for name := range pricing {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return Price{}, false
	}
	return pricing[best], true
}

// RecordLLMCall updates request, token and cost counters for one call.
func RecordLLMCall(provider, model, status string, inputTokens, outputTokens int) {
	LLMRequests.WithLabelValues(provider, model, status).Inc()
	if inputTokens > 0 {
		LLMTokens.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		LLMTokens.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	}
	if cost := Cost(model, inputTokens, outputTokens); cost > 0 {
		LLMCost.WithLabelValues(provider, model).Add(cost)
	}
}
