package stream

import "github.com/tributary-ai/llm-router-waf/internal/types"

// Accumulator tracks a single streaming request's token usage as chunks
// arrive, per spec §4.7 step 2/5/6: completion_tokens grows with every text
// delta, prompt_tokens falls back to a precomputed estimate unless the
// provider reports a real count, and whatever the provider reports in its
// own usage field always wins over the estimate.
type Accumulator struct {
	requestID        string
	model            string
	promptEstimate   int
	completionTokens int
	serverUsage      *types.Usage
}

// NewAccumulator seeds the accumulator with the request's id, model (for
// per-delta token estimation), and precomputed prompt token estimate.
func NewAccumulator(requestID, model string, promptEstimate int) *Accumulator {
	return &Accumulator{requestID: requestID, model: model, promptEstimate: promptEstimate}
}

// Observe folds one provider chunk into the running total: any reported
// usage block is captured, and every assistant text delta adds to the
// estimated completion token count.
func (a *Accumulator) Observe(chunk *types.ChatChunk) {
	if chunk.Usage != nil {
		u := *chunk.Usage
		a.serverUsage = &u
	}
	for _, choice := range chunk.Choices {
		if choice.Delta == nil {
			continue
		}
		if text, ok := choice.Delta.Content.(string); ok && text != "" {
			a.completionTokens += EstimateTokenCount(text, a.model)
		}
	}
}

// Finalize produces the usage block for the terminal chunk: the
// server-reported usage if the provider ever sent one, else the
// accumulated estimate.
func (a *Accumulator) Finalize() *types.Usage {
	if a.serverUsage != nil {
		if a.serverUsage.TotalTokens == 0 {
			a.serverUsage.TotalTokens = a.serverUsage.PromptTokens + a.serverUsage.CompletionTokens
		}
		return a.serverUsage
	}
	return &types.Usage{
		PromptTokens:     a.promptEstimate,
		CompletionTokens: a.completionTokens,
		TotalTokens:      a.promptEstimate + a.completionTokens,
	}
}
