package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tributary-ai/llm-router-waf/internal/types"
)

func TestAccumulator_Finalize_NoChunksObserved(t *testing.T) {
	acc := NewAccumulator("req-1", "gpt-4o", 42)
	usage := acc.Finalize()

	assert.Equal(t, 42, usage.PromptTokens)
	assert.Equal(t, 0, usage.CompletionTokens)
	assert.Equal(t, 42, usage.TotalTokens)
}

func TestAccumulator_Observe_GrowsCompletionEstimate(t *testing.T) {
	acc := NewAccumulator("req-1", "gpt-4o", 10)

	acc.Observe(&types.ChatChunk{
		Choices: []types.ChoiceChunk{{Delta: &types.Message{Content: "hello "}}},
	})
	acc.Observe(&types.ChatChunk{
		Choices: []types.ChoiceChunk{{Delta: &types.Message{Content: "world"}}},
	})

	usage := acc.Finalize()
	assert.Greater(t, usage.CompletionTokens, 0)
	assert.Equal(t, 10, usage.PromptTokens)
	assert.Equal(t, 10+usage.CompletionTokens, usage.TotalTokens)
}

func TestAccumulator_ServerUsage_OverridesEstimate(t *testing.T) {
	acc := NewAccumulator("req-1", "gpt-4o", 999)

	acc.Observe(&types.ChatChunk{
		Choices: []types.ChoiceChunk{{Delta: &types.Message{Content: "ignored for usage purposes"}}},
	})
	acc.Observe(&types.ChatChunk{
		Usage: &types.Usage{PromptTokens: 5, CompletionTokens: 7},
	})

	usage := acc.Finalize()
	assert.Equal(t, 5, usage.PromptTokens)
	assert.Equal(t, 7, usage.CompletionTokens)
	assert.Equal(t, 12, usage.TotalTokens, "TotalTokens should be derived when the provider didn't set it")
}

func TestAccumulator_ServerUsage_RespectsReportedTotal(t *testing.T) {
	acc := NewAccumulator("req-1", "gpt-4o", 0)

	acc.Observe(&types.ChatChunk{
		Usage: &types.Usage{PromptTokens: 5, CompletionTokens: 7, TotalTokens: 100},
	})

	usage := acc.Finalize()
	assert.Equal(t, 100, usage.TotalTokens, "a provider-reported total should never be recomputed")
}

func TestAccumulator_Observe_IgnoresEmptyAndNonStringDeltas(t *testing.T) {
	acc := NewAccumulator("req-1", "gpt-4o", 0)

	acc.Observe(&types.ChatChunk{Choices: []types.ChoiceChunk{{Delta: nil}}})
	acc.Observe(&types.ChatChunk{Choices: []types.ChoiceChunk{{Delta: &types.Message{Content: ""}}}})
	acc.Observe(&types.ChatChunk{Choices: []types.ChoiceChunk{{Delta: &types.Message{Content: []types.ContentPart{{Type: "text", Text: "x"}}}}}})

	usage := acc.Finalize()
	assert.Equal(t, 0, usage.CompletionTokens)
}
