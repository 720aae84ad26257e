package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tributary-ai/llm-router-waf/internal/types"
)

func TestNormalizeFinishReason(t *testing.T) {
	tests := []struct {
		name   string
		reason string
		want   string
	}{
		{"empty stays empty", "", ""},
		{"openai vocabulary passes through", "tool_calls", "tool_calls"},
		{"anthropic end_turn maps to stop", "end_turn", "stop"},
		{"anthropic max_tokens maps to length", "max_tokens", "length"},
		{"anthropic tool_use maps to tool_calls", "tool_use", "tool_calls"},
		{"cohere COMPLETE maps to stop", "COMPLETE", "stop"},
		{"google SAFETY maps to content_filter", "SAFETY", "content_filter"},
		{"unknown reason collapses to stop", "some_custom_reason", "stop"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeFinishReason(tt.reason))
		})
	}
}

func TestEstimateTokenCount(t *testing.T) {
	assert.Equal(t, 0, EstimateTokenCount("", "gpt-4o"))
	assert.Greater(t, EstimateTokenCount("hello world", "gpt-4o"), 0)
	assert.GreaterOrEqual(t, EstimateTokenCount("a", "claude-3-5-sonnet"), 1, "even a single char rounds up to at least one token")
}

func TestEstimatePromptTokens_NilRequest(t *testing.T) {
	assert.Equal(t, 0, EstimatePromptTokens(nil))
}

func TestEstimatePromptTokens_AddsPerMessageOverhead(t *testing.T) {
	req := &types.ChatRequest{
		Model: "gpt-4o",
		Messages: []types.Message{
			{Role: "user", Content: "hi"},
		},
	}
	withOne := EstimatePromptTokens(req)

	req.Messages = append(req.Messages, types.Message{Role: "user", Content: "hi"})
	withTwo := EstimatePromptTokens(req)

	assert.Greater(t, withTwo, withOne, "an extra identical message should add its own per-message overhead")
}

func TestEstimatePromptTokens_CountsMultimodalTextOnly(t *testing.T) {
	req := &types.ChatRequest{
		Model: "gpt-4o",
		Messages: []types.Message{
			{
				Role: "user",
				Content: []types.ContentPart{
					{Type: "text", Text: "describe this image"},
					{Type: "image_url", ImageURL: &types.ImageURL{URL: "https://example.com/x.png"}},
				},
			},
		},
	}
	tokens := EstimatePromptTokens(req)
	assert.Greater(t, tokens, 0)
}

func TestRepairChunk_FillsMissingFields(t *testing.T) {
	req := &types.ChatRequest{ID: "req-1", Model: "gpt-4o"}
	chunk := &types.ChatChunk{}

	RepairChunk(chunk, req)

	assert.Equal(t, "req-1", chunk.ID)
	assert.Equal(t, "chat.completion.chunk", chunk.Object)
	assert.NotZero(t, chunk.Created)
	assert.Equal(t, "gpt-4o", chunk.Model)
	assert.Len(t, chunk.Choices, 1)
}

func TestRepairChunk_LeavesPopulatedFieldsAlone(t *testing.T) {
	req := &types.ChatRequest{ID: "req-1", Model: "gpt-4o"}
	chunk := &types.ChatChunk{ID: "already-set", Model: "already-set-model"}

	RepairChunk(chunk, req)

	assert.Equal(t, "already-set", chunk.ID)
	assert.Equal(t, "already-set-model", chunk.Model)
}

func TestExtractText_OpenAIShape(t *testing.T) {
	raw := map[string]interface{}{
		"choices": []interface{}{
			map[string]interface{}{
				"delta": map[string]interface{}{"content": "hello"},
			},
		},
	}
	text, ok := ExtractText(raw)
	assert.True(t, ok)
	assert.Equal(t, "hello", text)
}

func TestExtractText_AnthropicShape(t *testing.T) {
	raw := map[string]interface{}{
		"content": []interface{}{
			map[string]interface{}{"text": "hello from claude"},
		},
	}
	text, ok := ExtractText(raw)
	assert.True(t, ok)
	assert.Equal(t, "hello from claude", text)
}

func TestExtractText_FlatTextField(t *testing.T) {
	text, ok := ExtractText(map[string]interface{}{"text": "flat"})
	assert.True(t, ok)
	assert.Equal(t, "flat", text)
}

func TestExtractText_FlatContentField(t *testing.T) {
	text, ok := ExtractText(map[string]interface{}{"content": "flat content"})
	assert.True(t, ok)
	assert.Equal(t, "flat content", text)
}

func TestExtractText_NoMatchingShape(t *testing.T) {
	text, ok := ExtractText(map[string]interface{}{"unrelated": 1})
	assert.False(t, ok)
	assert.Empty(t, text)
}
