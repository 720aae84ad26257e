// Package stream implements the Stream Relay and Transformer (C10/C11): the
// component that drives a streaming completion's SSE lifecycle and folds
// every provider's event shape into the single unified chunk the gateway
// returns to clients.
package stream

import (
	"strings"
	"time"

	"github.com/tributary-ai/llm-router-waf/internal/types"
)

// anthropicFinishReasons maps Claude's stop_reason vocabulary onto the
// OpenAI-shaped finish_reason the gateway returns to clients.
var anthropicFinishReasons = map[string]string{
	"end_turn":      "stop",
	"stop_sequence": "stop",
	"max_tokens":    "length",
	"tool_use":      "tool_calls",
}

var cohereFinishReasons = map[string]string{
	"COMPLETE":   "stop",
	"MAX_TOKENS": "length",
	"ERROR":      "stop",
}

var googleFinishReasons = map[string]string{
	"STOP":       "stop",
	"MAX_TOKENS": "length",
	"SAFETY":     "content_filter",
	"RECITATION": "content_filter",
}

// openAIFinishReasons already speak the gateway's own vocabulary and pass
// through unchanged.
var openAIFinishReasons = map[string]bool{
	"stop":           true,
	"length":         true,
	"tool_calls":     true,
	"function_call":  true,
	"content_filter": true,
}

// NormalizeFinishReason maps any upstream provider's finish-reason string
// onto the gateway's OpenAI-shaped vocabulary, per the exhaustive table in
// spec §4.7. A null/empty reason mid-stream stays empty; anything outside
// every known table collapses to "stop" rather than leaking a
// provider-specific string to clients.
func NormalizeFinishReason(reason string) string {
	if reason == "" {
		return ""
	}
	if openAIFinishReasons[reason] {
		return reason
	}
	if mapped, ok := anthropicFinishReasons[reason]; ok {
		return mapped
	}
	if mapped, ok := cohereFinishReasons[reason]; ok {
		return mapped
	}
	if mapped, ok := googleFinishReasons[reason]; ok {
		return mapped
	}
	return "stop"
}

// charsPerToken approximates a model family's tokenizer density. These are
// documented approximations for estimating usage when a provider doesn't
// report a real token count mid-stream, not a real tokenizer.
func charsPerToken(model string) float64 {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "gpt-4"):
		return 3.5
	case strings.Contains(m, "gpt-3.5"):
		return 4.0
	case strings.Contains(m, "claude"):
		return 3.8
	default:
		return 4.0
	}
}

// EstimateTokenCount approximates the token count of one text delta for a
// given model, used to grow the completion_tokens accumulator as chunks
// arrive.
func EstimateTokenCount(text, model string) int {
	if text == "" {
		return 0
	}
	n := int(float64(len(text))/charsPerToken(model) + 0.5)
	if n < 1 {
		n = 1
	}
	return n
}

// messageCharCount sums the text characters of a message's content,
// regardless of whether it's a plain string or multimodal content parts.
func messageCharCount(content interface{}) int {
	switch v := content.(type) {
	case string:
		return len(v)
	case []types.ContentPart:
		n := 0
		for _, p := range v {
			if p.Type == "text" {
				n += len(p.Text)
			}
		}
		return n
	default:
		return 0
	}
}

// EstimatePromptTokens precomputes a prompt_tokens estimate for a request
// before the provider call opens, per spec §4.7 step 2 — used as the
// fallback when the provider never reports a real prompt token count.
// Adds the documented 3-token overhead per message.
func EstimatePromptTokens(req *types.ChatRequest) int {
	if req == nil {
		return 0
	}
	ratio := charsPerToken(req.Model)
	chars := 0
	for _, msg := range req.Messages {
		chars += messageCharCount(msg.Content)
	}
	overhead := 3 * len(req.Messages)
	return int(float64(chars)/ratio+0.5) + overhead
}

// RepairChunk fills in the OpenAI-shaped fields spec §4.7 requires on every
// unified chunk — id, object, created, model, choices — when a provider's
// own conversion left one unset. The delta itself is never altered.
func RepairChunk(chunk *types.ChatChunk, req *types.ChatRequest) {
	if chunk.ID == "" {
		chunk.ID = req.ID
	}
	if chunk.Object == "" {
		chunk.Object = "chat.completion.chunk"
	}
	if chunk.Created == 0 {
		chunk.Created = time.Now().Unix()
	}
	if chunk.Model == "" {
		chunk.Model = req.Model
	}
	if chunk.Choices == nil {
		chunk.Choices = []types.ChoiceChunk{{Index: 0, Delta: &types.Message{}}}
	}
}

// ExtractText pulls a text delta out of a generically-shaped provider
// payload, trying each of the shapes named in spec §4.7 in order. Used by
// providers whose wire format isn't already decoded into a typed struct
// (e.g. a raw SSE JSON payload from an unrecognized or custom backend).
func ExtractText(raw map[string]interface{}) (string, bool) {
	if choices, ok := raw["choices"].([]interface{}); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]interface{}); ok {
			if delta, ok := choice["delta"].(map[string]interface{}); ok {
				if text, ok := delta["content"].(string); ok {
					return text, true
				}
			}
		}
	}
	if content, ok := raw["content"].([]interface{}); ok && len(content) > 0 {
		if block, ok := content[0].(map[string]interface{}); ok {
			if text, ok := block["text"].(string); ok {
				return text, true
			}
		}
	}
	if text, ok := raw["text"].(string); ok {
		return text, true
	}
	if content, ok := raw["content"].(string); ok {
		return content, true
	}
	return "", false
}
