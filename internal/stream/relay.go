package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/llm-router-waf/internal/costtable"
	"github.com/tributary-ai/llm-router-waf/internal/gatewayerr"
	"github.com/tributary-ai/llm-router-waf/internal/security"
	"github.com/tributary-ai/llm-router-waf/internal/telemetry"
	"github.com/tributary-ai/llm-router-waf/internal/types"
)

// OpenFunc opens a provider's stream for the request, via the resilience
// stack (circuit breaker + retry + failover), per spec §4.7 step 4. It
// returns the name of the provider that ended up serving the request
// alongside the channel, so the Relay can key telemetry off the provider
// that actually streamed rather than the one the router initially picked.
type OpenFunc func(ctx context.Context) (chunks <-chan *types.ChatChunk, provider string, err error)

// Relay drives the eight-step handle_stream lifecycle from spec §4.7: SSE
// framing, the concurrent rate-limit slot, the usage accumulator, and
// translating every provider event into one unified wire chunk.
type Relay struct {
	telemetry   *telemetry.Bus
	rateLimiter *security.GatewayRateLimiter
	costs       *costtable.Table
	logger      *logrus.Logger
}

// NewRelay builds a Relay. rateLimiter may be nil when rate limiting is
// disabled, in which case the concurrent slot step is skipped.
func NewRelay(bus *telemetry.Bus, rateLimiter *security.GatewayRateLimiter, costs *costtable.Table, logger *logrus.Logger) *Relay {
	return &Relay{telemetry: bus, rateLimiter: rateLimiter, costs: costs, logger: logger}
}

// Serve runs the full lifecycle against an already-routed request and
// writes directly to w. reqCtx carries request cancellation and the auth
// info used to key the concurrent rate-limit slot.
func (r *Relay) Serve(w http.ResponseWriter, reqCtx context.Context, req *types.ChatRequest, metadata *types.RouterMetadata, open OpenFunc) {
	start := time.Now()

	// step 1: prepare the response — headers must go out before the first
	// byte of any provider event, so the client sees the stream start even
	// if the first chunk is slow to arrive.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	// step 2: usage accumulator, keyed by request id, seeded with a
	// precomputed prompt_tokens estimate.
	acc := NewAccumulator(req.ID, req.Model, EstimatePromptTokens(req))

	// step 3: acquire the concurrent slot for the life of the stream.
	slotKey := rateLimitKey(reqCtx)
	if r.rateLimiter != nil && slotKey != "" {
		r.rateLimiter.StartRequest(slotKey)
	}
	r.telemetry.StreamStarted()

	released := false
	release := func() {
		// step 8: release the slot and finalize stream telemetry exactly
		// once, regardless of which exit path got here.
		if released {
			return
		}
		released = true
		if r.rateLimiter != nil && slotKey != "" {
			r.rateLimiter.FinishRequest(slotKey)
		}
		r.telemetry.StreamFinished()
	}
	defer release()

	// step 4: open the provider stream via the resilience stack.
	chunks, provider, err := open(reqCtx)
	if err != nil {
		gwErr := gatewayerr.Normalize(err, metadata.Provider, 0, "")
		r.telemetry.RecordError(metadata.Provider, string(gwErr.Kind))
		r.emitError(w, flusher, gwErr)
		r.telemetry.RecordRequest(metadata.Provider, "chat.completions.stream", fmt.Sprintf("%d", gwErr.Status), time.Since(start))
		return
	}
	metadata.Provider = provider
	r.emitMetadataChunk(w, flusher, req, metadata)

	var finishReason string
	for chunk := range chunks {
		// step 5: translate + emit, strictly in arrival order. A provider
		// that surfaces a mid-stream error (an SSE error event, or a
		// transport failure) signals it via chunk.Err rather than a
		// normal delta; per spec §4.7 step 7, that ends the stream with
		// an error envelope instead of a further content chunk.
		if chunk.Err != nil {
			gwErr := gatewayerr.Normalize(chunk.Err, provider, 0, "")
			r.telemetry.RecordError(provider, string(gwErr.Kind))
			r.emitError(w, flusher, gwErr)
			r.telemetry.RecordRequest(provider, "chat.completions.stream", fmt.Sprintf("%d", gwErr.Status), time.Since(start))
			return
		}
		RepairChunk(chunk, req)
		acc.Observe(chunk)
		if fr := firstFinishReason(chunk); fr != "" {
			finishReason = fr
		}
		data, mErr := json.Marshal(chunk)
		if mErr != nil {
			r.logger.WithError(mErr).Error("failed to marshal stream chunk")
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		if flusher != nil {
			flusher.Flush()
		}
	}

	// step 6: final chunk with finish_reason + accumulated usage, then
	// [DONE].
	usage := acc.Finalize()
	metadata.ProcessingTime = time.Since(start)
	if cost, ok := r.costs.EstimateCost(provider, req.Model, usage.PromptTokens, usage.CompletionTokens); ok {
		metadata.ActualCost = cost
	}

	final := &types.ChatChunk{
		ID:      req.ID,
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []types.ChoiceChunk{{
			Index:        0,
			Delta:        &types.Message{},
			FinishReason: NormalizeFinishReason(finishReason),
		}},
		Usage:          usage,
		RouterMetadata: metadata,
	}
	data, _ := json.Marshal(final)
	fmt.Fprintf(w, "data: %s\n\n", data)
	if flusher != nil {
		flusher.Flush()
	}
	fmt.Fprintf(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}

	r.telemetry.RecordRequest(provider, "chat.completions.stream", "200", metadata.ProcessingTime)
	if usage.TotalTokens > 0 {
		r.telemetry.RecordUsage(provider, usage.PromptTokens, usage.CompletionTokens, metadata.ActualCost, req.Model)
	}
}

func firstFinishReason(chunk *types.ChatChunk) string {
	for _, c := range chunk.Choices {
		if c.FinishReason != "" {
			return c.FinishReason
		}
	}
	return ""
}

// rateLimitKey derives the concurrent-slot key from the authenticated
// caller, mirroring the key the HTTP-level window check already uses
// (security.DefaultKeyExtractor) so the two limits share one bucket.
func rateLimitKey(ctx context.Context) string {
	info, ok := security.GetAuthInfo(ctx)
	if !ok || info == nil {
		return ""
	}
	return "user:" + info.UserID
}

func (r *Relay) emitMetadataChunk(w http.ResponseWriter, flusher http.Flusher, req *types.ChatRequest, metadata *types.RouterMetadata) {
	chunk := &types.ChatChunk{
		ID:             req.ID,
		Object:         "chat.completion.chunk",
		Created:        time.Now().Unix(),
		Model:          req.Model,
		RouterMetadata: metadata,
	}
	data, _ := json.Marshal(chunk)
	fmt.Fprintf(w, "data: %s\n\n", data)
	if flusher != nil {
		flusher.Flush()
	}
}

// emitError renders a normalized error as an SSE error event followed by
// [DONE], per spec §4.7 step 7.
func (r *Relay) emitError(w http.ResponseWriter, flusher http.Flusher, gwErr *gatewayerr.Error) {
	env := gwErr.ToEnvelope()
	data, _ := json.Marshal(env)
	fmt.Fprintf(w, "data: %s\n\n", data)
	fmt.Fprintf(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}
