// Package overflow implements the Overflow Queue (C12): durable enqueue of
// requests the gateway could not serve immediately (every provider's
// circuit open, or the caller rate limited past a documented threshold),
// for a drainer to replay later through the full router + resilience
// stack.
package overflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/llm-router-waf/internal/types"
)

const (
	queueKey      = "llm_router:overflow:queue"
	processingKey = "llm_router:overflow:processing"
	idempotencyPrefix = "llm_router:overflow:idempotency:"

	// redactedPayloadThreshold is the documented length beyond which a
	// message's content is truncated before persistence, per spec §4.10.
	redactedPayloadThreshold = 500
)

// Job is the durable record a drainer replays, per spec §6's documented
// persisted-state schema: {request_id, redacted_payload, enqueued_at,
// attempts}.
type Job struct {
	RequestID       string                 `json:"request_id"`
	RedactedPayload map[string]interface{} `json:"redacted_payload"`
	EnqueuedAt      time.Time              `json:"enqueued_at"`
	Attempts        int                    `json:"attempts"`
}

// Queue is the Redis-backed overflow queue. A single Queue instance owns
// both the durable list and the idempotency keyspace.
type Queue struct {
	rdb               *redis.Client
	idempotencyWindow time.Duration
	maxAttempts       int
	logger            *logrus.Logger
}

// NewQueue connects to the given Redis URL (standard redis:// or
// rediss:// DSN) and builds a Queue around it.
func NewQueue(redisURL string, idempotencyWindow time.Duration, maxAttempts int, logger *logrus.Logger) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return &Queue{
		rdb:               redis.NewClient(opts),
		idempotencyWindow: idempotencyWindow,
		maxAttempts:       maxAttempts,
		logger:            logger,
	}, nil
}

// newQueueWithClient builds a Queue around an already-constructed client,
// used by tests against a miniredis instance.
func newQueueWithClient(rdb *redis.Client, idempotencyWindow time.Duration, maxAttempts int, logger *logrus.Logger) *Queue {
	return &Queue{rdb: rdb, idempotencyWindow: idempotencyWindow, maxAttempts: maxAttempts, logger: logger}
}

// Enqueue durably persists a rejected request for later replay. Returns
// ok=false (no error) when an identical request_id was already enqueued
// within the idempotency window, per spec §4.10.
func (q *Queue) Enqueue(ctx context.Context, req *types.ChatRequest) (jobID string, ok bool, err error) {
	idemKey := idempotencyPrefix + req.ID
	set, err := q.rdb.SetNX(ctx, idemKey, 1, q.idempotencyWindow).Result()
	if err != nil {
		return "", false, fmt.Errorf("overflow idempotency check failed: %w", err)
	}
	if !set {
		return req.ID, false, nil
	}

	job := Job{
		RequestID:       req.ID,
		RedactedPayload: redactRequest(req),
		EnqueuedAt:      time.Now(),
		Attempts:        0,
	}
	data, err := json.Marshal(job)
	if err != nil {
		return "", false, fmt.Errorf("failed to marshal overflow job: %w", err)
	}

	if err := q.rdb.LPush(ctx, queueKey, data).Err(); err != nil {
		return "", false, fmt.Errorf("failed to enqueue overflow job: %w", err)
	}

	q.logger.WithField("request_id", req.ID).Info("request enqueued to overflow queue")
	return req.ID, true, nil
}

// Depth reports the current queue length, fed into
// telemetry.Bus.SetOverflowDepth by a periodic poller.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, queueKey).Result()
}

// Close releases the underlying Redis connection.
func (q *Queue) Close() error {
	return q.rdb.Close()
}

// redactRequest builds the durable payload for a request: message content
// beyond the documented threshold is truncated, and tool/function
// payloads are dropped entirely rather than redacted, per spec §4.10.
func redactRequest(req *types.ChatRequest) map[string]interface{} {
	messages := make([]map[string]interface{}, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, map[string]interface{}{
			"role":    m.Role,
			"content": redactContent(m.Content),
		})
	}
	return map[string]interface{}{
		"id":       req.ID,
		"model":    req.Model,
		"provider": req.Provider,
		"messages": messages,
		"stream":   req.Stream,
	}
}

func redactContent(content interface{}) interface{} {
	switch v := content.(type) {
	case string:
		if len(v) > redactedPayloadThreshold {
			return v[:redactedPayloadThreshold] + "...(redacted)"
		}
		return v
	case nil:
		return nil
	default:
		return "(redacted)"
	}
}
