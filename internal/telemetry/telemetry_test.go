package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testBus() *Bus {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewBus(prometheus.NewRegistry(), logger)
}

func TestNewBus_RegistersAllMetrics(t *testing.T) {
	bus := testBus()
	assert.NotNil(t, bus.requestsTotal)
	assert.NotNil(t, bus.requestDuration)
	assert.NotNil(t, bus.tokensTotal)
	assert.NotNil(t, bus.costTotal)
	assert.NotNil(t, bus.errorsTotal)
	assert.NotNil(t, bus.circuitState)
	assert.NotNil(t, bus.rateLimitHits)
	assert.NotNil(t, bus.activeStreams)
	assert.NotNil(t, bus.overflowDepth)
}

func TestBus_RecordRequest(t *testing.T) {
	bus := testBus()
	bus.RecordRequest("openai", "chat.completions", "200", 150*time.Millisecond)

	count := testutil.ToFloat64(bus.requestsTotal.WithLabelValues("openai", "chat.completions", "200"))
	assert.Equal(t, 1.0, count)
}

func TestBus_RecordUsage_SkipsZeroCost(t *testing.T) {
	bus := testBus()
	bus.RecordUsage("anthropic", 100, 50, 0, "claude-3-opus")

	prompt := testutil.ToFloat64(bus.tokensTotal.WithLabelValues("anthropic", "prompt"))
	completion := testutil.ToFloat64(bus.tokensTotal.WithLabelValues("anthropic", "completion"))
	assert.Equal(t, 100.0, prompt)
	assert.Equal(t, 50.0, completion)
	assert.Equal(t, 0, testutil.CollectAndCount(bus.costTotal), "zero cost should never create a cost series")
}

func TestBus_RecordUsage_RecordsCostWhenPositive(t *testing.T) {
	bus := testBus()
	bus.RecordUsage("openai", 100, 50, 0.0042, "gpt-4o")

	cost := testutil.ToFloat64(bus.costTotal.WithLabelValues("openai", "gpt-4o"))
	assert.InDelta(t, 0.0042, cost, 1e-9)
}

func TestBus_RecordError(t *testing.T) {
	bus := testBus()
	bus.RecordError("openai", "rate_limited")
	bus.RecordError("openai", "rate_limited")

	count := testutil.ToFloat64(bus.errorsTotal.WithLabelValues("openai", "rate_limited"))
	assert.Equal(t, 2.0, count)
}

func TestBus_SetCircuitState(t *testing.T) {
	bus := testBus()
	bus.SetCircuitState("openai", 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(bus.circuitState.WithLabelValues("openai")))
}

func TestBus_RecordRateLimitHit(t *testing.T) {
	bus := testBus()
	bus.RecordRateLimitHit("per_minute")
	assert.Equal(t, 1.0, testutil.ToFloat64(bus.rateLimitHits.WithLabelValues("per_minute")))
}

func TestBus_StreamStartedAndFinished(t *testing.T) {
	bus := testBus()
	bus.StreamStarted()
	bus.StreamStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(bus.activeStreams))

	bus.StreamFinished()
	assert.Equal(t, 1.0, testutil.ToFloat64(bus.activeStreams))
}

func TestBus_SetOverflowDepth(t *testing.T) {
	bus := testBus()
	bus.SetOverflowDepth(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(bus.overflowDepth))
}

func TestBus_Subscribe_ReceivesEmittedEvents(t *testing.T) {
	bus := testBus()

	var received []Event
	bus.Subscribe(func(e Event) { received = append(received, e) })

	bus.RecordRequest("openai", "chat.completions", "200", time.Millisecond)
	bus.RouterDecide("openai", "cost", "req-1", "cost policy selected openai")

	if assertLen(t, received, 2) {
		assert.Equal(t, "request.complete", received[0].Name)
		assert.Equal(t, "router.decide", received[1].Name)
		assert.Equal(t, "req-1", received[1].RequestID)
		assert.False(t, received[1].At.IsZero())
	}
}

func assertLen(t *testing.T, events []Event, n int) bool {
	t.Helper()
	return assert.Len(t, events, n)
}
