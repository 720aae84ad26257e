package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributary-ai/llm-router-waf/internal/gatewayerr"
)

func testConfig() Config {
	return Config{
		FailureThreshold: 2,
		SuccessThreshold: 2,
		ResetTimeout:     10 * time.Millisecond,
	}
}

func TestRegistry_Call_StartsClosedAndAllowsCalls(t *testing.T) {
	r := NewRegistry(testConfig(), nil)

	err := r.Call("openai", func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, r.State("openai"))
}

func TestRegistry_Call_OpensAfterFailureThreshold(t *testing.T) {
	r := NewRegistry(testConfig(), nil)
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		_ = r.Call("openai", func() error { return boom })
	}

	assert.Equal(t, StateOpen, r.State("openai"))
}

func TestRegistry_Call_RejectsWhileOpen(t *testing.T) {
	r := NewRegistry(testConfig(), nil)
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		_ = r.Call("openai", func() error { return boom })
	}
	require.Equal(t, StateOpen, r.State("openai"))

	called := false
	err := r.Call("openai", func() error { called = true; return nil })

	assert.False(t, called, "fn must not run while breaker is open")
	assert.True(t, gatewayerr.IsKind(err, gatewayerr.KindCircuitOpen))
}

func TestRegistry_Call_HalfOpenAfterResetTimeout(t *testing.T) {
	r := NewRegistry(testConfig(), nil)
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		_ = r.Call("openai", func() error { return boom })
	}
	require.Equal(t, StateOpen, r.State("openai"))

	time.Sleep(15 * time.Millisecond)

	called := false
	_ = r.Call("openai", func() error { called = true; return nil })
	assert.True(t, called, "a probe call after the reset timeout should pass through")
}

func TestRegistry_Call_ClosesAfterSuccessThresholdInHalfOpen(t *testing.T) {
	r := NewRegistry(testConfig(), nil)
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		_ = r.Call("openai", func() error { return boom })
	}
	time.Sleep(15 * time.Millisecond)

	_ = r.Call("openai", func() error { return nil })
	_ = r.Call("openai", func() error { return nil })

	assert.Equal(t, StateClosed, r.State("openai"))
}

func TestRegistry_Call_HalfOpenFailureReopens(t *testing.T) {
	r := NewRegistry(testConfig(), nil)
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		_ = r.Call("openai", func() error { return boom })
	}
	time.Sleep(15 * time.Millisecond)

	_ = r.Call("openai", func() error { return boom })
	assert.Equal(t, StateOpen, r.State("openai"))
}

func TestRegistry_Call_SuccessResetsFailureCountWhileClosed(t *testing.T) {
	r := NewRegistry(testConfig(), nil)
	boom := errors.New("boom")

	_ = r.Call("openai", func() error { return boom })
	_ = r.Call("openai", func() error { return nil })
	_ = r.Call("openai", func() error { return boom })

	assert.Equal(t, StateClosed, r.State("openai"), "a success between failures should reset the counter")
}

func TestRegistry_ProvidersAreIndependent(t *testing.T) {
	r := NewRegistry(testConfig(), nil)
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		_ = r.Call("openai", func() error { return boom })
	}

	assert.Equal(t, StateOpen, r.State("openai"))
	assert.Equal(t, StateClosed, r.State("anthropic"))
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry(testConfig(), nil)
	boom := errors.New("boom")
	_ = r.Call("openai", func() error { return boom })

	snap := r.Snapshot("openai")
	assert.Equal(t, "openai", snap.Provider)
	assert.Equal(t, StateClosed, snap.State)
	assert.Equal(t, 1, snap.FailureCount)
	assert.NotZero(t, snap.LastFailureAt)
}

func TestRegistry_Reset(t *testing.T) {
	r := NewRegistry(testConfig(), nil)
	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		_ = r.Call("openai", func() error { return boom })
	}
	require.Equal(t, StateOpen, r.State("openai"))

	r.Reset("openai")

	assert.Equal(t, StateClosed, r.State("openai"))
	snap := r.Snapshot("openai")
	assert.Equal(t, 0, snap.FailureCount)
	assert.Equal(t, 0, snap.SuccessCount)
}

func TestRegistry_Providers(t *testing.T) {
	r := NewRegistry(testConfig(), nil)
	_ = r.Call("openai", func() error { return nil })
	_ = r.Call("anthropic", func() error { return nil })

	names := r.Providers()
	assert.ElementsMatch(t, []string{"openai", "anthropic"}, names)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5, cfg.FailureThreshold)
	assert.Equal(t, 2, cfg.SuccessThreshold)
	assert.Equal(t, 60*time.Second, cfg.ResetTimeout)
}
