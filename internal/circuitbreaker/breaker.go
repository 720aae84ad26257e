// Package circuitbreaker implements the per-provider circuit breaker (C5):
// a three-state gate (closed/open/half_open) that stops hammering a
// provider once it starts failing, and lets calls through again once its
// reset timeout has elapsed. While half_open, every call is let through:
// the number of probe calls is not capped.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/llm-router-waf/internal/gatewayerr"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config holds the thresholds for one provider's breaker.
type Config struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		ResetTimeout:      60 * time.Second,
	}
}

// Snapshot is the read-only view of a breaker's current state, used for
// health-aware routing decisions and status endpoints.
type Snapshot struct {
	Provider         string    `json:"provider"`
	State            State     `json:"state"`
	FailureCount     int       `json:"failure_count"`
	SuccessCount     int       `json:"success_count"`
	LastFailureAt    time.Time `json:"last_failure_at,omitempty"`
	LastTransitionAt time.Time `json:"last_transition_at,omitempty"`
}

type entry struct {
	mu               sync.Mutex
	state            State
	failureCount     int
	successCount     int
	lastFailureAt    time.Time
	lastTransitionAt time.Time
	config           Config
}

// Registry owns one breaker entry per provider name, each serialized by
// its own mutex so providers never contend with each other.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	config  Config
	logger  *logrus.Logger
}

func NewRegistry(config Config, logger *logrus.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		config:  config,
		logger:  logger,
	}
}

func (r *Registry) get(name string) *entry {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.entries[name]; ok {
		return e
	}
	e = &entry{state: StateClosed, config: r.config}
	r.entries[name] = e
	return e
}

// Call executes fn under the named provider's breaker. If the breaker is
// open, fn is never invoked and a circuit_open error is returned
// immediately.
func (r *Registry) Call(name string, fn func() error) error {
	e := r.get(name)

	if err := e.beforeCall(); err != nil {
		return err
	}

	err := fn()
	e.afterCall(err == nil)
	return err
}

func (e *entry) beforeCall() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateClosed:
		return nil

	case StateOpen:
		if time.Since(e.lastTransitionAt) >= e.config.ResetTimeout {
			e.setState(StateHalfOpen)
			e.successCount = 0
			return nil
		}
		return gatewayerr.New(gatewayerr.KindCircuitOpen, "circuit open", gatewayerr.WithRetryable(false))

	case StateHalfOpen:
		return nil

	default:
		return nil
	}
}

func (e *entry) afterCall(success bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if success {
		e.onSuccess()
	} else {
		e.onFailure()
	}
}

func (e *entry) onSuccess() {
	switch e.state {
	case StateClosed:
		e.failureCount = 0
	case StateHalfOpen:
		e.successCount++
		if e.successCount >= e.config.SuccessThreshold {
			e.setState(StateClosed)
			e.failureCount = 0
			e.successCount = 0
		}
	}
}

func (e *entry) onFailure() {
	e.lastFailureAt = time.Now()

	switch e.state {
	case StateClosed:
		e.failureCount++
		if e.failureCount >= e.config.FailureThreshold {
			e.setState(StateOpen)
		}
	case StateHalfOpen:
		e.setState(StateOpen)
		e.successCount = 0
	}
}

// setState must be called with e.mu held.
func (e *entry) setState(s State) {
	if s == e.state {
		return
	}
	e.state = s
	e.lastTransitionAt = time.Now()
}

// State returns the current state of a provider's breaker without
// mutating it, applying the open-to-half_open timer check as a read.
func (r *Registry) State(name string) State {
	e := r.get(name)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateOpen && time.Since(e.lastTransitionAt) >= e.config.ResetTimeout {
		return StateHalfOpen
	}
	return e.state
}

// Snapshot returns the full state for status/telemetry endpoints.
func (r *Registry) Snapshot(name string) Snapshot {
	e := r.get(name)
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Provider:         name,
		State:            e.state,
		FailureCount:     e.failureCount,
		SuccessCount:     e.successCount,
		LastFailureAt:    e.lastFailureAt,
		LastTransitionAt: e.lastTransitionAt,
	}
}

// Reset forces a provider's breaker back to closed, as if freshly created.
func (r *Registry) Reset(name string) {
	e := r.get(name)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StateClosed
	e.failureCount = 0
	e.successCount = 0
	if r.logger != nil {
		r.logger.WithField("provider", name).Info("Circuit breaker manually reset")
	}
}

// Providers lists every provider name that currently has a breaker entry.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}
