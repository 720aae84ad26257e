// Package failover implements the Failover Manager (C9): an ordered or
// weighted provider list per logical service, advancing to the next
// candidate when the current one's circuit is open or its error is
// retryable. Grounded on the teacher's routeWithFallback/strategy-sorting
// shape in internal/routing, generalized to the spec's four group
// strategies and wrapped around the Circuit Breaker and Retry Policy
// rather than baked-in HTTP-specific fallback config.
package failover

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/llm-router-waf/internal/circuitbreaker"
	"github.com/tributary-ai/llm-router-waf/internal/gatewayerr"
	"github.com/tributary-ai/llm-router-waf/internal/retry"
)

// Strategy selects candidate ordering within a group.
type Strategy string

const (
	StrategyPriority      Strategy = "priority"
	StrategyRoundRobin    Strategy = "round_robin"
	StrategyHealthAware   Strategy = "health_aware"
	StrategyCostOptimized Strategy = "cost_optimized"
)

// ProviderEntry is one candidate within a FailoverGroup.
type ProviderEntry struct {
	Name        string
	Priority    int
	Weight      float64
	CostPer1K   float64
	HealthScore float64

	mu               sync.Mutex
	TotalRequests    int64
	SuccessfulReqs   int64
	LastUsed         time.Time
}

func (p *ProviderEntry) recordAttempt(success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TotalRequests++
	if success {
		p.SuccessfulReqs++
	}
	p.LastUsed = time.Now()
}

// Stats is a read-only snapshot of a provider's usage within the group.
type Stats struct {
	TotalRequests  int64
	SuccessfulReqs int64
	LastUsed       time.Time
}

func (p *ProviderEntry) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{TotalRequests: p.TotalRequests, SuccessfulReqs: p.SuccessfulReqs, LastUsed: p.LastUsed}
}

// Group is one FailoverGroup: an ordered/weighted provider set serving a
// single logical service, e.g. "chat-completions".
type Group struct {
	ServiceName     string
	Strategy        Strategy
	Providers       []*ProviderEntry
	MaxAttempts     int
	HealthThreshold float64

	mu     sync.Mutex
	cursor int // round_robin position
}

// Manager owns a set of failover groups keyed by service name.
type Manager struct {
	mu       sync.RWMutex
	groups   map[string]*Group
	breakers *circuitbreaker.Registry
	retries  retry.Policy
	logger   *logrus.Logger
}

func NewManager(breakers *circuitbreaker.Registry, retries retry.Policy, logger *logrus.Logger) *Manager {
	return &Manager{
		groups:   make(map[string]*Group),
		breakers: breakers,
		retries:  retries,
		logger:   logger,
	}
}

func (m *Manager) RegisterGroup(g *Group) {
	if g.MaxAttempts <= 0 {
		g.MaxAttempts = len(g.Providers)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[g.ServiceName] = g
}

func (m *Manager) Group(service string) (*Group, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[service]
	return g, ok
}

// Op is the operation to attempt against a chosen provider name.
type Op func(ctx context.Context, providerName string) error

// WithFailover implements with_failover(service, op): iterate the group's
// providers by strategy, wrap each attempt in the circuit breaker and
// retry policy, and move to the next candidate when the circuit is open
// or the error is retryable. Non-retryable client errors (400-class
// except 429) surface immediately without trying further candidates.
func (m *Manager) WithFailover(ctx context.Context, service string, op Op) error {
	g, ok := m.Group(service)
	if !ok {
		return fmt.Errorf("failover: no group registered for service %q", service)
	}

	order := g.candidateOrder()
	maxAttempts := g.MaxAttempts
	if maxAttempts > len(order) {
		maxAttempts = len(order)
	}

	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		entry := order[i]

		outcome := retry.Do(ctx, m.retries, retry.LogOnRetry(m.logger, entry.Name), func() error {
			return m.breakers.Call(entry.Name, func() error {
				return op(ctx, entry.Name)
			})
		})

		success := outcome.Err == nil
		entry.recordAttempt(success)

		if success {
			return nil
		}

		lastErr = outcome.Err
		m.logger.WithFields(logrus.Fields{
			"service":  service,
			"provider": entry.Name,
			"attempt":  i + 1,
			"error":    outcome.Err,
		}).Warn("failover: candidate failed")

		gwErr := gatewayerr.Normalize(outcome.Err, entry.Name, 0, "")
		if !gwErr.Retryable && gwErr.Kind != gatewayerr.KindCircuitOpen {
			// Non-retryable client error: surface immediately, per spec §4.6.
			return lastErr
		}
	}

	return lastErr
}

// candidateOrder materializes the group's providers in strategy order.
func (g *Group) candidateOrder() []*ProviderEntry {
	switch g.Strategy {
	case StrategyRoundRobin:
		g.mu.Lock()
		defer g.mu.Unlock()
		n := len(g.Providers)
		out := make([]*ProviderEntry, n)
		for i := 0; i < n; i++ {
			out[i] = g.Providers[(g.cursor+i)%n]
		}
		g.cursor = (g.cursor + 1) % n
		return out

	case StrategyHealthAware:
		out := make([]*ProviderEntry, 0, len(g.Providers))
		for _, p := range g.Providers {
			if p.HealthScore >= g.HealthThreshold {
				out = append(out, p)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].HealthScore > out[j].HealthScore })
		return out

	case StrategyCostOptimized:
		out := make([]*ProviderEntry, len(g.Providers))
		copy(out, g.Providers)
		sort.Slice(out, func(i, j int) bool { return out[i].CostPer1K < out[j].CostPer1K })
		return out

	default: // priority
		out := make([]*ProviderEntry, len(g.Providers))
		copy(out, g.Providers)
		sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
		return out
	}
}
