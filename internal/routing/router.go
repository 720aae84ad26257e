package routing

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/llm-router-waf/internal/circuitbreaker"
	"github.com/tributary-ai/llm-router-waf/internal/costtable"
	"github.com/tributary-ai/llm-router-waf/internal/providers"
	"github.com/tributary-ai/llm-router-waf/internal/types"
)

// Policy selects which of the four routing algorithms route() applies,
// per spec §4.5.
type Policy string

const (
	PolicyDefault  Policy = "default"
	PolicyCost     Policy = "cost"
	PolicyHealth   Policy = "health"
	PolicyEnhanced Policy = "enhanced"
)

// Requirements describes model-family, capability and per-token cost
// constraints. The router does not consult it: the cost policy filters
// only on the request's max_cost.
type Requirements struct {
	ModelFamily     string
	Capabilities    []string
	MaxCostPerToken float64
}

// Decision is the router's output: a concrete provider+model tuple, plus
// enough context for the caller to configure the provider call and for
// telemetry to record why it was chosen.
type Decision struct {
	Provider       string
	Model          string
	ProviderConfig map[string]interface{}
	Enhanced       bool
	MockMode       bool
	Reasoning      []string
}

// Router resolves a request's logical model to a concrete provider+model.
// It holds no mutable state beyond the provider registry snapshot and the
// policy configuration it was built with; health and cost data are read
// from the Circuit Breaker registry and Cost Table it was wired to.
type Router struct {
	mu              sync.RWMutex
	providerList    map[string]providers.LLMProvider
	order           []string // registration order, used for "first registered provider"
	defaultProvider string
	policy          Policy
	costs           *costtable.Table
	breakers        *circuitbreaker.Registry
	healthThreshold float64
	logger          *logrus.Logger
}

func NewRouter(policy Policy, defaultProvider string, costs *costtable.Table, breakers *circuitbreaker.Registry, healthThreshold float64, logger *logrus.Logger) *Router {
	if policy == "" {
		policy = PolicyDefault
	}
	if healthThreshold <= 0 {
		healthThreshold = 0.5
	}
	return &Router{
		providerList:    make(map[string]providers.LLMProvider),
		defaultProvider: defaultProvider,
		policy:          policy,
		costs:           costs,
		breakers:        breakers,
		healthThreshold: healthThreshold,
		logger:          logger,
	}
}

func (r *Router) RegisterProvider(name string, provider providers.LLMProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providerList[name]; !exists {
		r.order = append(r.order, name)
	}
	r.providerList[name] = provider
	if r.defaultProvider == "" {
		r.defaultProvider = name
	}
	r.logger.WithField("provider", name).Info("Provider registered")
}

func (r *Router) GetProvider(name string) (providers.LLMProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providerList[name]
	return p, ok
}

func (r *Router) ListProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Route implements route(req) → {provider, model, provider_config, enhanced?}.
func (r *Router) Route(req *types.ChatRequest) (*Decision, providers.LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var decision *Decision
	switch r.policy {
	case PolicyCost:
		decision = r.decideCost(req)
	case PolicyHealth:
		decision = r.decideHealth(req)
	case PolicyEnhanced:
		decision = r.decideEnhanced(req)
	default:
		decision = r.decideDefault(req)
	}

	if decision == nil {
		decision = &Decision{
			Provider:  "mock",
			Model:     req.Model,
			MockMode:  true,
			Reasoning: []string{"no provider registered or none satisfies the request; legacy-compat mock tuple"},
		}
		r.emitDecision(req, decision)
		return decision, nil, nil
	}

	provider := r.providerList[decision.Provider]
	r.emitDecision(req, decision)
	return decision, provider, nil
}

func (r *Router) emitDecision(req *types.ChatRequest, d *Decision) {
	r.logger.WithFields(logrus.Fields{
		"provider":   d.Provider,
		"policy":     string(r.policy),
		"request_id": req.ID,
		"strategy":   strings.Join(d.Reasoning, "; "),
	}).Info("router.decide")
}

// decideDefault implements the five-step fallback chain from spec §4.5.
func (r *Router) decideDefault(req *types.ChatRequest) *Decision {
	// 1. provider and model both given, provider supports model.
	if req.Provider != "" && req.Model != "" {
		if p, ok := r.providerList[req.Provider]; ok && r.modelSupported(p, req.Model) {
			return &Decision{Provider: req.Provider, Model: req.Model,
				Reasoning: []string{fmt.Sprintf("explicit provider %s supports model %s", req.Provider, req.Model)}}
		}
	}

	// 2. provider given, use its default model.
	if req.Provider != "" {
		if p, ok := r.providerList[req.Provider]; ok {
			if model, ok := r.defaultModelFor(p); ok {
				return &Decision{Provider: req.Provider, Model: model,
					Reasoning: []string{fmt.Sprintf("explicit provider %s, default model", req.Provider)}}
			}
		}
	}

	// 3. model given, first registered provider supporting it.
	if req.Model != "" {
		for _, name := range r.order {
			if r.modelSupported(r.providerList[name], req.Model) {
				return &Decision{Provider: name, Model: req.Model,
					Reasoning: []string{fmt.Sprintf("first registered provider supporting model %s", req.Model)}}
			}
		}
	}

	// 4. default provider + its default model.
	if p, ok := r.providerList[r.defaultProvider]; ok {
		model := req.Model
		if model == "" {
			if m, ok := r.defaultModelFor(p); ok {
				model = m
			}
		}
		return &Decision{Provider: r.defaultProvider, Model: model,
			Reasoning: []string{"default provider"}}
	}

	// 5. nothing registered or satisfies: mock tuple, handled by caller.
	return nil
}

// decideCost implements the cost policy: keep cost-table entries whose
// provider is registered and whose cost_per_1k_tokens is within the
// request's max_cost (when set), rank ascending by cost_per_1k_tokens,
// break ties by priority then name. Model family and capabilities are not
// filtered on.
func (r *Router) decideCost(req *types.ChatRequest) *Decision {
	maxCost := maxCostFromReq(req)
	candidates := r.costs.All()

	filtered := make([]costtable.Entry, 0, len(candidates))
	for _, e := range candidates {
		if _, ok := r.providerList[e.Provider]; !ok {
			continue
		}
		if maxCost > 0 && e.CostPer1KTokens() > maxCost {
			continue
		}
		filtered = append(filtered, e)
	}
	if len(filtered) == 0 {
		return r.decideDefault(req)
	}

	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].CostPer1KTokens() != filtered[j].CostPer1KTokens() {
			return filtered[i].CostPer1KTokens() < filtered[j].CostPer1KTokens()
		}
		if filtered[i].Priority != filtered[j].Priority {
			return filtered[i].Priority < filtered[j].Priority
		}
		return filtered[i].Provider < filtered[j].Provider
	})

	best := filtered[0]
	return &Decision{Provider: best.Provider, Model: best.Model,
		Reasoning: []string{fmt.Sprintf("cost policy selected %s:%s at $%.6f/1k", best.Provider, best.Model, best.CostPer1KTokens())}}
}

// decideHealth implements the health policy: closed/half_open circuits
// with health score ≥ threshold, preferring the requested provider.
func (r *Router) decideHealth(req *types.ChatRequest) *Decision {
	eligible := make([]string, 0, len(r.order))
	for _, name := range r.order {
		if r.healthScore(name) >= r.healthThreshold {
			eligible = append(eligible, name)
		}
	}
	if len(eligible) == 0 {
		return r.decideDefault(req)
	}

	selected := eligible[0]
	for _, name := range eligible {
		if name == req.Provider {
			selected = name
			break
		}
	}

	p := r.providerList[selected]
	model := req.Model
	if model == "" || !r.modelSupported(p, model) {
		if m, ok := r.defaultModelFor(p); ok {
			model = m
		}
	}
	return &Decision{Provider: selected, Model: model,
		Reasoning: []string{fmt.Sprintf("health policy selected %s (score %.2f)", selected, r.healthScore(selected))}}
}

// decideEnhanced implements the weighted-score policy from spec §4.5.
func (r *Router) decideEnhanced(req *types.ChatRequest) *Decision {
	type scored struct {
		name  string
		score float64
	}
	var ranked []scored
	for _, name := range r.order {
		p := r.providerList[name]
		score := 100 + 50*r.healthScore(name)
		if req.Model != "" && r.modelSupported(p, req.Model) {
			score += 30
		}
		if name == req.Provider {
			score += 40
		}
		ranked = append(ranked, scored{name, score})
	}
	if len(ranked) == 0 {
		return r.decideDefault(req)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].name < ranked[j].name
	})

	selected := ranked[0].name
	p := r.providerList[selected]
	model := req.Model
	if model == "" || !r.modelSupported(p, model) {
		if m, ok := r.defaultModelFor(p); ok {
			model = m
		}
	}
	return &Decision{Provider: selected, Model: model, Enhanced: true,
		Reasoning: []string{fmt.Sprintf("enhanced policy selected %s (score %.1f)", selected, ranked[0].score)}}
}

func maxCostFromReq(req *types.ChatRequest) float64 {
	if req.MaxCost != nil {
		return *req.MaxCost
	}
	return 0
}

func (r *Router) modelSupported(p providers.LLMProvider, model string) bool {
	if p == nil {
		return false
	}
	for _, m := range p.GetCapabilities().SupportedModels {
		if m.Name == model {
			return true
		}
	}
	return false
}

func (r *Router) defaultModelFor(p providers.LLMProvider) (string, bool) {
	if p == nil {
		return "", false
	}
	models := p.GetCapabilities().SupportedModels
	if len(models) == 0 {
		return "", false
	}
	return models[0].Name, true
}

// healthScore maps circuit breaker state to a 0..1 score: closed is fully
// healthy, half_open is borderline, open is unhealthy. A provider with no
// breaker entry yet (never called) is treated as healthy.
func (r *Router) healthScore(name string) float64 {
	if r.breakers == nil {
		return 1.0
	}
	switch r.breakers.State(name) {
	case circuitbreaker.StateOpen:
		return 0.0
	case circuitbreaker.StateHalfOpen:
		return 0.5
	default:
		return 1.0
	}
}
