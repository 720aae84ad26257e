// Package costtable implements the Cost Table (C2): a static, refreshable
// table of (provider, model, $/1k tokens, capabilities) used by the
// Router's cost policy and by usage cost estimation in the stream relay.
package costtable

import "sync"

// Entry is one provider+model's cost and capability row.
type Entry struct {
	Provider         string
	Model            string
	InputCostPer1K   float64
	OutputCostPer1K  float64
	Capabilities     []string
	Priority         int
}

// Table owns the cost rows behind a single mutation path (Refresh),
// readers get a snapshot slice.
type Table struct {
	mu      sync.RWMutex
	entries map[string]Entry // keyed by "provider:model"
}

func NewTable() *Table {
	return &Table{entries: make(map[string]Entry)}
}

func key(provider, model string) string { return provider + ":" + model }

// Refresh atomically replaces the whole table.
func (t *Table) Refresh(entries []Entry) {
	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		m[key(e.Provider, e.Model)] = e
	}
	t.mu.Lock()
	t.entries = m
	t.mu.Unlock()
}

// Put installs or updates a single row without disturbing the rest.
func (t *Table) Put(e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key(e.Provider, e.Model)] = e
}

// Lookup returns the cost row for a provider+model, if known.
func (t *Table) Lookup(provider, model string) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[key(provider, model)]
	return e, ok
}

// All returns a snapshot of every row, used for cost-policy ranking.
func (t *Table) All() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	return out
}

// CostPer1KTokens is the blended rate used for ranking by the Router's
// cost policy: the average of input and output cost.
func (e Entry) CostPer1KTokens() float64 {
	return (e.InputCostPer1K + e.OutputCostPer1K) / 2
}

// EstimateCost computes the cost of a token usage report. Absent rates
// (entry not found) means cost fields are omitted, per spec §4.7.
func (t *Table) EstimateCost(provider, model string, promptTokens, completionTokens int) (float64, bool) {
	e, ok := t.Lookup(provider, model)
	if !ok {
		return 0, false
	}
	cost := float64(promptTokens)/1000*e.InputCostPer1K + float64(completionTokens)/1000*e.OutputCostPer1K
	return cost, true
}
