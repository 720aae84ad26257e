package costtable

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleEntries() []Entry {
	return []Entry{
		{Provider: "openai", Model: "gpt-4o", InputCostPer1K: 0.005, OutputCostPer1K: 0.015, Capabilities: []string{"chat", "vision"}, Priority: 1},
		{Provider: "anthropic", Model: "claude-3-5-sonnet", InputCostPer1K: 0.003, OutputCostPer1K: 0.015, Capabilities: []string{"chat"}, Priority: 2},
	}
}

func TestTable_Refresh_ReplacesWholeTable(t *testing.T) {
	tbl := NewTable()
	tbl.Put(Entry{Provider: "stale", Model: "v1"})

	tbl.Refresh(sampleEntries())

	_, ok := tbl.Lookup("stale", "v1")
	assert.False(t, ok, "Refresh should discard entries not in the new set")

	_, ok = tbl.Lookup("openai", "gpt-4o")
	assert.True(t, ok)
}

func TestTable_Put_AddsSingleRowWithoutDisturbingOthers(t *testing.T) {
	tbl := NewTable()
	tbl.Refresh(sampleEntries())

	tbl.Put(Entry{Provider: "openai", Model: "gpt-4o-mini", InputCostPer1K: 0.001, OutputCostPer1K: 0.002})

	_, ok := tbl.Lookup("openai", "gpt-4o")
	assert.True(t, ok, "existing rows should survive a Put")

	e, ok := tbl.Lookup("openai", "gpt-4o-mini")
	require := assert.New(t)
	require.True(ok)
	require.Equal(0.001, e.InputCostPer1K)
}

func TestTable_Lookup_NotFound(t *testing.T) {
	tbl := NewTable()
	_, ok := tbl.Lookup("nonexistent", "model")
	assert.False(t, ok)
}

func TestTable_All_ReturnsSnapshot(t *testing.T) {
	tbl := NewTable()
	tbl.Refresh(sampleEntries())

	all := tbl.All()
	assert.Len(t, all, 2)
}

func TestEntry_CostPer1KTokens(t *testing.T) {
	e := Entry{InputCostPer1K: 0.01, OutputCostPer1K: 0.03}
	assert.Equal(t, 0.02, e.CostPer1KTokens())
}

func TestTable_EstimateCost_KnownModel(t *testing.T) {
	tbl := NewTable()
	tbl.Refresh(sampleEntries())

	cost, ok := tbl.EstimateCost("openai", "gpt-4o", 1000, 1000)
	assert.True(t, ok)
	assert.InDelta(t, 0.005+0.015, cost, 1e-9)
}

func TestTable_EstimateCost_UnknownModelReturnsFalse(t *testing.T) {
	tbl := NewTable()
	cost, ok := tbl.EstimateCost("openai", "unknown-model", 100, 100)
	assert.False(t, ok)
	assert.Zero(t, cost)
}
