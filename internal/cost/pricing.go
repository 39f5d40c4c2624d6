// Package cost holds per-provider model pricing. Cost is a provider concern:
// each monitor prices its own sessions with its provider's table, and
// downstream reports only sum what the monitors attached.
package cost

import (
	"fmt"
	"strings"

	"github.com/agentsight/agentsight/internal/transcript"
)

// ModelPricing is USD per 1K tokens for one model.
type ModelPricing struct {
	InputPer1K     float64
	OutputPer1K    float64
	CacheReadPer1K float64
}

// Cost prices a token count against this model's rates.
func (p ModelPricing) Cost(t transcript.TokenCounts) float64 {
	return float64(t.Input)/1000*p.InputPer1K +
		float64(t.Output)/1000*p.OutputPer1K +
		float64(t.CacheRead)/1000*p.CacheReadPer1K
}

// Per-provider pricing tables, USD per 1K tokens. Model ids in transcripts
// carry date suffixes ("claude-opus-4-5-20251101"), so lookup is exact match
// first, then longest prefix. Cache reads are billed at roughly a tenth of
// fresh input.
var providerPricing = map[string]map[string]ModelPricing{
	"claude": {
		"claude-opus":   {InputPer1K: 0.015, OutputPer1K: 0.075, CacheReadPer1K: 0.0015},
		"claude-sonnet": {InputPer1K: 0.003, OutputPer1K: 0.015, CacheReadPer1K: 0.0003},
		"claude-haiku":  {InputPer1K: 0.0008, OutputPer1K: 0.004, CacheReadPer1K: 0.00008},
		"opus":          {InputPer1K: 0.015, OutputPer1K: 0.075, CacheReadPer1K: 0.0015},
		"sonnet":        {InputPer1K: 0.003, OutputPer1K: 0.015, CacheReadPer1K: 0.0003},
		"haiku":         {InputPer1K: 0.0008, OutputPer1K: 0.004, CacheReadPer1K: 0.00008},
		"default":       {InputPer1K: 0.003, OutputPer1K: 0.015, CacheReadPer1K: 0.0003},
	},
	"codex": {
		"gpt-5":       {InputPer1K: 0.00125, OutputPer1K: 0.01, CacheReadPer1K: 0.000125},
		"gpt-5-mini":  {InputPer1K: 0.00025, OutputPer1K: 0.002, CacheReadPer1K: 0.000025},
		"gpt-4o":      {InputPer1K: 0.005, OutputPer1K: 0.015, CacheReadPer1K: 0.0025},
		"gpt-4o-mini": {InputPer1K: 0.00015, OutputPer1K: 0.0006, CacheReadPer1K: 0.000075},
		"o3":          {InputPer1K: 0.002, OutputPer1K: 0.008, CacheReadPer1K: 0.0005},
		"default":     {InputPer1K: 0.00125, OutputPer1K: 0.01, CacheReadPer1K: 0.000125},
	},
}

// genericDefault prices unknown providers so cost never silently disappears.
var genericDefault = ModelPricing{InputPer1K: 0.003, OutputPer1K: 0.015, CacheReadPer1K: 0.0003}

// Lookup resolves pricing for a provider and model.
func Lookup(provider, model string) ModelPricing {
	table, ok := providerPricing[provider]
	if !ok {
		return genericDefault
	}
	if p, ok := table[model]; ok {
		return p
	}

	// Longest prefix wins so "claude-sonnet-4-5-20250929" hits
	// "claude-sonnet" rather than a shorter family alias.
	var best string
	for name := range table {
		if name != "default" && strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
		}
	}
	if best != "" {
		return table[best]
	}
	return table["default"]
}

// ForProvider returns the pricing function a monitor attaches to its
// snapshots.
func ForProvider(provider string) func(model string, tokens transcript.TokenCounts) float64 {
	return func(model string, tokens transcript.TokenCounts) float64 {
		return Lookup(provider, model).Cost(tokens)
	}
}

// FormatUSD renders a dollar amount with precision scaled to its size.
func FormatUSD(usd float64) string {
	switch {
	case usd < 0.01:
		return fmt.Sprintf("$%.4f", usd)
	case usd < 1.0:
		return fmt.Sprintf("$%.3f", usd)
	default:
		return fmt.Sprintf("$%.2f", usd)
	}
}
