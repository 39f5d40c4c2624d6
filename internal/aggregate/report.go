package aggregate

import (
	"time"

	"github.com/agentsight/agentsight/internal/monitor"
	"github.com/agentsight/agentsight/internal/transcript"
)

// ProviderStatus summarizes one provider's slot.
type ProviderStatus struct {
	Provider     string    `json:"provider"`
	Sessions     int       `json:"sessions"`
	LastDelivery time.Time `json:"lastDelivery"`
}

// MonitorStatus is a read-only aggregate over the current snapshot sets.
type MonitorStatus struct {
	Providers   []ProviderStatus           `json:"providers"`
	Sessions    int                        `json:"sessions"`
	ByState     map[monitor.State]int      `json:"byState"`
	ByPhase     map[transcript.Phase]int   `json:"byPhase"`
	GeneratedAt time.Time                  `json:"generatedAt"`
}

// ProviderUsage is one provider's token and cost totals. Cost carries over
// from the snapshots as priced by the provider's own model table.
type ProviderUsage struct {
	Provider string                 `json:"provider"`
	Sessions int                    `json:"sessions"`
	Tokens   transcript.TokenCounts `json:"tokens"`
	CostUSD  float64                `json:"costUSD"`
}

// TokenUsageReport sums per-provider usage. Totals are plain sums of the
// provider rows; no cost model is applied at this level.
type TokenUsageReport struct {
	Providers    []ProviderUsage        `json:"providers"`
	Tokens       transcript.TokenCounts `json:"tokens"`
	TotalCostUSD float64                `json:"totalCostUSD"`
	GeneratedAt  time.Time              `json:"generatedAt"`
}

// Status reports per-provider and overall session counts from the current
// slots.
func (a *Aggregator) Status() MonitorStatus {
	a.mu.Lock()
	defer a.mu.Unlock()

	status := MonitorStatus{
		ByState:     make(map[monitor.State]int),
		ByPhase:     make(map[transcript.Phase]int),
		GeneratedAt: a.now(),
	}
	for _, p := range a.providers {
		list := a.latest[p]
		status.Providers = append(status.Providers, ProviderStatus{
			Provider:     p,
			Sessions:     len(list),
			LastDelivery: a.delivered[p],
		})
		status.Sessions += len(list)
		for _, snap := range list {
			status.ByState[snap.State]++
			status.ByPhase[snap.Phase]++
		}
	}
	return status
}

// UsageReport sums token counts and provider-priced cost across the current
// slots, one row per provider plus an overall total.
func (a *Aggregator) UsageReport() TokenUsageReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	report := TokenUsageReport{GeneratedAt: a.now()}
	for _, p := range a.providers {
		usage := ProviderUsage{Provider: p}
		for _, snap := range a.latest[p] {
			usage.Sessions++
			usage.Tokens.Add(snap.Tokens)
			usage.CostUSD += snap.CostUSD
		}
		report.Providers = append(report.Providers, usage)
		report.Tokens.Add(usage.Tokens)
		report.TotalCostUSD += usage.CostUSD
	}
	return report
}
