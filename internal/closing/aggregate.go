// Package closing runs the monthly closing pipeline: parse both
// statement uploads, merge the cash book, categorize, aggregate,
// build the report artifact and persist it to history.
package closing

import "fechamento/internal/core"

// Aggregate computes the consolidated and per-account period figures
// in a single pass. Outflows are kept negative, so:
//
//	net     = inflow + outflow
//	closing = opening + net
//
// ByCategory carries every fixed category and BySource every account,
// zero entries included, so the report shape is stable across
// periods. An empty input yields a summary equal to the opening
// balance with all totals zero.
func Aggregate(entries []core.CategorizedTransaction, opening core.Money) core.PeriodSummary {
	byCategory := make(map[core.Category]core.Money, len(core.Categories()))
	for _, c := range core.Categories() {
		byCategory[c] = core.Money{}
	}
	bySource := make(map[core.Source]core.AccountTotals, len(core.Sources()))
	for _, s := range core.Sources() {
		bySource[s] = core.AccountTotals{}
	}

	var inflow, outflow core.Money
	for _, e := range entries {
		acct := bySource[e.Source]
		if e.Amount.Cents > 0 {
			inflow = inflow.Add(e.Amount)
			acct.Inflow = acct.Inflow.Add(e.Amount)
		} else {
			outflow = outflow.Add(e.Amount)
			acct.Outflow = acct.Outflow.Add(e.Amount)
		}
		acct.Net = acct.Net.Add(e.Amount)
		bySource[e.Source] = acct
		byCategory[e.Category] = byCategory[e.Category].Add(e.Amount)
	}

	net := inflow.Add(outflow)
	return core.PeriodSummary{
		Opening:    opening,
		Inflow:     inflow,
		Outflow:    outflow,
		Net:        net,
		Closing:    opening.Add(net),
		ByCategory: byCategory,
		BySource:   bySource,
	}
}
