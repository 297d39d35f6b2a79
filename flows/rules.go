package flows

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/agent/config"
	"github.com/rustyeddy/agent/ledger"
)

// Rule kinds. Flow rules stay data evaluated by one interpreter; adding
// a kind means adding a case, not a type hierarchy.
const (
	TypeFeeTopup       = "fee_topup"
	TypeThresholdSweep = "threshold_sweep"
	TypeProfitSweep    = "profit_sweep"
	TypeCompound       = "compound"
)

// Rule is one immutable money-movement rule, converted from the policy
// document at startup.
type Rule struct {
	Name   string
	Type   string
	Source string

	Destinations []Destination

	MinBufferUSD decimal.Decimal
	TargetUSD    decimal.Decimal

	CapUSD       decimal.Decimal
	MaxEquityPct decimal.Decimal

	MinProfitUSD decimal.Decimal
	SweepPct     decimal.Decimal

	MinPnLUSD      decimal.Decimal
	MaxCompoundPct decimal.Decimal
}

// Destination is one leg of a split. Percentages apply to the moved
// amount directly; legs summing under 100 leave the rest at the source.
type Destination struct {
	Wallet   string
	SplitPct decimal.Decimal
}

// RulesFromConfig converts the declared rules, preserving declaration
// order. The order is load-bearing: sweeping fees before profits keeps
// a later rule from starving an earlier one within the same tick.
func RulesFromConfig(rules []config.FlowRule) []Rule {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		rule := Rule{
			Name:           r.Name,
			Type:           r.Type,
			Source:         r.Source,
			MinBufferUSD:   decimal.NewFromFloat(r.MinBufferUSD),
			TargetUSD:      decimal.NewFromFloat(r.TargetUSD),
			CapUSD:         decimal.NewFromFloat(r.CapUSD),
			MaxEquityPct:   decimal.NewFromFloat(r.MaxEquityPct),
			MinProfitUSD:   decimal.NewFromFloat(r.MinProfitUSD),
			SweepPct:       decimal.NewFromFloat(r.SweepPct),
			MinPnLUSD:      decimal.NewFromFloat(r.MinPnLUSD),
			MaxCompoundPct: decimal.NewFromFloat(r.MaxCompoundPct),
		}
		if r.Destination != "" {
			rule.Destinations = append(rule.Destinations, Destination{
				Wallet:   r.Destination,
				SplitPct: decimal.NewFromInt(100),
			})
		}
		for _, dst := range r.Destinations {
			rule.Destinations = append(rule.Destinations, Destination{
				Wallet:   dst.Wallet,
				SplitPct: decimal.NewFromFloat(dst.SplitPct),
			})
		}
		out = append(out, rule)
	}
	return out
}

// resolveSources expands a rule source into concrete wallet ids, in
// ledger registration order. Three forms: an exact wallet id, a role
// selector ("role:SCALPING"), or a trailing-star glob ("profits_*").
func resolveSources(src string, led *ledger.Ledger) []string {
	switch {
	case src == "":
		return nil
	case strings.HasPrefix(src, "role:"):
		role, ok := ledger.ParseRole(strings.TrimPrefix(src, "role:"))
		if !ok {
			return nil
		}
		return led.ByRole(role, "")
	case strings.HasSuffix(src, "*"):
		prefix := strings.TrimSuffix(src, "*")
		var out []string
		for _, id := range led.IDs() {
			if strings.HasPrefix(id, prefix) {
				out = append(out, id)
			}
		}
		return out
	default:
		if led.Has(src) {
			return []string{src}
		}
		return nil
	}
}
