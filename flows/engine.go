// Package flows evaluates the declarative inter-wallet money-movement
// rules (fee top-ups, threshold and profit sweeps, compounding) against
// the ledger on every tick.
package flows

import (
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/agent/ledger"
)

// AppliedFlow records one transfer a rule performed during a tick.
type AppliedFlow struct {
	Rule      string          `json:"rule"`
	Type      string          `json:"type"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	AmountUSD decimal.Decimal `json:"amount_usd"`
}

// plannedTransfer is one transfer the evaluation pass decided on before
// anything is applied.
type plannedTransfer struct {
	rule Rule
	from string
	to   string
	amt  decimal.Decimal
}

// Engine interprets the rule list. Rules are evaluated read-only
// against a consistent snapshot, then applied one transfer at a time in
// declaration order. A transfer failing on insufficient funds is
// logged and skipped; the rule simply runs again next tick.
type Engine struct {
	rules []Rule
	led   *ledger.Ledger

	// Day-scoped memory keeping ticks idempotent: cumulative profit
	// already swept per rule+wallet, and which compound rules ran today.
	day        string
	sweptToday map[string]decimal.Decimal
	compounded map[string]bool
}

func NewEngine(rules []Rule, led *ledger.Ledger) *Engine {
	return &Engine{
		rules:      rules,
		led:        led,
		sweptToday: make(map[string]decimal.Decimal),
		compounded: make(map[string]bool),
	}
}

var hundred = decimal.NewFromInt(100)

// Tick runs every rule once, in declaration order, and returns the
// transfers that were actually applied. Safe to call repeatedly: with
// no intervening trades a second tick is a no-op.
func (e *Engine) Tick() []AppliedFlow {
	snap := e.led.Snapshot()

	day := snap.UpdatedAt.UTC().Format("2006-01-02")
	if day != e.day {
		e.day = day
		e.sweptToday = make(map[string]decimal.Decimal)
		e.compounded = make(map[string]bool)
	}

	var applied []AppliedFlow
	for _, rule := range e.rules {
		var planned []plannedTransfer
		switch rule.Type {
		case TypeFeeTopup:
			planned = e.planFeeTopup(rule, snap)
		case TypeThresholdSweep:
			planned = e.planThresholdSweep(rule, snap)
		case TypeProfitSweep:
			planned = e.planProfitSweep(rule, snap)
		case TypeCompound:
			planned = e.planCompound(rule, snap)
		}

		for _, p := range planned {
			if err := e.led.Transfer(p.from, p.to, p.amt); err != nil {
				// Insufficient funds is expected: skip and retry on a
				// later tick once balances allow. Anything else is a
				// wiring bug worth louder logging.
				if errors.Is(err, ledger.ErrInsufficientFunds) {
					slog.Debug("flow transfer skipped",
						"rule", p.rule.Name, "from", p.from, "to", p.to,
						"amount_usd", p.amt, "err", err)
				} else {
					slog.Error("flow transfer failed",
						"rule", p.rule.Name, "from", p.from, "to", p.to,
						"amount_usd", p.amt, "err", err)
				}
				continue
			}
			e.committed(p)
			applied = append(applied, AppliedFlow{
				Rule:      p.rule.Name,
				Type:      p.rule.Type,
				From:      p.from,
				To:        p.to,
				AmountUSD: p.amt,
			})
			slog.Info("flow applied",
				"rule", p.rule.Name, "type", p.rule.Type,
				"from", p.from, "to", p.to, "amount_usd", p.amt)
		}

		// Later rules see the effect of earlier ones.
		snap = e.led.Snapshot()
	}
	return applied
}

// committed updates day-scoped memory after a successful transfer.
func (e *Engine) committed(p plannedTransfer) {
	switch p.rule.Type {
	case TypeProfitSweep:
		key := p.rule.Name + "/" + p.from
		e.sweptToday[key] = e.sweptToday[key].Add(p.amt)
	case TypeCompound:
		e.compounded[p.rule.Name] = true
	}
}

// Restore primes the day memory from a flow replayed out of the
// durable log, so a same-day restart does not sweep or compound a
// second time. Call in log order before the first Tick; records from
// earlier days reset the memory the same way Tick does.
func (e *Engine) Restore(f AppliedFlow, at time.Time) {
	day := at.UTC().Format("2006-01-02")
	if day != e.day {
		e.day = day
		e.sweptToday = make(map[string]decimal.Decimal)
		e.compounded = make(map[string]bool)
	}
	switch f.Type {
	case TypeProfitSweep:
		key := f.Rule + "/" + f.From
		e.sweptToday[key] = e.sweptToday[key].Add(f.AmountUSD)
	case TypeCompound:
		e.compounded[f.Rule] = true
	}
}

// planFeeTopup refills the destination buffer wallet up to its target
// when it has fallen under the minimum, limited by what the funding
// wallet holds.
func (e *Engine) planFeeTopup(rule Rule, snap ledger.Snapshot) []plannedTransfer {
	if len(rule.Destinations) == 0 {
		return nil
	}
	dst := rule.Destinations[0].Wallet

	buffer, ok := snap.Wallets[dst]
	if !ok || buffer.BalanceUSD.GreaterThanOrEqual(rule.MinBufferUSD) {
		return nil
	}

	target := rule.TargetUSD
	if target.LessThan(rule.MinBufferUSD) {
		target = rule.MinBufferUSD
	}
	need := target.Sub(buffer.BalanceUSD)

	var out []plannedTransfer
	for _, src := range resolveSources(rule.Source, e.led) {
		if src == dst {
			continue
		}
		funding, ok := snap.Wallets[src]
		if !ok || !funding.BalanceUSD.IsPositive() {
			continue
		}
		amt := decimal.Min(need, funding.BalanceUSD).Round(2)
		if !amt.IsPositive() {
			continue
		}
		out = append(out, plannedTransfer{rule: rule, from: src, to: dst, amt: amt})
		break // one funding source per tick is enough
	}
	return out
}

// planThresholdSweep moves the excess above a cap (absolute, or a
// percentage of total equity) off each source wallet, leaving it
// exactly at the cap.
func (e *Engine) planThresholdSweep(rule Rule, snap ledger.Snapshot) []plannedTransfer {
	capUSD := rule.CapUSD
	if rule.MaxEquityPct.IsPositive() {
		capUSD = snap.EquityTotalUSD.Mul(rule.MaxEquityPct).Div(hundred)
	}
	if !capUSD.IsPositive() {
		return nil
	}

	var out []plannedTransfer
	for _, src := range resolveSources(rule.Source, e.led) {
		w, ok := snap.Wallets[src]
		if !ok {
			continue
		}
		excess := w.BalanceUSD.Sub(capUSD).Round(2)
		if !excess.IsPositive() {
			continue
		}
		out = append(out, e.split(rule, src, excess)...)
	}
	return out
}

// planProfitSweep sends sweep_pct of today's realized profit toward the
// profits wallet. The engine remembers what it already swept today, so
// a tick without new profit plans nothing.
func (e *Engine) planProfitSweep(rule Rule, snap ledger.Snapshot) []plannedTransfer {
	var out []plannedTransfer
	for _, src := range resolveSources(rule.Source, e.led) {
		w, ok := snap.Wallets[src]
		if !ok {
			continue
		}
		profit := w.RealizedPnLTodayUSD
		if !profit.IsPositive() || profit.LessThan(rule.MinProfitUSD) {
			continue
		}

		targetCum := profit.Mul(rule.SweepPct).Div(hundred).Round(2)
		amt := targetCum.Sub(e.sweptToday[rule.Name+"/"+src])
		if !amt.IsPositive() {
			continue
		}
		out = append(out, e.split(rule, src, amt)...)
	}
	return out
}

// planCompound reinvests a bounded slice of the profit wallet back into
// the trading wallets, at most once per day, and only on a day that
// actually produced gross profit.
func (e *Engine) planCompound(rule Rule, snap ledger.Snapshot) []plannedTransfer {
	if e.compounded[rule.Name] {
		return nil
	}

	grossToday := decimal.Zero
	for _, w := range snap.Wallets {
		grossToday = grossToday.Add(w.GrossPnLTodayUSD)
	}
	if grossToday.LessThan(rule.MinPnLUSD) {
		return nil
	}

	sources := resolveSources(rule.Source, e.led)
	if len(sources) == 0 {
		return nil
	}
	src := sources[0]
	w, ok := snap.Wallets[src]
	if !ok {
		return nil
	}

	byPct := w.BalanceUSD.Mul(rule.MaxCompoundPct).Div(hundred)
	byFloor := w.BalanceUSD.Sub(rule.MinPnLUSD)
	amt := decimal.Min(byPct, byFloor).Round(2)
	if !amt.IsPositive() {
		return nil
	}

	dests := rule.Destinations
	if len(dests) == 0 {
		trading := e.led.TradingWallets()
		if len(trading) == 0 {
			return nil
		}
		each := hundred.Div(decimal.NewFromInt(int64(len(trading))))
		for _, id := range trading {
			dests = append(dests, Destination{Wallet: id, SplitPct: each})
		}
	}
	return splitAcross(rule, src, amt, dests)
}

// split distributes an amount across the rule's destinations by their
// declared split percentages.
func (e *Engine) split(rule Rule, src string, amt decimal.Decimal) []plannedTransfer {
	return splitAcross(rule, src, amt, rule.Destinations)
}

// Splits are percentages of the amount and may sum to less than 100;
// the remainder simply stays at the source.
func splitAcross(rule Rule, src string, amt decimal.Decimal, dests []Destination) []plannedTransfer {
	var out []plannedTransfer
	for _, dst := range dests {
		if dst.Wallet == src {
			continue
		}
		share := amt.Mul(dst.SplitPct).Div(hundred).Round(2)
		if !share.IsPositive() {
			continue
		}
		out = append(out, plannedTransfer{rule: rule, from: src, to: dst.Wallet, amt: share})
	}
	return out
}
