// Package risk is the stateful admission controller in front of the
// execution pipeline. Rejections here are normal decision outcomes,
// not errors.
package risk

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/agent/ledger"
	"github.com/rustyeddy/agent/trade"
)

// Action is the outcome class of an evaluation.
type Action string

const (
	Accept Action = "ACCEPT"
	Adjust Action = "ADJUST"
	Reject Action = "REJECT"
)

// Decision is produced per signal and never persisted on its own; only
// the resulting trade record or rejection entry reflects it.
type Decision struct {
	Action      Action
	NotionalUSD decimal.Decimal
	Reason      string
}

// Advisory is a non-blocking warning for the alerting collaborator.
type Advisory struct {
	Code     string
	WalletID string
	Message  string
}

// AdvisoryFunc receives warning-level events. May be nil.
type AdvisoryFunc func(Advisory)

// Status is the read-only risk view the dashboard collaborator
// consumes.
type Status struct {
	HardStopActive   bool            `json:"hard_stop_active"`
	SoftStopActive   bool            `json:"soft_stop_active"`
	HardStopReason   string          `json:"hard_stop_reason,omitempty"`
	DailyDrawdownPct decimal.Decimal `json:"daily_drawdown_pct"`
	DayStartEquity   decimal.Decimal `json:"day_start_equity_usd"`
}

// Gate evaluates every proposed trade against the policy and the
// current ledger snapshot. The kill switch is latched state: once set
// it blocks all admission until ResetKillSwitch, never auto-cleared.
type Gate struct {
	policy Policy
	advise AdvisoryFunc

	mu             sync.Mutex
	hardStop       bool
	hardStopReason string
	softStop       bool
	drawdownPct    decimal.Decimal
	dayStartEquity decimal.Decimal
	openPositions  map[string]int
}

func NewGate(policy Policy, advise AdvisoryFunc) *Gate {
	return &Gate{
		policy:        policy,
		advise:        advise,
		openPositions: make(map[string]int),
	}
}

var hundred = decimal.NewFromInt(100)

// Evaluate runs the admission checks in order; the first failing check
// short-circuits to Reject with a reason naming the violated rule.
func (g *Gate) Evaluate(sig trade.Signal, snap ledger.Snapshot) Decision {
	if !g.policy.Enabled {
		return Decision{Action: Accept, NotionalUSD: sig.NotionalUSD, Reason: "risk disabled"}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.updateDrawdownLocked(snap)

	// 1. Latched circuit breaker.
	if g.hardStop {
		return Decision{Action: Reject, Reason: "kill switch active: " + g.hardStopReason}
	}

	// 2. Global daily drawdown / operational capital floor. Tripping
	// either latches the kill switch for every subsequent signal.
	if g.drawdownPct.GreaterThanOrEqual(g.policy.CriticalDrawdownPct) {
		reason := fmt.Sprintf("global daily drawdown %s%% >= critical %s%%",
			g.drawdownPct.StringFixed(2), g.policy.CriticalDrawdownPct.StringFixed(2))
		g.latchLocked(reason)
		return Decision{Action: Reject, Reason: reason}
	}
	if g.policy.MinOperationalCapitalUSD.IsPositive() &&
		snap.EquityTotalUSD.LessThan(g.policy.MinOperationalCapitalUSD) {
		reason := fmt.Sprintf("equity %s below operational floor %s",
			snap.EquityTotalUSD.StringFixed(2), g.policy.MinOperationalCapitalUSD.StringFixed(2))
		g.latchLocked(reason)
		return Decision{Action: Reject, Reason: reason}
	}
	if g.softStop && g.advise != nil {
		g.advise(Advisory{
			Code:    "DRAWDOWN_WARNING",
			Message: fmt.Sprintf("global daily drawdown %s%% past warning threshold", g.drawdownPct.StringFixed(2)),
		})
	}

	wallet, ok := snap.Wallets[sig.WalletID]
	if !ok {
		return Decision{Action: Reject, Reason: fmt.Sprintf("wallet %q not in ledger snapshot", sig.WalletID)}
	}

	// 3. Per-wallet losing streak.
	if g.policy.MaxConsecutiveLosersCritical > 0 &&
		wallet.ConsecutiveLosingTrades >= g.policy.MaxConsecutiveLosersCritical {
		return Decision{Action: Reject, Reason: fmt.Sprintf(
			"wallet %s consecutive losers %d >= critical %d",
			sig.WalletID, wallet.ConsecutiveLosingTrades, g.policy.MaxConsecutiveLosersCritical)}
	}
	if g.advise != nil && g.policy.MaxConsecutiveLosersWarning > 0 &&
		wallet.ConsecutiveLosingTrades >= g.policy.MaxConsecutiveLosersWarning {
		g.advise(Advisory{
			Code:     "LOSER_STREAK_WARNING",
			WalletID: sig.WalletID,
			Message: fmt.Sprintf("wallet %s has %d consecutive losing trades",
				sig.WalletID, wallet.ConsecutiveLosingTrades),
		})
	}

	limits := g.policy.Wallets[sig.WalletID]
	notional := sig.NotionalUSD
	action := Accept
	reason := "ok"

	// 4. Size cap: clamp instead of rejecting, preserving strategy
	// intent at reduced size.
	if limits.MaxPctBalancePerTrade.IsPositive() {
		capUSD := wallet.BalanceUSD.Mul(limits.MaxPctBalancePerTrade).Div(hundred)
		if notional.GreaterThan(capUSD) {
			notional = capUSD
			action = Adjust
			reason = fmt.Sprintf("notional clamped to %s%% of balance (%s)",
				limits.MaxPctBalancePerTrade.StringFixed(2), capUSD.StringFixed(2))
		}
	}

	// 5. Exposure caps.
	if limits.MaxOpenPositions > 0 && g.openPositions[sig.WalletID] >= limits.MaxOpenPositions {
		return Decision{Action: Reject, Reason: fmt.Sprintf(
			"wallet %s open positions %d >= max %d",
			sig.WalletID, g.openPositions[sig.WalletID], limits.MaxOpenPositions)}
	}
	if limits.MaxNotionalPerAsset.IsPositive() && notional.GreaterThan(limits.MaxNotionalPerAsset) {
		return Decision{Action: Reject, Reason: fmt.Sprintf(
			"notional %s exceeds per-asset cap %s for %s",
			notional.StringFixed(2), limits.MaxNotionalPerAsset.StringFixed(2), sig.Pair)}
	}

	// 6. Admitted.
	return Decision{Action: action, NotionalUSD: notional, Reason: reason}
}

// latchLocked sets the kill switch. Caller holds g.mu.
func (g *Gate) latchLocked(reason string) {
	if g.hardStop {
		return
	}
	g.hardStop = true
	g.hardStopReason = reason
	slog.Warn("risk kill switch latched", "reason", reason)
}

// TripKillSwitch latches the circuit breaker from outside the
// evaluation path (operator action or fatal pipeline state).
func (g *Gate) TripKillSwitch(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.latchLocked(reason)
}

// ResetKillSwitch is the explicit external reset action; nothing else
// clears the latch.
func (g *Gate) ResetKillSwitch() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.hardStop {
		return
	}
	g.hardStop = false
	g.hardStopReason = ""
	slog.Info("risk kill switch reset")
}

// RegisterOpen and RegisterClose keep the per-wallet open-position
// count the exposure check reads.
func (g *Gate) RegisterOpen(walletID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.openPositions[walletID]++
}

func (g *Gate) RegisterClose(walletID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.openPositions[walletID] > 0 {
		g.openPositions[walletID]--
	}
}

// Status returns the current risk view for the dashboard collaborator.
func (g *Gate) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Status{
		HardStopActive:   g.hardStop,
		SoftStopActive:   g.softStop,
		HardStopReason:   g.hardStopReason,
		DailyDrawdownPct: g.drawdownPct,
		DayStartEquity:   g.dayStartEquity,
	}
}

// updateDrawdownLocked recomputes today's global drawdown from the
// snapshot: drawdown = -min(0, pnl_today / day_start_equity) as a
// percentage. Caller holds g.mu.
func (g *Gate) updateDrawdownLocked(snap ledger.Snapshot) {
	dayStart := snap.DayStartEquityUSD()
	g.dayStartEquity = dayStart

	if !dayStart.IsPositive() {
		// No capital to measure against: only a loss can get us here.
		if snap.GlobalRealizedTodayUSD().IsNegative() {
			g.drawdownPct = hundred
		} else {
			g.drawdownPct = decimal.Zero
		}
		g.softStop = false
		return
	}

	pnlPct := snap.GlobalRealizedTodayUSD().Div(dayStart).Mul(hundred)
	if pnlPct.IsNegative() {
		g.drawdownPct = pnlPct.Neg()
	} else {
		g.drawdownPct = decimal.Zero
	}

	g.softStop = g.policy.WarningDrawdownPct.IsPositive() &&
		g.drawdownPct.GreaterThanOrEqual(g.policy.WarningDrawdownPct) &&
		g.drawdownPct.LessThan(g.policy.CriticalDrawdownPct)
}
