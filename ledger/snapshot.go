package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is a consistent point-in-time view of every wallet. It is a
// derived structure: always reconstructible from the trade log plus
// initial balances, never the source of truth.
type Snapshot struct {
	UpdatedAt      time.Time              `json:"updated_at"`
	WalletsCount   int                    `json:"wallets_count"`
	EquityTotalUSD decimal.Decimal        `json:"equity_total_usd"`
	Wallets        map[string]WalletState `json:"wallets"`
	PnLDay         PnLDay                 `json:"pnl_day"`
}

// PnLDay aggregates today's realized PnL and fees across all wallets.
type PnLDay struct {
	TotalRealizedUSD decimal.Decimal `json:"total_realized_usd"`
	TotalFeesUSD     decimal.Decimal `json:"total_fees_usd"`
}

// Snapshot takes a read lock over all wallets and returns copies, so
// readers never observe an in-progress multi-wallet transfer
// half-applied. If any wallet's day counters are stale it upgrades to
// the write lock and rolls them over first.
func (l *Ledger) Snapshot() Snapshot {
	now := l.now().UTC()
	day := now.Format(dateLayout)

	l.mu.RLock()
	stale := false
	for _, w := range l.wallets {
		if w.LastResetDate != day {
			stale = true
			break
		}
	}
	if !stale {
		snap := l.snapshotLocked(now)
		l.mu.RUnlock()
		return snap
	}
	l.mu.RUnlock()

	l.mu.Lock()
	for _, w := range l.wallets {
		rolloverLocked(w, day)
	}
	snap := l.snapshotLocked(now)
	l.mu.Unlock()
	return snap
}

// snapshotLocked builds the view. Caller holds at least the read lock
// and has already handled day rollover.
func (l *Ledger) snapshotLocked(now time.Time) Snapshot {
	snap := Snapshot{
		UpdatedAt: now,
		Wallets:   make(map[string]WalletState, len(l.wallets)),
	}
	for _, id := range l.order {
		w := l.wallets[id]
		snap.Wallets[id] = *w
		snap.EquityTotalUSD = snap.EquityTotalUSD.Add(w.BalanceUSD)
		snap.PnLDay.TotalRealizedUSD = snap.PnLDay.TotalRealizedUSD.Add(w.RealizedPnLTodayUSD)
		snap.PnLDay.TotalFeesUSD = snap.PnLDay.TotalFeesUSD.Add(w.FeesPaidTodayUSD)
	}
	snap.WalletsCount = len(snap.Wallets)
	return snap
}

// GlobalRealizedTodayUSD is the day's realized PnL summed over wallets.
func (s Snapshot) GlobalRealizedTodayUSD() decimal.Decimal {
	return s.PnLDay.TotalRealizedUSD
}

// DayStartEquityUSD approximates equity at the start of the UTC day:
// current equity minus what today realized.
func (s Snapshot) DayStartEquityUSD() decimal.Decimal {
	return s.EquityTotalUSD.Sub(s.PnLDay.TotalRealizedUSD)
}
