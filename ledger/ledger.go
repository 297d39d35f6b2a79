// Package ledger keeps the authoritative in-memory account of money
// across every logical wallet. All balance and PnL mutation in the
// system goes through this package; other components hold no direct
// reference to wallet state.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownWallet means a wallet id is not registered. During
	// policy load this is fatal; at runtime it is a logic error and is
	// surfaced, never retried.
	ErrUnknownWallet = errors.New("ledger: unknown wallet")

	// ErrInsufficientFunds means a transfer could not be covered by the
	// source balance. Transfers are all-or-nothing.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	errDuplicateWallet = errors.New("ledger: wallet already registered")
)

const dateLayout = "2006-01-02"

// Ledger owns every Wallet. A single RWMutex guards the map: mutations
// take the write lock, so at most one mutation is in flight per wallet
// and a two-wallet transfer is never observed half-applied.
type Ledger struct {
	mu      sync.RWMutex
	wallets map[string]*WalletState
	order   []string

	now func() time.Time
}

func New() *Ledger {
	return &Ledger{
		wallets: make(map[string]*WalletState),
		now:     time.Now,
	}
}

// Register adds a wallet with its starting balance. Called once per
// wallet at startup, before any trading.
func (l *Ledger) Register(id string, role Role, chain string, balanceUSD decimal.Decimal) error {
	if balanceUSD.IsNegative() {
		return fmt.Errorf("ledger: wallet %q starting balance %s is negative", id, balanceUSD)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.wallets[id]; ok {
		return fmt.Errorf("%w: %s", errDuplicateWallet, id)
	}
	l.wallets[id] = &WalletState{
		ID:            id,
		Role:          role,
		Chain:         chain,
		BalanceUSD:    balanceUSD,
		LastResetDate: l.now().UTC().Format(dateLayout),
	}
	l.order = append(l.order, id)
	return nil
}

// ApplyPnL commits one trade outcome: balance += pnl - fees, day
// counters updated, loser streak incremented on a loss and reset
// otherwise. Returns the wallet state after the mutation.
func (l *Ledger) ApplyPnL(id string, pnlUSD, feesUSD decimal.Decimal) (WalletState, error) {
	return l.applyPnLAt(id, pnlUSD, feesUSD, l.now())
}

// ReplayPnL applies a historical trade outcome at its original
// timestamp, so day counters reconstruct correctly when the ledger is
// rebuilt from the trade log.
func (l *Ledger) ReplayPnL(id string, pnlUSD, feesUSD decimal.Decimal, at time.Time) (WalletState, error) {
	return l.applyPnLAt(id, pnlUSD, feesUSD, at)
}

func (l *Ledger) applyPnLAt(id string, pnlUSD, feesUSD decimal.Decimal, at time.Time) (WalletState, error) {
	day := at.UTC().Format(dateLayout)

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.wallets[id]
	if !ok {
		return WalletState{}, fmt.Errorf("%w: %s", ErrUnknownWallet, id)
	}

	rolloverLocked(w, day)

	w.BalanceUSD = w.BalanceUSD.Add(pnlUSD).Sub(feesUSD)
	if w.BalanceUSD.IsNegative() {
		// A trade can never lose more than its notional, which risk
		// capped at a fraction of the balance; floor to keep the
		// non-negativity invariant if an upstream fill misreports.
		w.BalanceUSD = decimal.Zero
	}

	w.RealizedPnLTodayUSD = w.RealizedPnLTodayUSD.Add(pnlUSD).Sub(feesUSD)
	w.GrossPnLTodayUSD = w.GrossPnLTodayUSD.Add(pnlUSD)
	w.FeesPaidTodayUSD = w.FeesPaidTodayUSD.Add(feesUSD)

	if pnlUSD.IsNegative() {
		w.ConsecutiveLosingTrades++
	} else {
		w.ConsecutiveLosingTrades = 0
	}

	return *w, nil
}

// Transfer moves amountUSD from src to dst atomically. It does not
// touch PnL counters: flows move money, they do not realize profit.
func (l *Ledger) Transfer(srcID, dstID string, amountUSD decimal.Decimal) error {
	if !amountUSD.IsPositive() {
		return fmt.Errorf("ledger: transfer amount %s must be positive", amountUSD)
	}
	if srcID == dstID {
		return fmt.Errorf("ledger: transfer %s -> %s targets the source wallet", srcID, dstID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	src, ok := l.wallets[srcID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWallet, srcID)
	}
	dst, ok := l.wallets[dstID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWallet, dstID)
	}

	if src.BalanceUSD.LessThan(amountUSD) {
		return fmt.Errorf("%w: %s has %s, need %s", ErrInsufficientFunds, srcID, src.BalanceUSD, amountUSD)
	}

	src.BalanceUSD = src.BalanceUSD.Sub(amountUSD)
	dst.BalanceUSD = dst.BalanceUSD.Add(amountUSD)
	return nil
}

// Wallet returns a copy of one wallet's current state.
func (l *Ledger) Wallet(id string) (WalletState, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	w, ok := l.wallets[id]
	if !ok {
		return WalletState{}, fmt.Errorf("%w: %s", ErrUnknownWallet, id)
	}
	return *w, nil
}

// Has reports whether a wallet id is registered.
func (l *Ledger) Has(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.wallets[id]
	return ok
}

// IDs returns wallet ids in registration order.
func (l *Ledger) IDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// rolloverLocked zeroes the day-scoped counters exactly once when the
// wallet is first touched on a new UTC day. Caller holds the write lock.
func rolloverLocked(w *WalletState, day string) {
	if w.LastResetDate == day {
		return
	}
	w.RealizedPnLTodayUSD = decimal.Zero
	w.GrossPnLTodayUSD = decimal.Zero
	w.FeesPaidTodayUSD = decimal.Zero
	w.LastResetDate = day
}
