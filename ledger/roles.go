package ledger

import "github.com/rustyeddy/agent/trade"

// ByRole returns ids of wallets carrying the role, in registration
// order. chain filters to one canonical chain; pass "" for all chains.
func (l *Ledger) ByRole(role Role, chain string) []string {
	want := ""
	if chain != "" {
		want = trade.NormalizeChain(chain)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []string
	for _, id := range l.order {
		w := l.wallets[id]
		if w.Role != role {
			continue
		}
		if want != "" && trade.NormalizeChain(w.Chain) != want {
			continue
		}
		out = append(out, id)
	}
	return out
}

// TradingWallets returns the wallets that place trades, the default
// destinations for compounded capital.
func (l *Ledger) TradingWallets() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []string
	for _, id := range l.order {
		if TradingRoles[l.wallets[id].Role] {
			out = append(out, id)
		}
	}
	return out
}
