package signals

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/agent/trade"
)

// Stub emits one synthetic signal per tick over a fixed universe of
// pairs and wallets. Deterministic under its seed, including the
// signal ids: two stubs with the same seed and universe produce the
// same stream.
type Stub struct {
	mu       sync.Mutex
	rng      *rand.Rand
	pairs    []string
	wallets  []string
	notional decimal.Decimal
}

func NewStub(seed int64, pairs, wallets []string, notionalUSD decimal.Decimal) (*Stub, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("stub provider: no pairs configured")
	}
	if len(wallets) == 0 {
		return nil, fmt.Errorf("stub provider: no wallets configured")
	}
	return &Stub{
		rng:      rand.New(rand.NewSource(seed)),
		pairs:    pairs,
		wallets:  wallets,
		notional: notionalUSD,
	}, nil
}

func (s *Stub) Pending(ctx context.Context) ([]trade.Signal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := uuid.NewRandomFromReader(s.rng)
	if err != nil {
		return nil, fmt.Errorf("stub signal id: %w", err)
	}

	side := trade.Buy
	if s.rng.Intn(2) == 1 {
		side = trade.Sell
	}

	return []trade.Signal{{
		ID:          id.String(),
		WalletID:    s.wallets[s.rng.Intn(len(s.wallets))],
		StrategyID:  "stub",
		Pair:        s.pairs[s.rng.Intn(len(s.pairs))],
		Side:        side,
		NotionalUSD: s.notional,
	}}, nil
}
