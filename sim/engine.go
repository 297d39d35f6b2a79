// Package sim is a paper fill engine: it prices and settles admitted
// signals without touching any venue, deterministically under a seed.
package sim

import (
	"context"
	"hash/fnv"
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/agent/trade"
)

// Engine simulates fills. Each pair carries a synthetic price that
// walks a small step on every fill. Two engines built with the same
// seed and fed the same signal sequence produce identical fills.
type Engine struct {
	mu      sync.Mutex
	rng     *rand.Rand
	feeRate decimal.Decimal
	prices  map[string]decimal.Decimal
}

func NewEngine(feeRate decimal.Decimal, seed int64) *Engine {
	return &Engine{
		rng:     rand.New(rand.NewSource(seed)),
		feeRate: feeRate,
		prices:  make(map[string]decimal.Decimal),
	}
}

// SetPrice pins the current price for a pair, overriding the synthetic
// one. Used by replays and tests that need known fill prices.
func (e *Engine) SetPrice(pair string, price decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prices[pair] = price
}

// Price returns the engine's current price for a pair, deriving the
// starting price if the pair has never traded.
func (e *Engine) Price(pair string) decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.priceLocked(pair)
}

// Fill settles one signal: buy (or sell) notional_usd at the current
// price, then mark against a one-step simulated exit. The exit is
// clamped to the signal's stop loss and take profit when set, so the
// simulated loss can never exceed what the stop allows.
func (e *Engine) Fill(ctx context.Context, sig trade.Signal) (trade.Fill, error) {
	if err := ctx.Err(); err != nil {
		return trade.Fill{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	fillPrice := e.priceLocked(sig.Pair)

	// Exit after one random walk step, at most 2% either way.
	ret := decimal.NewFromFloat((e.rng.Float64() - 0.5) * 0.04)
	exit := fillPrice.Mul(decimal.NewFromInt(1).Add(ret))
	if sig.Side == trade.Buy {
		if sig.StopLoss != nil && exit.LessThan(*sig.StopLoss) {
			exit = *sig.StopLoss
		}
		if sig.TakeProfit != nil && exit.GreaterThan(*sig.TakeProfit) {
			exit = *sig.TakeProfit
		}
	} else {
		if sig.StopLoss != nil && exit.GreaterThan(*sig.StopLoss) {
			exit = *sig.StopLoss
		}
		if sig.TakeProfit != nil && exit.LessThan(*sig.TakeProfit) {
			exit = *sig.TakeProfit
		}
	}
	e.prices[sig.Pair] = exit

	var qty decimal.Decimal
	if fillPrice.IsPositive() && sig.NotionalUSD.IsPositive() {
		qty = sig.NotionalUSD.Div(fillPrice)
	}

	pnl := exit.Sub(fillPrice).Mul(qty)
	if sig.Side == trade.Sell {
		pnl = pnl.Neg()
	}

	fees := decimal.Zero
	if e.feeRate.IsPositive() {
		fees = sig.NotionalUSD.Mul(e.feeRate)
	}

	return trade.Fill{
		Price:   fillPrice.Round(8),
		PnLUSD:  pnl.Round(8),
		FeesUSD: fees.Round(8),
	}, nil
}

// priceLocked derives a stable starting price from the pair name, so a
// fresh engine quotes the same pair at the same level every run.
func (e *Engine) priceLocked(pair string) decimal.Decimal {
	if p, ok := e.prices[pair]; ok {
		return p
	}
	h := fnv.New32a()
	h.Write([]byte(pair))
	// Spread starting prices over (0.50, 205.30].
	base := decimal.NewFromInt(int64(h.Sum32()%2048) + 10).Div(decimal.NewFromInt(10))
	e.prices[pair] = base
	return base
}
