// Package pipeline drives one signal from admission to settlement:
// validate, risk check, fill, durable append, ledger apply. A signal
// either completes all of it or leaves no trace in the ledger.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rustyeddy/agent/ledger"
	"github.com/rustyeddy/agent/pkg/id"
	"github.com/rustyeddy/agent/risk"
	"github.com/rustyeddy/agent/trade"
)

var (
	// ErrInvalidSignal rejects a malformed signal before any side
	// effect. The signal never reaches the risk gate.
	ErrInvalidSignal = errors.New("invalid signal")

	// ErrLedgerInconsistency means a record was durably appended but
	// the ledger refused the matching mutation. The pipeline halts and
	// stays halted until an operator resolves the divergence.
	ErrLedgerInconsistency = errors.New("trade log and ledger diverged")

	// ErrHalted is returned for every signal after an inconsistency.
	ErrHalted = errors.New("pipeline halted")

	// errFillFailed wraps fill engine errors once retries are spent.
	errFillFailed = errors.New("fill failed")
)

// FillEngine prices and settles an admitted signal.
type FillEngine interface {
	Fill(ctx context.Context, sig trade.Signal) (trade.Fill, error)
}

// TradeLog is the durable append target. Append returning nil means
// the record survives a crash.
type TradeLog interface {
	Append(rec trade.Record) error
}

// Result is the outcome of one Execute call. Record is nil when the
// risk gate rejected the signal; Decision always carries the reason.
type Result struct {
	Decision risk.Decision
	Record   *trade.Record
}

type Pipeline struct {
	led   *ledger.Ledger
	gate  *risk.Gate
	fills FillEngine
	log   TradeLog

	timeout    time.Duration
	maxRetries int
	backoff    time.Duration

	mu      sync.Mutex
	halted  bool
	haltErr error
	wallets map[string]*sync.Mutex

	now func() time.Time
}

func New(led *ledger.Ledger, gate *risk.Gate, fills FillEngine, log TradeLog,
	timeout time.Duration, maxRetries int, backoff time.Duration) *Pipeline {
	return &Pipeline{
		led:        led,
		gate:       gate,
		fills:      fills,
		log:        log,
		timeout:    timeout,
		maxRetries: maxRetries,
		backoff:    backoff,
		wallets:    make(map[string]*sync.Mutex),
		now:        time.Now,
	}
}

// Execute runs one signal end to end. Calls for the same wallet
// serialize; different wallets proceed independently. A risk rejection
// is a normal Result, not an error.
func (p *Pipeline) Execute(ctx context.Context, sig trade.Signal) (Result, error) {
	if err := p.haltedErr(); err != nil {
		return Result{}, err
	}
	if err := p.validate(sig); err != nil {
		return Result{}, err
	}

	wmu := p.walletLock(sig.WalletID)
	wmu.Lock()
	defer wmu.Unlock()

	dec := p.gate.Evaluate(sig, p.led.Snapshot())
	if dec.Action == risk.Reject {
		slog.Info("signal rejected",
			"signal", sig.ID, "wallet", sig.WalletID, "reason", dec.Reason)
		return Result{Decision: dec}, nil
	}
	if dec.Action == risk.Adjust {
		slog.Info("signal adjusted",
			"signal", sig.ID, "wallet", sig.WalletID,
			"notional_usd", dec.NotionalUSD, "reason", dec.Reason)
		sig.NotionalUSD = dec.NotionalUSD
	}

	p.gate.RegisterOpen(sig.WalletID)
	defer p.gate.RegisterClose(sig.WalletID)

	fill, err := p.fill(ctx, sig)
	if err != nil {
		return Result{}, err
	}

	rec := trade.Record{
		ID:          id.New(),
		Timestamp:   p.now().UTC(),
		WalletID:    sig.WalletID,
		Pair:        sig.Pair,
		Side:        sig.Side,
		NotionalUSD: sig.NotionalUSD,
		FillPrice:   fill.Price,
		PnLUSD:      fill.PnLUSD,
		FeesUSD:     fill.FeesUSD,
		Meta: trade.Meta{
			Strategy: sig.StrategyID,
			Source:   "paper",
		},
	}

	// Durable before acknowledged: the append lands on disk before the
	// ledger moves. A crash between the two replays the record.
	if err := p.log.Append(rec); err != nil {
		return Result{}, fmt.Errorf("append trade %s: %w", rec.ID, err)
	}

	if _, err := p.led.ApplyPnL(sig.WalletID, fill.PnLUSD, fill.FeesUSD); err != nil {
		p.halt(fmt.Errorf("%w: trade %s applied to log but not ledger: %v",
			ErrLedgerInconsistency, rec.ID, err))
		return Result{}, p.haltedErr()
	}

	return Result{Decision: dec, Record: &rec}, nil
}

// fill calls the engine with a per-attempt timeout and bounded retries.
// Attempt errors are treated as transient; parent cancellation is not.
func (p *Pipeline) fill(ctx context.Context, sig trade.Signal) (trade.Fill, error) {
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			slog.Warn("fill retry",
				"signal", sig.ID, "attempt", attempt, "err", lastErr)
			select {
			case <-ctx.Done():
				return trade.Fill{}, ctx.Err()
			case <-time.After(p.backoff):
			}
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if p.timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.timeout)
		}
		fill, err := p.fills.Fill(attemptCtx, sig)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return fill, nil
		}
		if ctx.Err() != nil {
			return trade.Fill{}, ctx.Err()
		}
		lastErr = err
	}
	return trade.Fill{}, fmt.Errorf("%w after %d attempts: %v",
		errFillFailed, p.maxRetries+1, lastErr)
}

// Halted reports whether the pipeline latched, and why.
func (p *Pipeline) Halted() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.halted, p.haltErr
}

func (p *Pipeline) halt(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.halted {
		return
	}
	p.halted = true
	p.haltErr = err
	slog.Error("pipeline halted", "err", err)
}

func (p *Pipeline) haltedErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.halted {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrHalted, p.haltErr)
}

func (p *Pipeline) walletLock(walletID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.wallets[walletID]
	if !ok {
		m = &sync.Mutex{}
		p.wallets[walletID] = m
	}
	return m
}

// validate is the pure shape check before any side effect. An unknown
// wallet fails here so it can never reach the durable log, even when
// the risk gate is disabled.
func (p *Pipeline) validate(sig trade.Signal) error {
	switch {
	case sig.WalletID == "":
		return fmt.Errorf("%w: missing wallet id", ErrInvalidSignal)
	case !p.led.Has(sig.WalletID):
		return fmt.Errorf("%w: unknown wallet %s", ErrInvalidSignal, sig.WalletID)
	case sig.Pair == "":
		return fmt.Errorf("%w: missing pair", ErrInvalidSignal)
	case sig.Side != trade.Buy && sig.Side != trade.Sell:
		return fmt.Errorf("%w: side %q", ErrInvalidSignal, sig.Side)
	case !sig.NotionalUSD.IsPositive():
		return fmt.Errorf("%w: notional %s", ErrInvalidSignal, sig.NotionalUSD)
	case sig.StopLoss != nil && !sig.StopLoss.IsPositive():
		return fmt.Errorf("%w: stop loss %s", ErrInvalidSignal, sig.StopLoss)
	case sig.TakeProfit != nil && !sig.TakeProfit.IsPositive():
		return fmt.Errorf("%w: take profit %s", ErrInvalidSignal, sig.TakeProfit)
	}
	return nil
}
