// Package agent wires the whole machine together and runs the
// scheduling loop: flows, signal intake, execution, persistence,
// reporting. One Agent per process.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/agent/config"
	"github.com/rustyeddy/agent/flows"
	"github.com/rustyeddy/agent/journal"
	"github.com/rustyeddy/agent/ledger"
	"github.com/rustyeddy/agent/metrics"
	"github.com/rustyeddy/agent/pipeline"
	"github.com/rustyeddy/agent/risk"
	"github.com/rustyeddy/agent/signals"
	"github.com/rustyeddy/agent/sim"
	"github.com/rustyeddy/agent/snapshot"
	"github.com/rustyeddy/agent/status"
	"github.com/rustyeddy/agent/store"
	"github.com/rustyeddy/agent/trade"
)

type Agent struct {
	cfg config.Config

	led      *ledger.Ledger
	gate     *risk.Gate
	flows    *flows.Engine
	pipe     *pipeline.Pipeline
	provider signals.Provider
	trades   *store.TradeStore
	flowlog  *store.FlowLog
	journal  journal.Journal
	snap     *snapshot.Writer
	hub      *status.Hub
	server   *status.Server

	tick         time.Duration
	drainTimeout time.Duration

	wg sync.WaitGroup
}

// New builds an agent from a validated config: ledger from initial
// balances, trade log opened (and replayed when configured), every
// collaborator wired. Nothing is running yet; call Run.
func New(cfg config.Config) (*Agent, error) {
	tick, err := cfg.Agent.ParseTickInterval()
	if err != nil {
		return nil, fmt.Errorf("agent config: %w", err)
	}
	drain, err := cfg.Agent.ParseDrainTimeout()
	if err != nil {
		return nil, fmt.Errorf("agent config: %w", err)
	}

	led := ledger.New()
	for _, w := range cfg.Wallets {
		role, ok := ledger.ParseRole(w.Role)
		if !ok {
			return nil, fmt.Errorf("wallet %s: unknown role %q", w.ID, w.Role)
		}
		chain := trade.NormalizeChain(w.Chain)
		if err := led.Register(w.ID, role, chain, decimal.NewFromFloat(w.BalanceUSD)); err != nil {
			return nil, fmt.Errorf("register wallet %s: %w", w.ID, err)
		}
	}

	trades, err := store.Open(cfg.Agent.TradeLogPath)
	if err != nil {
		return nil, err
	}

	flowPath := cfg.Agent.FlowLogPath
	if flowPath == "" {
		flowPath = filepath.Join(filepath.Dir(cfg.Agent.TradeLogPath), "flows.jsonl")
	}
	flowlog, err := store.OpenFlowLog(flowPath)
	if err != nil {
		trades.Close()
		return nil, err
	}

	flowEng := flows.NewEngine(flows.RulesFromConfig(cfg.Flows), led)

	if cfg.Agent.ReplayOnStart {
		if err := replay(trades, flowlog, led, flowEng); err != nil {
			flowlog.Close()
			trades.Close()
			return nil, fmt.Errorf("replay logs: %w", err)
		}
	}

	hub := status.NewHub()
	advise := func(adv risk.Advisory) {
		slog.Warn("risk advisory",
			"code", adv.Code, "wallet", adv.WalletID, "msg", adv.Message)
		hub.Broadcast(status.Event{Type: "risk_advisory", Data: adv})
	}
	gate := risk.NewGate(risk.PolicyFromConfig(cfg.Risk), advise)

	fillTimeout, err := cfg.Fill.ParseTimeout()
	if err != nil {
		flowlog.Close()
		trades.Close()
		return nil, fmt.Errorf("fill config: %w", err)
	}
	fillBackoff, err := cfg.Fill.ParseRetryBackoff()
	if err != nil {
		flowlog.Close()
		trades.Close()
		return nil, fmt.Errorf("fill config: %w", err)
	}
	fills := sim.NewEngine(decimal.NewFromFloat(cfg.Fill.FeeRate), cfg.Fill.Seed)
	pipe := pipeline.New(led, gate, fills, trades,
		fillTimeout, cfg.Fill.MaxRetries, fillBackoff)

	provider, err := buildProvider(cfg.Signals)
	if err != nil {
		flowlog.Close()
		trades.Close()
		return nil, err
	}

	jrnl, err := buildJournal(cfg.Journal)
	if err != nil {
		flowlog.Close()
		trades.Close()
		return nil, err
	}

	a := &Agent{
		cfg:          cfg,
		led:          led,
		gate:         gate,
		flows:        flowEng,
		pipe:         pipe,
		provider:     provider,
		trades:       trades,
		flowlog:      flowlog,
		journal:      jrnl,
		snap:         snapshot.NewWriter(cfg.Agent.SnapshotPath, led),
		hub:          hub,
		tick:         tick,
		drainTimeout: drain,
	}
	if cfg.Server.Enabled {
		a.server = status.NewServer(cfg.Server.Addr, led, gate, trades, pipe, hub)
	}
	return a, nil
}

// replay reconstructs balances and day counters from both durable
// logs. Trades re-apply PnL at their original timestamps; flows
// re-apply the transfer and prime the flow engine's day memory so a
// same-day restart does not sweep or compound twice. The two logs
// merge in timestamp order because the non-negative balance floor
// makes application order-sensitive. Records for wallets the config no
// longer declares are skipped.
func replay(trades *store.TradeStore, flowlog *store.FlowLog, led *ledger.Ledger, eng *flows.Engine) error {
	recs, err := trades.Trades()
	if err != nil {
		return err
	}
	frecs, err := flowlog.Flows()
	if err != nil {
		return err
	}

	type event struct {
		at    time.Time
		trade *trade.Record
		flow  *store.FlowRecord
	}
	events := make([]event, 0, len(recs)+len(frecs))
	for i := range recs {
		events = append(events, event{at: recs[i].Timestamp, trade: &recs[i]})
	}
	for i := range frecs {
		events = append(events, event{at: frecs[i].Timestamp, flow: &frecs[i]})
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].at.Before(events[j].at)
	})

	applied, moved := 0, 0
	for _, ev := range events {
		switch {
		case ev.trade != nil:
			rec := ev.trade
			if !led.Has(rec.WalletID) {
				slog.Warn("replay skipped unknown wallet",
					"trade", rec.ID, "wallet", rec.WalletID)
				continue
			}
			if _, err := led.ReplayPnL(rec.WalletID, rec.PnLUSD, rec.FeesUSD, rec.Timestamp); err != nil {
				return fmt.Errorf("replay trade %s: %w", rec.ID, err)
			}
			applied++
		case ev.flow != nil:
			f := ev.flow
			if err := led.Transfer(f.From, f.To, f.AmountUSD); err != nil {
				slog.Warn("replay skipped flow",
					"rule", f.Rule, "from", f.From, "to", f.To,
					"amount_usd", f.AmountUSD, "err", err)
				continue
			}
			eng.Restore(flows.AppliedFlow{
				Rule: f.Rule, Type: f.Type,
				From: f.From, To: f.To, AmountUSD: f.AmountUSD,
			}, f.Timestamp)
			moved++
		}
	}
	slog.Info("logs replayed", "trades", applied, "flows", moved)
	return nil
}

func buildProvider(sc config.SignalsConfig) (signals.Provider, error) {
	switch sc.Provider {
	case "stub":
		return signals.NewStub(sc.Seed, sc.Pairs, sc.Wallets,
			decimal.NewFromFloat(sc.NotionalUSD))
	case "dryrun":
		return signals.NewDryRun(sc.File)
	case "none", "":
		return signals.None{}, nil
	default:
		return nil, fmt.Errorf("unknown signal provider %q", sc.Provider)
	}
}

func buildJournal(jc config.JournalConfig) (journal.Journal, error) {
	switch jc.Type {
	case "sqlite":
		return journal.NewSQLite(jc.DBPath)
	case "csv":
		return journal.NewCSV(jc.TradesFile, jc.EquityFile)
	case "none", "":
		return journal.Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown journal type %q", jc.Type)
	}
}

// Run drives the loop until ctx is cancelled, then drains in-flight
// executions, flushes the final snapshot and tears everything down.
func (a *Agent) Run(ctx context.Context) error {
	slog.Info("agent starting",
		"tick", a.tick, "wallets", len(a.cfg.Wallets), "flows", len(a.cfg.Flows))

	if a.server != nil {
		go a.hub.Run()
		go func() {
			if err := a.server.Start(); err != nil {
				slog.Error("status server", "err", err)
			}
		}()
	}

	ticker := time.NewTicker(a.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return a.shutdown()
		case <-ticker.C:
			a.Tick(ctx)
		}
	}
}

// Tick runs one scheduling iteration: flows first, then every pending
// signal as its own unit of concurrency, then the periodic reporting.
func (a *Agent) Tick(ctx context.Context) {
	for _, applied := range a.flows.Tick() {
		if err := a.flowlog.Append(store.FlowRecord{
			Timestamp: time.Now().UTC(),
			Rule:      applied.Rule,
			Type:      applied.Type,
			From:      applied.From,
			To:        applied.To,
			AmountUSD: applied.AmountUSD,
		}); err != nil {
			slog.Error("flow log append", "rule", applied.Rule, "err", err)
		}
		metrics.FlowTransfersTotal.WithLabelValues(applied.Rule, applied.Type).Inc()
		a.hub.Broadcast(status.Event{Type: "flow", Data: applied})
	}

	sigs, err := a.provider.Pending(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("signal provider", "err", err)
		}
	}
	// Executions survive loop cancellation so an in-flight trade can
	// finish its store commit; shutdown bounds the wait instead.
	execCtx := context.WithoutCancel(ctx)
	for _, sig := range sigs {
		a.wg.Add(1)
		go func(sig trade.Signal) {
			defer a.wg.Done()
			a.execute(execCtx, sig)
		}(sig)
	}

	a.report()
}

func (a *Agent) execute(ctx context.Context, sig trade.Signal) {
	start := time.Now()
	res, err := a.pipe.Execute(ctx, sig)
	metrics.ExecuteDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		slog.Error("execute signal", "signal", sig.ID, "wallet", sig.WalletID, "err", err)
		return
	}
	if res.Record == nil {
		metrics.RejectionsTotal.WithLabelValues(sig.WalletID).Inc()
		a.hub.Broadcast(status.Event{Type: "rejection", Data: map[string]string{
			"signal": sig.ID, "wallet": sig.WalletID, "reason": res.Decision.Reason,
		}})
		return
	}

	metrics.TradesTotal.WithLabelValues(res.Record.WalletID, string(res.Record.Side)).Inc()
	if err := a.journal.RecordTrade(*res.Record); err != nil {
		slog.Error("journal trade", "trade", res.Record.ID, "err", err)
	}
	a.hub.Broadcast(status.Event{Type: "trade", Data: res.Record})
}

// report refreshes everything derived from the ledger: gauges, the
// runtime snapshot file, and the equity journal row.
func (a *Agent) report() {
	snap := a.led.Snapshot()

	equity, _ := snap.EquityTotalUSD.Float64()
	realized, _ := snap.PnLDay.TotalRealizedUSD.Float64()
	metrics.EquityTotalUSD.Set(equity)
	metrics.RealizedTodayUSD.Set(realized)
	if a.gate.Status().HardStopActive {
		metrics.KillSwitchActive.Set(1)
	} else {
		metrics.KillSwitchActive.Set(0)
	}

	if err := a.snap.Write(); err != nil {
		slog.Error("write snapshot", "err", err)
	}
	if err := a.journal.RecordEquity(journal.EquitySnapshot{
		Time:             snap.UpdatedAt,
		EquityTotalUSD:   snap.EquityTotalUSD,
		RealizedTodayUSD: snap.PnLDay.TotalRealizedUSD,
		FeesTodayUSD:     snap.PnLDay.TotalFeesUSD,
		WalletsCount:     snap.WalletsCount,
	}); err != nil {
		slog.Error("journal equity", "err", err)
	}
}

// shutdown drains in-flight executions, bounded by the configured
// timeout, then flushes and closes everything in dependency order.
func (a *Agent) shutdown() error {
	slog.Info("agent draining")

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(a.drainTimeout):
		slog.Warn("drain timeout reached, in-flight work abandoned")
	}

	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("status server shutdown", "err", err)
		}
		cancel()
	}

	if err := a.snap.Write(); err != nil {
		slog.Error("final snapshot", "err", err)
	}
	if err := a.journal.Close(); err != nil {
		slog.Warn("close journal", "err", err)
	}
	if err := a.flowlog.Close(); err != nil {
		slog.Warn("close flow log", "err", err)
	}
	if err := a.trades.Close(); err != nil {
		return fmt.Errorf("close trade log: %w", err)
	}

	slog.Info("agent stopped")
	return nil
}
