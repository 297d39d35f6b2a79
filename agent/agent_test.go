package agent

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/agent/config"
	"github.com/rustyeddy/agent/journal"
	"github.com/rustyeddy/agent/store"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Agent: config.AgentConfig{
			TickInterval:  "100ms",
			TradeLogPath:  filepath.Join(dir, "trades.jsonl"),
			SnapshotPath:  filepath.Join(dir, "wallets_runtime.json"),
			DrainTimeout:  "2s",
			ReplayOnStart: true,
		},
		Wallets: []config.WalletConfig{
			{ID: "sniper_sol", Role: "SCALPING", Chain: "sol", BalanceUSD: 30},
			{ID: "profits_sol", Role: "PROFITS", Chain: "sol", BalanceUSD: 0},
			{ID: "vault", Role: "VAULT", Chain: "eth", BalanceUSD: 120},
		},
		Risk: config.RiskConfig{
			Global: config.GlobalRiskConfig{
				Enabled:                      true,
				WarningDrawdownPct:           5,
				CriticalDrawdownPct:          15,
				MaxConsecutiveLosersWarning:  3,
				MaxConsecutiveLosersCritical: 5,
			},
			Wallets: map[string]config.WalletRiskConfig{
				"sniper_sol": {MaxPctBalancePerTrade: 50},
			},
		},
		Fill:    config.FillConfig{Engine: "paper", FeeRate: 0.02, Seed: 42},
		Signals: config.SignalsConfig{Provider: "none"},
		Journal: config.JournalConfig{Type: "none"},
	}
}

func TestNewReplaysTradeLog(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)

	// A crashed session left one losing trade behind.
	writeTradeLine(t, cfg.Agent.TradeLogPath, "sniper_sol", "-2", "0.1", "2026-03-14T10:00:00Z")

	a, err := New(cfg)
	require.NoError(t, err)
	defer a.trades.Close()

	w, err := a.led.Wallet("sniper_sol")
	require.NoError(t, err)
	assert.True(t, w.BalanceUSD.Equal(d("27.9")))
	assert.Equal(t, 1, w.ConsecutiveLosingTrades)

	snap := a.led.Snapshot()
	assert.True(t, snap.EquityTotalUSD.Equal(d("147.9")))
}

func writeTradeLine(t *testing.T, path, wallet, pnl, fees, ts string) {
	t.Helper()
	line, err := json.Marshal(map[string]any{
		"id":           "t1",
		"timestamp":    ts,
		"wallet_id":    wallet,
		"pair":         "SOL/USDC",
		"side":         "BUY",
		"notional_usd": "5",
		"fill_price":   "1.25",
		"pnl_usd":      pnl,
		"fees_usd":     fees,
		"meta":         map[string]string{"strategy": "stub"},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, append(line, '\n'), 0o644))
}

func seedFlowLog(t *testing.T, cfg config.Config, rec store.FlowRecord) {
	t.Helper()
	path := filepath.Join(filepath.Dir(cfg.Agent.TradeLogPath), "flows.jsonl")
	fl, err := store.OpenFlowLog(path)
	require.NoError(t, err)
	require.NoError(t, fl.Append(rec))
	require.NoError(t, fl.Close())
}

func sweepRule() config.FlowRule {
	return config.FlowRule{
		Name: "profit-sweep", Type: "profit_sweep",
		Source: "sniper_sol", Destination: "profits_sol",
		MinProfitUSD: 5, SweepPct: 50,
	}
}

func TestNewReplaysFlowLogAcrossDays(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Flows = []config.FlowRule{sweepRule()}

	// A previous session: one winning trade, then the sweep moved half
	// the profit out before the process died.
	writeTradeLine(t, cfg.Agent.TradeLogPath, "sniper_sol", "10", "0", "2026-03-14T10:00:00Z")
	seedFlowLog(t, cfg, store.FlowRecord{
		Timestamp: time.Date(2026, 3, 14, 10, 5, 0, 0, time.UTC),
		Rule:      "profit-sweep", Type: "profit_sweep",
		From: "sniper_sol", To: "profits_sol", AmountUSD: d("5"),
	})

	// Restart on a later day: the historical sweep survives the
	// rebuild instead of reverting to initial balances.
	a, err := New(cfg)
	require.NoError(t, err)
	defer a.trades.Close()
	defer a.flowlog.Close()

	sniper, err := a.led.Wallet("sniper_sol")
	require.NoError(t, err)
	assert.True(t, sniper.BalanceUSD.Equal(d("35")), "got %s", sniper.BalanceUSD)
	profits, err := a.led.Wallet("profits_sol")
	require.NoError(t, err)
	assert.True(t, profits.BalanceUSD.Equal(d("5")))
	assert.True(t, a.led.Snapshot().EquityTotalUSD.Equal(d("160")))

	// None of that profit is today's, so a tick sweeps nothing new.
	a.Tick(context.Background())
	profits, err = a.led.Wallet("profits_sol")
	require.NoError(t, err)
	assert.True(t, profits.BalanceUSD.Equal(d("5")))
}

func TestSameDayRestartDoesNotSweepTwice(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Flows = []config.FlowRule{sweepRule()}

	now := time.Now().UTC()
	writeTradeLine(t, cfg.Agent.TradeLogPath, "sniper_sol", "10", "0",
		now.Add(-time.Minute).Format(time.RFC3339Nano))
	seedFlowLog(t, cfg, store.FlowRecord{
		Timestamp: now,
		Rule:      "profit-sweep", Type: "profit_sweep",
		From: "sniper_sol", To: "profits_sol", AmountUSD: d("5"),
	})

	a, err := New(cfg)
	require.NoError(t, err)
	defer a.trades.Close()
	defer a.flowlog.Close()

	// Today's target is half of the $10 realized, which the previous
	// session already moved. The tick must not move it again.
	a.Tick(context.Background())

	profits, err := a.led.Wallet("profits_sol")
	require.NoError(t, err)
	assert.True(t, profits.BalanceUSD.Equal(d("5")), "got %s", profits.BalanceUSD)

	frecs, err := a.flowlog.Flows()
	require.NoError(t, err)
	assert.Len(t, frecs, 1)
}

func TestTickAppendsAppliedFlows(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Wallets = append(cfg.Wallets, config.WalletConfig{
		ID: "fees", Role: "FEES", Chain: "eth", BalanceUSD: 4,
	})
	cfg.Flows = []config.FlowRule{{
		Name: "fee-buffer", Type: "fee_topup",
		Source: "vault", Destination: "fees",
		MinBufferUSD: 10, TargetUSD: 15,
	}}
	cfg.Agent.ReplayOnStart = false

	a, err := New(cfg)
	require.NoError(t, err)
	defer a.trades.Close()
	defer a.flowlog.Close()

	a.Tick(context.Background())

	frecs, err := a.flowlog.Flows()
	require.NoError(t, err)
	require.Len(t, frecs, 1)
	assert.Equal(t, "fee-buffer", frecs[0].Rule)
	assert.Equal(t, "vault", frecs[0].From)
	assert.Equal(t, "fees", frecs[0].To)
	assert.True(t, frecs[0].AmountUSD.Equal(d("11")))
	assert.False(t, frecs[0].Timestamp.IsZero())
}

func TestNewRejectsUnknownRole(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Wallets[0].Role = "YOLO"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestTickExecutesDryRunSignals(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	sigPath := filepath.Join(t.TempDir(), "signals.jsonl")
	require.NoError(t, os.WriteFile(sigPath, []byte(
		`{"id":"s1","wallet_id":"sniper_sol","strategy_id":"stub","pair":"SOL/USDC","side":"BUY","notional_usd":"5"}`+"\n",
	), 0o644))
	cfg.Signals = config.SignalsConfig{Provider: "dryrun", File: sigPath}
	cfg.Journal = config.JournalConfig{
		Type:   "sqlite",
		DBPath: filepath.Join(t.TempDir(), "journal.db"),
	}

	a, err := New(cfg)
	require.NoError(t, err)

	a.Tick(context.Background())
	a.wg.Wait()

	// The trade is durably in the log.
	recs, err := a.trades.Trades()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, "sniper_sol", rec.WalletID)
	assert.True(t, rec.FeesUSD.Equal(d("0.1")), "2%% of $5")

	// Ledger reconciles with the record.
	w, err := a.led.Wallet("sniper_sol")
	require.NoError(t, err)
	want := d("30").Add(rec.PnLUSD).Sub(rec.FeesUSD)
	assert.True(t, w.BalanceUSD.Equal(want))

	// Journal mirrored it.
	sq, ok := a.journal.(*journal.SQLite)
	require.True(t, ok)
	got, err := sq.GetTrade(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.WalletID, got.WalletID)
	require.NoError(t, a.trades.Close())
	require.NoError(t, a.journal.Close())
}

func TestTickWritesRuntimeSnapshot(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	a, err := New(cfg)
	require.NoError(t, err)
	defer a.trades.Close()

	a.Tick(context.Background())

	raw, err := os.ReadFile(cfg.Agent.SnapshotPath)
	require.NoError(t, err)

	var doc struct {
		WalletsCount   int    `json:"wallets_count"`
		EquityTotalUSD string `json:"equity_total_usd"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, 3, doc.WalletsCount)
	assert.Equal(t, "150", doc.EquityTotalUSD)
}

func TestTickAppliesFlows(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Wallets = append(cfg.Wallets, config.WalletConfig{
		ID: "fees", Role: "FEES", Chain: "eth", BalanceUSD: 4,
	})
	cfg.Flows = []config.FlowRule{{
		Name: "fee-buffer", Type: "fee_topup",
		Source: "vault", Destination: "fees",
		MinBufferUSD: 10, TargetUSD: 15,
	}}
	cfg.Agent.ReplayOnStart = false

	a, err := New(cfg)
	require.NoError(t, err)
	defer a.trades.Close()

	a.Tick(context.Background())

	feesW, err := a.led.Wallet("fees")
	require.NoError(t, err)
	assert.True(t, feesW.BalanceUSD.Equal(d("15")))
	vaultW, err := a.led.Wallet("vault")
	require.NoError(t, err)
	assert.True(t, vaultW.BalanceUSD.Equal(d("109")))
}

func TestRunDrainsAndFlushesOnCancel(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	a, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	cancel()
	require.NoError(t, <-done)

	// Final snapshot was flushed on the way out.
	_, err = os.Stat(cfg.Agent.SnapshotPath)
	assert.NoError(t, err)
}
