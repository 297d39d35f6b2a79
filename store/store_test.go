package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/agent/trade"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func rec(id, wallet, pair string, pnl, fees string, ts time.Time) trade.Record {
	return trade.Record{
		ID:          id,
		Timestamp:   ts,
		WalletID:    wallet,
		Pair:        pair,
		Side:        trade.Buy,
		NotionalUSD: d("5"),
		FillPrice:   d("1.25"),
		PnLUSD:      d(pnl),
		FeesUSD:     d(fees),
		Meta:        trade.Meta{Strategy: "stub"},
	}
}

func openStore(t *testing.T) *TradeStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "trades.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndReplayRoundTrip(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	ts := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.Append(rec("t1", "sniper_sol", "SOL/USDC", "-2", "0.1", ts)))
	require.NoError(t, s.Append(rec("t2", "copy_sol", "ETH/USDC", "3.5", "0.2", ts)))

	got, err := s.Trades()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].ID)
	assert.Equal(t, "t2", got[1].ID)
	assert.True(t, got[0].PnLUSD.Equal(d("-2")))
	assert.True(t, got[1].Timestamp.Equal(ts))
}

func TestReplayEmptyAndMissingFile(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	got, err := s.Trades()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReplaySkipsCorruptLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "trades.jsonl")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	ts := time.Now().UTC()
	require.NoError(t, s.Append(rec("t1", "sniper_sol", "SOL/USDC", "1", "0", ts)))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{truncated garba\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, s.Append(rec("t2", "sniper_sol", "SOL/USDC", "2", "0", ts)))

	got, err := s.Trades()
	require.NoError(t, err)
	require.Len(t, got, 2, "good records survive a corrupt line between them")
	assert.Equal(t, "t2", got[1].ID)
}

func TestRecent(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	ts := time.Now().UTC()
	for _, id := range []string{"t1", "t2", "t3", "t4"} {
		require.NoError(t, s.Append(rec(id, "w", "SOL/USDC", "1", "0", ts)))
	}

	got, err := s.Recent(2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t3", got[0].ID)
	assert.Equal(t, "t4", got[1].ID)

	all, err := s.Recent(0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	day1 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(rec("t1", "sniper_sol", "SOL/USDC", "4", "0.1", day1)))
	require.NoError(t, s.Append(rec("t2", "sniper_sol", "SOL/USDC", "-1.5", "0.1", day1)))
	require.NoError(t, s.Append(rec("t3", "copy_sol", "ETH/USDC", "0", "0.1", day1)))
	require.NoError(t, s.Append(rec("t4", "sniper_sol", "SOL/USDC", "2", "0.1", day2)))

	sum, err := s.Summarize("sniper_sol", "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Trades)
	assert.Equal(t, 1, sum.Winners)
	assert.Equal(t, 1, sum.Losers)
	assert.InDelta(t, 0.5, sum.WinRate, 1e-9)
	assert.True(t, sum.RealizedUSD.Equal(d("2.5")))
	assert.True(t, sum.FeesUSD.Equal(d("0.2")))

	// Flat trades count but neither win nor lose.
	all, err := s.Summarize("", "")
	require.NoError(t, err)
	assert.Equal(t, 4, all.Trades)
	assert.Equal(t, 2, all.Winners)
	assert.Equal(t, 1, all.Losers)
	assert.InDelta(t, 2.0/3.0, all.WinRate, 1e-9)
}

func TestResetFilters(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	ts := time.Now().UTC()
	require.NoError(t, s.Append(rec("t1", "sniper_sol", "SOL/USDC", "1", "0", ts)))
	require.NoError(t, s.Append(rec("t2", "sniper_sol", "BONK/USDC", "1", "0", ts)))
	require.NoError(t, s.Append(rec("t3", "copy_sol", "SOL/USDC", "1", "0", ts)))

	removed, err := s.Reset("sniper_sol", "SOL/USDC")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	got, err := s.Trades()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t2", got[0].ID)
	assert.Equal(t, "t3", got[1].ID)

	// Appends keep working against the rewritten file.
	require.NoError(t, s.Append(rec("t4", "copy_sol", "SOL/USDC", "1", "0", ts)))
	got, err = s.Trades()
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestResetGlobal(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	ts := time.Now().UTC()
	require.NoError(t, s.Append(rec("t1", "a", "SOL/USDC", "1", "0", ts)))
	require.NoError(t, s.Append(rec("t2", "b", "ETH/USDC", "1", "0", ts)))

	removed, err := s.Reset("", "")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	got, err := s.Trades()
	require.NoError(t, err)
	assert.Empty(t, got)
}
