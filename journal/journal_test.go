package journal

import (
	"database/sql"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/agent/trade"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func rec(id, wallet string, pnl string, ts time.Time) trade.Record {
	return trade.Record{
		ID:          id,
		Timestamp:   ts,
		WalletID:    wallet,
		Pair:        "SOL/USDC",
		Side:        trade.Buy,
		NotionalUSD: d("5"),
		FillPrice:   d("1.25"),
		PnLUSD:      d(pnl),
		FeesUSD:     d("0.1"),
		Meta:        trade.Meta{Strategy: "stub", Source: "paper"},
	}
}

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j, path
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name IN ('trades','equity')`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	require.NoError(t, rows.Err())
	assert.True(t, found["trades"])
	assert.True(t, found["equity"])
}

func TestSQLiteTradeRoundTrip(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	ts := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	require.NoError(t, j.RecordTrade(rec("t1", "sniper_sol", "-2", ts)))

	got, err := j.GetTrade("t1")
	require.NoError(t, err)
	assert.Equal(t, "sniper_sol", got.WalletID)
	assert.Equal(t, trade.Buy, got.Side)
	assert.True(t, got.PnLUSD.Equal(d("-2")))
	assert.True(t, got.FillPrice.Equal(d("1.25")))
	assert.Equal(t, "stub", got.Meta.Strategy)

	_, err = j.GetTrade("missing")
	assert.Error(t, err)
}

func TestSQLiteDuplicateTradeID(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	ts := time.Now().UTC()
	require.NoError(t, j.RecordTrade(rec("t1", "sniper_sol", "1", ts)))
	assert.Error(t, j.RecordTrade(rec("t1", "sniper_sol", "1", ts)))
}

func TestSQLiteListAndAggregate(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	require.NoError(t, j.RecordTrade(rec("t1", "sniper_sol", "4", day.Add(9*time.Hour))))
	require.NoError(t, j.RecordTrade(rec("t2", "sniper_sol", "-1", day.Add(10*time.Hour))))
	require.NoError(t, j.RecordTrade(rec("t3", "copy_sol", "2", day.Add(11*time.Hour))))
	require.NoError(t, j.RecordTrade(rec("t4", "sniper_sol", "9", day.AddDate(0, 0, 1))))

	got, err := j.ListTradesByWallet("sniper_sol", day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].ID)
	assert.Equal(t, "t2", got[1].ID)

	pnl, err := j.DailyPnL(day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	// pnl net of fees: sniper 4 - 1 - 0.2, copy 2 - 0.1
	assert.True(t, pnl["sniper_sol"].Equal(d("2.8")), "got %s", pnl["sniper_sol"])
	assert.True(t, pnl["copy_sol"].Equal(d("1.9")))
}

func TestSQLiteEquity(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.RecordEquity(EquitySnapshot{
		Time:             time.Now().UTC(),
		EquityTotalUSD:   d("147.9"),
		RealizedTodayUSD: d("-2"),
		FeesTodayUSD:     d("0.1"),
		WalletsCount:     7,
	}))
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var equity string
	var count int
	require.NoError(t, db.QueryRow(`SELECT equity_total_usd, wallets_count FROM equity`).Scan(&equity, &count))
	assert.Equal(t, "147.9", equity)
	assert.Equal(t, 7, count)
}

func TestCSVJournal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tradesPath := filepath.Join(dir, "trades.csv")
	equityPath := filepath.Join(dir, "equity.csv")

	j, err := NewCSV(tradesPath, equityPath)
	require.NoError(t, err)

	ts := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	require.NoError(t, j.RecordTrade(rec("t1", "sniper_sol", "-2", ts)))
	require.NoError(t, j.RecordEquity(EquitySnapshot{
		Time:           ts,
		EquityTotalUSD: d("147.9"),
		WalletsCount:   7,
	}))
	require.NoError(t, j.Close())

	tf, err := os.Open(tradesPath)
	require.NoError(t, err)
	defer tf.Close()
	rows, err := csv.NewReader(tf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "trade_id", rows[0][0])
	assert.Equal(t, []string{"t1", "2026-03-14T10:00:00Z", "sniper_sol", "SOL/USDC", "BUY", "5", "1.25", "-2", "0.1", "stub", "paper"}, rows[1])

	ef, err := os.Open(equityPath)
	require.NoError(t, err)
	defer ef.Close()
	erows, err := csv.NewReader(ef).ReadAll()
	require.NoError(t, err)
	require.Len(t, erows, 2)
	assert.Equal(t, "147.9", erows[1][1])
}
