package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/agent/ledger"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestWriteProducesRuntimeDocument(t *testing.T) {
	t.Parallel()

	l := ledger.New()
	require.NoError(t, l.Register("sniper_sol", ledger.RoleScalping, "solana", d("30")))
	require.NoError(t, l.Register("vault", ledger.RoleVault, "ethereum", d("120")))
	_, err := l.ApplyPnL("sniper_sol", d("-2"), d("0.1"))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "runtime", "wallets_runtime.json")
	w := NewWriter(path, l)
	require.NoError(t, w.Write())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc struct {
		UpdatedAt      string `json:"updated_at"`
		WalletsCount   int    `json:"wallets_count"`
		EquityTotalUSD string `json:"equity_total_usd"`
		Wallets        map[string]struct {
			BalanceUSD              string `json:"balance_usd"`
			RealizedPnLTodayUSD     string `json:"realized_pnl_today_usd"`
			ConsecutiveLosingTrades int    `json:"consecutive_losing_trades"`
			LastResetDate           string `json:"last_reset_date"`
		} `json:"wallets"`
		PnLDay struct {
			TotalRealizedUSD string `json:"total_realized_usd"`
			TotalFeesUSD     string `json:"total_fees_usd"`
		} `json:"pnl_day"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))

	assert.NotEmpty(t, doc.UpdatedAt)
	assert.Equal(t, 2, doc.WalletsCount)
	assert.Equal(t, "147.9", doc.EquityTotalUSD)
	require.Contains(t, doc.Wallets, "sniper_sol")
	assert.Equal(t, "27.9", doc.Wallets["sniper_sol"].BalanceUSD)
	assert.Equal(t, "-2", doc.Wallets["sniper_sol"].RealizedPnLTodayUSD)
	assert.Equal(t, 1, doc.Wallets["sniper_sol"].ConsecutiveLosingTrades)
	assert.Equal(t, "-2", doc.PnLDay.TotalRealizedUSD)
	assert.Equal(t, "0.1", doc.PnLDay.TotalFeesUSD)
}

func TestWriteReplacesExistingFile(t *testing.T) {
	t.Parallel()

	l := ledger.New()
	require.NoError(t, l.Register("vault", ledger.RoleVault, "ethereum", d("50")))

	path := filepath.Join(t.TempDir(), "wallets_runtime.json")
	w := NewWriter(path, l)
	require.NoError(t, w.Write())

	_, err := l.ApplyPnL("vault", d("5"), decimal.Zero)
	require.NoError(t, err)
	require.NoError(t, w.Write())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc struct {
		EquityTotalUSD string `json:"equity_total_usd"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "55", doc.EquityTotalUSD)

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
