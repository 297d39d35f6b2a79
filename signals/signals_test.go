package signals

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/agent/trade"
)

func TestStubDeterministicUnderSeed(t *testing.T) {
	t.Parallel()

	pairs := []string{"SOL/USDC", "BONK/USDC"}
	wallets := []string{"sniper_sol", "copy_sol"}
	notional := decimal.RequireFromString("5")

	a, err := NewStub(42, pairs, wallets, notional)
	require.NoError(t, err)
	b, err := NewStub(42, pairs, wallets, notional)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		sa, err := a.Pending(context.Background())
		require.NoError(t, err)
		sb, err := b.Pending(context.Background())
		require.NoError(t, err)

		require.Len(t, sa, 1)
		require.Len(t, sb, 1)
		assert.Equal(t, sa[0], sb[0])
		assert.NotEmpty(t, sa[0].ID)
		assert.Contains(t, pairs, sa[0].Pair)
		assert.Contains(t, wallets, sa[0].WalletID)
		assert.True(t, sa[0].NotionalUSD.Equal(notional))
	}
}

func TestStubSignalIDsAreUnique(t *testing.T) {
	t.Parallel()

	s, err := NewStub(7, []string{"SOL/USDC"}, []string{"sniper_sol"},
		decimal.RequireFromString("5"))
	require.NoError(t, err)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		sigs, err := s.Pending(context.Background())
		require.NoError(t, err)
		require.Len(t, sigs, 1)
		assert.False(t, seen[sigs[0].ID], "duplicate id %s", sigs[0].ID)
		seen[sigs[0].ID] = true
	}
}

func TestStubRequiresUniverse(t *testing.T) {
	t.Parallel()

	_, err := NewStub(1, nil, []string{"w"}, decimal.NewFromInt(5))
	assert.Error(t, err)
	_, err = NewStub(1, []string{"SOL/USDC"}, nil, decimal.NewFromInt(5))
	assert.Error(t, err)
}

func TestDryRunReplaysFileInOrder(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "signals.jsonl")
	lines := `{"id":"s1","wallet_id":"sniper_sol","strategy_id":"memecoin","pair":"SOL/USDC","side":"BUY","notional_usd":"5","stop_loss":"1.1"}
{"id":"s2","wallet_id":"copy_sol","pair":"ETH/USDC","side":"SELL","notional_usd":"3"}
`
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))

	d, err := NewDryRun(path)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Remaining())

	first, err := d.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "s1", first[0].ID)
	assert.Equal(t, trade.Buy, first[0].Side)
	require.NotNil(t, first[0].StopLoss)
	assert.True(t, first[0].StopLoss.Equal(decimal.RequireFromString("1.1")))

	second, err := d.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "s2", second[0].ID)
	assert.Equal(t, trade.Sell, second[0].Side)
	assert.Nil(t, second[0].StopLoss)

	// Exhausted: quiet ticks from here on.
	rest, err := d.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, 0, d.Remaining())
}

func TestDryRunRejectsMalformedFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "signals.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{not json\n"), 0o644))

	_, err := NewDryRun(path)
	assert.Error(t, err)
}

func TestDryRunMissingFile(t *testing.T) {
	t.Parallel()

	_, err := NewDryRun(filepath.Join(t.TempDir(), "nope.jsonl"))
	assert.Error(t, err)
}
