package journal

// Money columns are TEXT: decimal amounts round-trip exactly, and
// SQLite compares them fine for equality lookups. Aggregation happens
// in Go, not SQL.
const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	trade_id TEXT PRIMARY KEY,
	ts DATETIME NOT NULL,
	wallet_id TEXT NOT NULL,
	pair TEXT NOT NULL,
	side TEXT NOT NULL,
	notional_usd TEXT NOT NULL,
	fill_price TEXT NOT NULL,
	pnl_usd TEXT NOT NULL,
	fees_usd TEXT NOT NULL,
	strategy TEXT NOT NULL,
	source TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_wallet ON trades(wallet_id, ts);

CREATE TABLE IF NOT EXISTS equity (
	ts DATETIME NOT NULL,
	equity_total_usd TEXT NOT NULL,
	realized_today_usd TEXT NOT NULL,
	fees_today_usd TEXT NOT NULL,
	wallets_count INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_ts ON equity(ts);
`
