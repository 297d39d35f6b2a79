package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/agent/trade"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(rec trade.Record) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(trade_id, ts, wallet_id, pair, side, notional_usd, fill_price, pnl_usd, fees_usd, strategy, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Timestamp, rec.WalletID, rec.Pair, string(rec.Side),
		rec.NotionalUSD.String(), rec.FillPrice.String(),
		rec.PnLUSD.String(), rec.FeesUSD.String(),
		rec.Meta.Strategy, rec.Meta.Source,
	)
	if err != nil {
		return fmt.Errorf("record trade %s: %w", rec.ID, err)
	}
	return nil
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(ts, equity_total_usd, realized_today_usd, fees_today_usd, wallets_count)
		VALUES (?, ?, ?, ?, ?)`,
		e.Time, e.EquityTotalUSD.String(), e.RealizedTodayUSD.String(),
		e.FeesTodayUSD.String(), e.WalletsCount,
	)
	if err != nil {
		return fmt.Errorf("record equity: %w", err)
	}
	return nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
