package journal

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/agent/trade"
)

// GetTrade returns a single mirrored trade by id.
func (j *SQLite) GetTrade(tradeID string) (trade.Record, error) {
	row := j.db.QueryRow(`
		SELECT trade_id, ts, wallet_id, pair, side, notional_usd, fill_price, pnl_usd, fees_usd, strategy, source
		FROM trades
		WHERE trade_id = ?`, tradeID)

	rec, err := scanTrade(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return trade.Record{}, fmt.Errorf("trade %q not found", tradeID)
		}
		return trade.Record{}, err
	}
	return rec, nil
}

// ListTradesByWallet returns a wallet's trades in [start, end), oldest
// first.
func (j *SQLite) ListTradesByWallet(walletID string, start, end time.Time) ([]trade.Record, error) {
	rows, err := j.db.Query(`
		SELECT trade_id, ts, wallet_id, pair, side, notional_usd, fill_price, pnl_usd, fees_usd, strategy, source
		FROM trades
		WHERE wallet_id = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC`, walletID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []trade.Record
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DailyPnL sums realized PnL and fees per wallet over [start, end).
func (j *SQLite) DailyPnL(start, end time.Time) (map[string]decimal.Decimal, error) {
	rows, err := j.db.Query(`
		SELECT wallet_id, pnl_usd, fees_usd
		FROM trades
		WHERE ts >= ? AND ts < ?`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var wallet, pnlRaw, feesRaw string
		if err := rows.Scan(&wallet, &pnlRaw, &feesRaw); err != nil {
			return nil, err
		}
		pnl, err := decimal.NewFromString(pnlRaw)
		if err != nil {
			return nil, fmt.Errorf("journal pnl for %s: %w", wallet, err)
		}
		fees, err := decimal.NewFromString(feesRaw)
		if err != nil {
			return nil, fmt.Errorf("journal fees for %s: %w", wallet, err)
		}
		out[wallet] = out[wallet].Add(pnl).Sub(fees)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(row rowScanner) (trade.Record, error) {
	var rec trade.Record
	var side, notional, price, pnl, fees string

	err := row.Scan(
		&rec.ID, &rec.Timestamp, &rec.WalletID, &rec.Pair, &side,
		&notional, &price, &pnl, &fees,
		&rec.Meta.Strategy, &rec.Meta.Source,
	)
	if err != nil {
		return trade.Record{}, err
	}

	rec.Side = trade.Side(side)
	if rec.NotionalUSD, err = decimal.NewFromString(notional); err != nil {
		return trade.Record{}, fmt.Errorf("trade %s notional: %w", rec.ID, err)
	}
	if rec.FillPrice, err = decimal.NewFromString(price); err != nil {
		return trade.Record{}, fmt.Errorf("trade %s fill price: %w", rec.ID, err)
	}
	if rec.PnLUSD, err = decimal.NewFromString(pnl); err != nil {
		return trade.Record{}, fmt.Errorf("trade %s pnl: %w", rec.ID, err)
	}
	if rec.FeesUSD, err = decimal.NewFromString(fees); err != nil {
		return trade.Record{}, fmt.Errorf("trade %s fees: %w", rec.ID, err)
	}
	return rec, nil
}
