package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rustyeddy/agent/trade"
)

// CSVJournal writes two flat files, one row per trade and one per
// equity observation, flushed on every record so a crash loses at most
// the row being written.
type CSVJournal struct {
	trades *csv.Writer
	equity *csv.Writer
	tf, ef *os.File
}

func NewCSV(tradesPath, equityPath string) (*CSVJournal, error) {
	tf, err := os.Create(tradesPath)
	if err != nil {
		return nil, fmt.Errorf("create trades csv: %w", err)
	}
	ef, err := os.Create(equityPath)
	if err != nil {
		tf.Close()
		return nil, fmt.Errorf("create equity csv: %w", err)
	}

	tw := csv.NewWriter(tf)
	ew := csv.NewWriter(ef)

	if err := tw.Write([]string{"trade_id", "ts", "wallet_id", "pair", "side", "notional_usd", "fill_price", "pnl_usd", "fees_usd", "strategy", "source"}); err != nil {
		return nil, err
	}
	if err := ew.Write([]string{"ts", "equity_total_usd", "realized_today_usd", "fees_today_usd", "wallets_count"}); err != nil {
		return nil, err
	}

	tw.Flush()
	if err := tw.Error(); err != nil {
		return nil, err
	}
	ew.Flush()
	if err := ew.Error(); err != nil {
		return nil, err
	}

	return &CSVJournal{tw, ew, tf, ef}, nil
}

func (j *CSVJournal) RecordTrade(rec trade.Record) error {
	if err := j.trades.Write([]string{
		rec.ID,
		rec.Timestamp.Format(time.RFC3339),
		rec.WalletID,
		rec.Pair,
		string(rec.Side),
		rec.NotionalUSD.String(),
		rec.FillPrice.String(),
		rec.PnLUSD.String(),
		rec.FeesUSD.String(),
		rec.Meta.Strategy,
		rec.Meta.Source,
	}); err != nil {
		return err
	}
	j.trades.Flush()
	return j.trades.Error()
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	if err := j.equity.Write([]string{
		e.Time.Format(time.RFC3339),
		e.EquityTotalUSD.String(),
		e.RealizedTodayUSD.String(),
		e.FeesTodayUSD.String(),
		strconv.Itoa(e.WalletsCount),
	}); err != nil {
		return err
	}
	j.equity.Flush()
	return j.equity.Error()
}

func (j *CSVJournal) Close() error {
	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		return err
	}
	j.equity.Flush()
	if err := j.equity.Error(); err != nil {
		return err
	}
	if err := j.tf.Close(); err != nil {
		return err
	}
	return j.ef.Close()
}
