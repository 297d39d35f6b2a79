// Package journal mirrors executed trades and equity snapshots into a
// queryable backend for reporting. The JSONL trade log stays the
// source of truth; losing the journal loses nothing that matters.
package journal

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/agent/trade"
)

// EquitySnapshot is one observation of the whole book, taken per tick.
type EquitySnapshot struct {
	Time             time.Time
	EquityTotalUSD   decimal.Decimal
	RealizedTodayUSD decimal.Decimal
	FeesTodayUSD     decimal.Decimal
	WalletsCount     int
}

type Journal interface {
	RecordTrade(trade.Record) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// Nop satisfies Journal for agents running without a mirror.
type Nop struct{}

func (Nop) RecordTrade(trade.Record) error    { return nil }
func (Nop) RecordEquity(EquitySnapshot) error { return nil }
func (Nop) Close() error                      { return nil }
