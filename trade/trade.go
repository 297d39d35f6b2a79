// Package trade holds the types shared across the execution pipeline,
// the ledger and the durable stores.
package trade

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Signal is a proposed trade arriving from a strategy collaborator.
// It is transient: nothing is persisted until a Record is produced.
type Signal struct {
	ID          string
	WalletID    string
	StrategyID  string
	Chain       string
	Pair        string
	Side        Side
	NotionalUSD decimal.Decimal
	StopLoss    *decimal.Decimal
	TakeProfit  *decimal.Decimal
}

// Meta carries free-form provenance for a record.
type Meta struct {
	Strategy   string `json:"strategy,omitempty"`
	ExitReason string `json:"exit_reason,omitempty"`
	Source     string `json:"source,omitempty"`
}

// Record is one executed trade. Immutable once appended to the store;
// the sole source for PnL reconstruction after restart.
type Record struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	WalletID    string          `json:"wallet_id"`
	Pair        string          `json:"pair"`
	Side        Side            `json:"side"`
	NotionalUSD decimal.Decimal `json:"notional_usd"`
	FillPrice   decimal.Decimal `json:"fill_price"`
	PnLUSD      decimal.Decimal `json:"pnl_usd"`
	FeesUSD     decimal.Decimal `json:"fees_usd"`
	Meta        Meta            `json:"meta"`
}

// Fill is what the inner fill engine returns for an admitted signal.
type Fill struct {
	Price   decimal.Decimal
	PnLUSD  decimal.Decimal
	FeesUSD decimal.Decimal
}
