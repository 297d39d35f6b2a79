package signals

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/agent/trade"
)

// DryRun replays a recorded signal session from a newline-delimited
// JSON file, one signal per tick, then goes quiet. Everything else in
// the agent behaves exactly as it would live.
type DryRun struct {
	mu     sync.Mutex
	queue  []trade.Signal
	cursor int
}

// fileSignal is the on-disk shape of one recorded signal.
type fileSignal struct {
	ID          string           `json:"id"`
	WalletID    string           `json:"wallet_id"`
	StrategyID  string           `json:"strategy_id"`
	Chain       string           `json:"chain"`
	Pair        string           `json:"pair"`
	Side        string           `json:"side"`
	NotionalUSD decimal.Decimal  `json:"notional_usd"`
	StopLoss    *decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit  *decimal.Decimal `json:"take_profit,omitempty"`
}

func NewDryRun(path string) (*DryRun, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open signal file: %w", err)
	}
	defer f.Close()

	var queue []trade.Signal
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var fs fileSignal
		if err := json.Unmarshal(raw, &fs); err != nil {
			return nil, fmt.Errorf("signal file line %d: %w", lineNo, err)
		}
		queue = append(queue, trade.Signal{
			ID:          fs.ID,
			WalletID:    fs.WalletID,
			StrategyID:  fs.StrategyID,
			Chain:       fs.Chain,
			Pair:        fs.Pair,
			Side:        trade.Side(fs.Side),
			NotionalUSD: fs.NotionalUSD,
			StopLoss:    fs.StopLoss,
			TakeProfit:  fs.TakeProfit,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan signal file: %w", err)
	}

	slog.Info("dry run signals loaded", "path", path, "count", len(queue))
	return &DryRun{queue: queue}, nil
}

// Remaining reports how many recorded signals have not yet been served.
func (d *DryRun) Remaining() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue) - d.cursor
}

func (d *DryRun) Pending(ctx context.Context) ([]trade.Signal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cursor >= len(d.queue) {
		return nil, nil
	}
	sig := d.queue[d.cursor]
	d.cursor++
	return []trade.Signal{sig}, nil
}
