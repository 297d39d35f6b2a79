package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// FlowRecord is one applied inter-wallet transfer. Flow movements do
// not show up in the trade log, so without this file a restart would
// rebuild trading balances from PnL alone and silently undo every
// historical sweep, top-up and compound.
type FlowRecord struct {
	Timestamp time.Time       `json:"timestamp"`
	Rule      string          `json:"rule"`
	Type      string          `json:"type"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	AmountUSD decimal.Decimal `json:"amount_usd"`
}

// FlowLog is the append-only JSONL log of applied flows, same format
// and durability contract as the trade log. Replayed alongside it on
// startup.
type FlowLog struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// OpenFlowLog creates the log file (and its directory) if needed and
// opens it for appending.
func OpenFlowLog(path string) (*FlowLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create flow log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open flow log: %w", err)
	}
	return &FlowLog{path: path, f: f}, nil
}

func (l *FlowLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// Append writes one record and fsyncs before acknowledging.
func (l *FlowLog) Append(rec FlowRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal flow %s: %w", rec.Rule, err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.f.Write(line); err != nil {
		return fmt.Errorf("append flow %s: %w", rec.Rule, err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("sync flow log: %w", err)
	}
	return nil
}

// Replay streams every record in append order. Lines that no longer
// parse are logged and skipped rather than aborting the whole replay.
func (l *FlowLog) Replay(fn func(FlowRecord) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open flow log: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec FlowRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			slog.Warn("flow log line skipped", "line", lineNo, "err", err)
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scan flow log: %w", err)
	}
	return nil
}

// Flows reads the full log into memory, append order.
func (l *FlowLog) Flows() ([]FlowRecord, error) {
	var out []FlowRecord
	err := l.Replay(func(rec FlowRecord) error {
		out = append(out, rec)
		return nil
	})
	return out, err
}
