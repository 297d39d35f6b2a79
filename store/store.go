// Package store is the durable trade log: append-only newline-delimited
// JSON, one record per line, synced to disk before an append is
// acknowledged. The log is the sole source of truth for PnL state and
// is replayed on startup.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/agent/trade"
)

type TradeStore struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// Open creates the log file (and its directory) if needed and opens it
// for appending.
func Open(path string) (*TradeStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create trade log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trade log: %w", err)
	}
	return &TradeStore{path: path, f: f}, nil
}

func (s *TradeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// Append writes one record and fsyncs. The record is durable when
// Append returns nil; a crash right after still replays it.
func (s *TradeStore) Append(rec trade.Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal trade %s: %w", rec.ID, err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(line); err != nil {
		return fmt.Errorf("append trade %s: %w", rec.ID, err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("sync trade log: %w", err)
	}
	return nil
}

// Replay streams every record in append order. Lines that no longer
// parse are logged and skipped rather than aborting the whole replay.
func (s *TradeStore) Replay(fn func(trade.Record) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open trade log: %w", err)
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
		var rec trade.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			slog.Warn("trade log line skipped", "line", lineNo, "err", err)
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scan trade log: %w", err)
	}
	return nil
}

// Trades reads the full log into memory, append order.
func (s *TradeStore) Trades() ([]trade.Record, error) {
	var out []trade.Record
	err := s.Replay(func(rec trade.Record) error {
		out = append(out, rec)
		return nil
	})
	return out, err
}

// Recent returns the last n records, oldest first.
func (s *TradeStore) Recent(n int) ([]trade.Record, error) {
	all, err := s.Trades()
	if err != nil {
		return nil, err
	}
	if n <= 0 || n >= len(all) {
		return all, nil
	}
	return all[len(all)-n:], nil
}

// Summary aggregates realized results over the log. walletID and day
// ("2006-01-02", UTC) are optional filters; empty means all.
type Summary struct {
	Trades      int             `json:"trades"`
	Winners     int             `json:"winners"`
	Losers      int             `json:"losers"`
	WinRate     float64         `json:"win_rate"`
	RealizedUSD decimal.Decimal `json:"realized_usd"`
	FeesUSD     decimal.Decimal `json:"fees_usd"`
}

func (s *TradeStore) Summarize(walletID, day string) (Summary, error) {
	sum := Summary{RealizedUSD: decimal.Zero, FeesUSD: decimal.Zero}
	err := s.Replay(func(rec trade.Record) error {
		if walletID != "" && rec.WalletID != walletID {
			return nil
		}
		if day != "" && rec.Timestamp.UTC().Format("2006-01-02") != day {
			return nil
		}
		sum.Trades++
		sum.RealizedUSD = sum.RealizedUSD.Add(rec.PnLUSD)
		sum.FeesUSD = sum.FeesUSD.Add(rec.FeesUSD)
		switch {
		case rec.PnLUSD.IsPositive():
			sum.Winners++
		case rec.PnLUSD.IsNegative():
			sum.Losers++
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	if decided := sum.Winners + sum.Losers; decided > 0 {
		sum.WinRate = float64(sum.Winners) / float64(decided)
	}
	return sum, nil
}

// Reset removes records matching the filters and reports how many went.
// Both filters empty wipes the whole log. The rewrite goes through a
// temp file and rename, so a crash mid-reset leaves the old log intact.
// Administrative only; the pipeline never calls this.
func (s *TradeStore) Reset(walletID, pair string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	in, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open trade log: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "trades-*.jsonl")
	if err != nil {
		return 0, fmt.Errorf("create temp log: %w", err)
	}
	defer os.Remove(tmp.Name())

	removed := 0
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec trade.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			// Unparseable lines are kept: a reset should never make
			// the log worse than it found it.
			fmt.Fprintf(tmp, "%s\n", raw)
			continue
		}
		if matchReset(rec, walletID, pair) {
			removed++
			continue
		}
		fmt.Fprintf(tmp, "%s\n", raw)
	}
	if err := sc.Err(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("scan trade log: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("sync temp log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close temp log: %w", err)
	}

	// Swap the live file handle to the rewritten log.
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return 0, fmt.Errorf("replace trade log: %w", err)
	}
	if err := s.f.Close(); err != nil {
		slog.Warn("close old trade log handle", "err", err)
	}
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return removed, fmt.Errorf("reopen trade log: %w", err)
	}
	s.f = f

	slog.Warn("trade log reset",
		"wallet", walletID, "pair", pair, "removed", removed)
	return removed, nil
}

func matchReset(rec trade.Record, walletID, pair string) bool {
	if walletID != "" && rec.WalletID != walletID {
		return false
	}
	if pair != "" && rec.Pair != pair {
		return false
	}
	return true
}
