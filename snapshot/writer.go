// Package snapshot persists the ledger's point-in-time view for the
// dashboard collaborator. The file is advisory output only: it is
// rewritten wholesale and never read back by the agent.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rustyeddy/agent/ledger"
)

// Writer serializes ledger snapshots to a JSON file. Every write goes
// through a temp file and an atomic rename, so a reader polling the
// path never sees a torn document.
type Writer struct {
	path string
	led  *ledger.Ledger
}

func NewWriter(path string, led *ledger.Ledger) *Writer {
	return &Writer{path: path, led: led}
}

func (w *Writer) Path() string { return w.path }

// Write flushes the current snapshot to disk.
func (w *Writer) Write() error {
	return w.write(w.led.Snapshot())
}

func (w *Writer) write(snap ledger.Snapshot) error {
	dir := filepath.Dir(w.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, "wallets-*.json")
	if err != nil {
		return fmt.Errorf("create snapshot temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), w.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
