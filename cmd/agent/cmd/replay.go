package cmd

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/agent/config"
	"github.com/rustyeddy/agent/ledger"
	"github.com/rustyeddy/agent/store"
	"github.com/rustyeddy/agent/trade"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Rebuild wallet state from the durable logs",
	Long: `Replay the append-only trade and flow logs over the configured
starting balances and print the reconstructed wallet state. The
snapshot file is never read: this is the authoritative recovery path.

Example:
  agent replay --config agent.yaml`,
	RunE: runReplayCmd,
}

var replayConfigPath string

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().StringVarP(&replayConfigPath, "config", "f", "", "path to config file (required)")
	replayCmd.MarkFlagRequired("config")
}

func runReplayCmd(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(replayConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	led := ledger.New()
	for _, w := range cfg.Wallets {
		role, _ := ledger.ParseRole(w.Role)
		chain := trade.NormalizeChain(w.Chain)
		if err := led.Register(w.ID, role, chain, decimal.NewFromFloat(w.BalanceUSD)); err != nil {
			return fmt.Errorf("register wallet %q: %w", w.ID, err)
		}
	}

	ts, err := store.Open(cfg.Agent.TradeLogPath)
	if err != nil {
		return fmt.Errorf("open trade log: %w", err)
	}
	defer ts.Close()

	flowPath := cfg.Agent.FlowLogPath
	if flowPath == "" {
		flowPath = filepath.Join(filepath.Dir(cfg.Agent.TradeLogPath), "flows.jsonl")
	}
	fl, err := store.OpenFlowLog(flowPath)
	if err != nil {
		return fmt.Errorf("open flow log: %w", err)
	}
	defer fl.Close()

	recs, err := ts.Trades()
	if err != nil {
		return fmt.Errorf("read trade log: %w", err)
	}
	frecs, err := fl.Flows()
	if err != nil {
		return fmt.Errorf("read flow log: %w", err)
	}

	type event struct {
		at    time.Time
		trade *trade.Record
		flow  *store.FlowRecord
	}
	events := make([]event, 0, len(recs)+len(frecs))
	for i := range recs {
		events = append(events, event{at: recs[i].Timestamp, trade: &recs[i]})
	}
	for i := range frecs {
		events = append(events, event{at: frecs[i].Timestamp, flow: &frecs[i]})
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].at.Before(events[j].at)
	})

	var applied, moved, skipped int
	for _, ev := range events {
		switch {
		case ev.trade != nil:
			rec := ev.trade
			if _, rerr := led.ReplayPnL(rec.WalletID, rec.PnLUSD, rec.FeesUSD, rec.Timestamp); rerr != nil {
				skipped++
				continue
			}
			applied++
		case ev.flow != nil:
			f := ev.flow
			if terr := led.Transfer(f.From, f.To, f.AmountUSD); terr != nil {
				skipped++
				continue
			}
			moved++
		}
	}

	snap := led.Snapshot()

	fmt.Printf("Replayed %d trades and %d flows", applied, moved)
	if skipped > 0 {
		fmt.Printf(", %d skipped", skipped)
	}
	fmt.Println()
	fmt.Println()

	for _, id := range led.IDs() {
		w := snap.Wallets[id]
		fmt.Printf("  %-14s $%s", id, w.BalanceUSD.StringFixed(2))
		if !w.RealizedPnLTodayUSD.IsZero() {
			fmt.Printf("  (today %s)", w.RealizedPnLTodayUSD.StringFixed(2))
		}
		fmt.Println()
	}

	fmt.Printf("\n  Equity: $%s\n", snap.EquityTotalUSD.StringFixed(2))
	fmt.Printf("  Realized today: $%s\n", snap.PnLDay.TotalRealizedUSD.StringFixed(2))
	fmt.Printf("  Fees today: $%s\n", snap.PnLDay.TotalFeesUSD.StringFixed(2))

	return nil
}
