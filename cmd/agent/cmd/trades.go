package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/agent/store"
)

var tradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "Inspect or reset the trade log",
	Long: `Read-side utilities over the append-only trade log.

Subcommands:
  list     - Print the most recent trades
  summary  - Aggregate win rate, realized PnL and fees
  reset    - Drop a wallet's (or pair's) history from the log

Examples:
  agent trades list --log ./data/trades.jsonl --limit 20
  agent trades summary --wallet sniper_sol --day 2026-09-01
  agent trades reset --wallet sniper_sol --pair SOL/USDC`,
}

var tradesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the most recent trades",
	RunE:  runTradesList,
}

var tradesSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Aggregate realized PnL, fees and win rate",
	RunE:  runTradesSummary,
}

var tradesResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop matching trades from the log",
	Long: `Rewrite the trade log without the trades matching the given
wallet and pair filters. With no filters every trade is dropped. The
running agent does not observe this; restart it afterwards so replay
picks up the trimmed log.`,
	RunE: runTradesReset,
}

var (
	tradesLogPath string
	tradesLimit   int
	tradesWallet  string
	tradesPair    string
	tradesDay     string
)

func init() {
	rootCmd.AddCommand(tradesCmd)
	tradesCmd.AddCommand(tradesListCmd)
	tradesCmd.AddCommand(tradesSummaryCmd)
	tradesCmd.AddCommand(tradesResetCmd)

	tradesCmd.PersistentFlags().StringVarP(&tradesLogPath, "log", "l", "./data/trades.jsonl", "path to the trade log")
	tradesListCmd.Flags().IntVarP(&tradesLimit, "limit", "n", 20, "number of trades to show")
	tradesSummaryCmd.Flags().StringVarP(&tradesWallet, "wallet", "w", "", "filter by wallet id")
	tradesSummaryCmd.Flags().StringVarP(&tradesDay, "day", "d", "", "filter by UTC day (YYYY-MM-DD)")
	tradesResetCmd.Flags().StringVarP(&tradesWallet, "wallet", "w", "", "filter by wallet id")
	tradesResetCmd.Flags().StringVarP(&tradesPair, "pair", "p", "", "filter by pair")
}

func runTradesList(cmd *cobra.Command, args []string) error {
	ts, err := store.Open(tradesLogPath)
	if err != nil {
		return fmt.Errorf("open trade log: %w", err)
	}
	defer ts.Close()

	recs, err := ts.Recent(tradesLimit)
	if err != nil {
		return fmt.Errorf("read trade log: %w", err)
	}
	if len(recs) == 0 {
		fmt.Println("No trades.")
		return nil
	}

	for _, r := range recs {
		fmt.Printf("%s  %-14s %-10s %-4s  $%-8s  pnl %-8s fees %s\n",
			r.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			r.WalletID, r.Pair, r.Side,
			r.NotionalUSD.StringFixed(2),
			r.PnLUSD.StringFixed(4),
			r.FeesUSD.StringFixed(4))
	}
	return nil
}

func runTradesSummary(cmd *cobra.Command, args []string) error {
	ts, err := store.Open(tradesLogPath)
	if err != nil {
		return fmt.Errorf("open trade log: %w", err)
	}
	defer ts.Close()

	sum, err := ts.Summarize(tradesWallet, tradesDay)
	if err != nil {
		return fmt.Errorf("summarize trade log: %w", err)
	}

	scope := "all wallets"
	if tradesWallet != "" {
		scope = tradesWallet
	}
	fmt.Printf("Summary (%s)\n", scope)
	fmt.Printf("  Trades: %d (%d winners, %d losers)\n", sum.Trades, sum.Winners, sum.Losers)
	fmt.Printf("  Win rate: %.1f%%\n", sum.WinRate*100)
	fmt.Printf("  Realized: $%s\n", sum.RealizedUSD.StringFixed(2))
	fmt.Printf("  Fees: $%s\n", sum.FeesUSD.StringFixed(2))
	return nil
}

func runTradesReset(cmd *cobra.Command, args []string) error {
	ts, err := store.Open(tradesLogPath)
	if err != nil {
		return fmt.Errorf("open trade log: %w", err)
	}
	defer ts.Close()

	dropped, err := ts.Reset(tradesWallet, tradesPair)
	if err != nil {
		return fmt.Errorf("reset trade log: %w", err)
	}

	fmt.Printf("✓ Dropped %d trades from %s\n", dropped, tradesLogPath)
	return nil
}
