// Package config loads the static policy document: wallet definitions,
// flow rules and risk thresholds. It is read once at process start and
// treated as immutable input from then on.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete agent configuration.
type Config struct {
	Agent   AgentConfig    `json:"agent" yaml:"agent"`
	Wallets []WalletConfig `json:"wallets" yaml:"wallets"`
	Flows   []FlowRule     `json:"flows" yaml:"flows"`
	Risk    RiskConfig     `json:"risk" yaml:"risk"`
	Fill    FillConfig     `json:"fill" yaml:"fill"`
	Signals SignalsConfig  `json:"signals" yaml:"signals"`
	Journal JournalConfig  `json:"journal" yaml:"journal"`
	Server  ServerConfig   `json:"server" yaml:"server"`
}

// AgentConfig drives the scheduling loop and durable paths.
type AgentConfig struct {
	TickInterval  string `json:"tick_interval" yaml:"tick_interval"`
	TradeLogPath  string `json:"trade_log_path" yaml:"trade_log_path"`
	FlowLogPath   string `json:"flow_log_path,omitempty" yaml:"flow_log_path,omitempty"`
	SnapshotPath  string `json:"snapshot_path" yaml:"snapshot_path"`
	LogLevel      string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	DrainTimeout  string `json:"drain_timeout,omitempty" yaml:"drain_timeout,omitempty"`
	ReplayOnStart bool   `json:"replay_on_start" yaml:"replay_on_start"`
}

// ParseTickInterval converts the tick interval, defaulting to 5s.
func (a AgentConfig) ParseTickInterval() (time.Duration, error) {
	if a.TickInterval == "" {
		return 5 * time.Second, nil
	}
	return time.ParseDuration(a.TickInterval)
}

// ParseDrainTimeout converts the drain timeout, defaulting to 10s.
func (a AgentConfig) ParseDrainTimeout() (time.Duration, error) {
	if a.DrainTimeout == "" {
		return 10 * time.Second, nil
	}
	return time.ParseDuration(a.DrainTimeout)
}

// WalletConfig declares one logical wallet and its starting balance.
type WalletConfig struct {
	ID         string  `json:"id" yaml:"id"`
	Role       string  `json:"role" yaml:"role"`
	Chain      string  `json:"chain" yaml:"chain"`
	BalanceUSD float64 `json:"balance_usd" yaml:"balance_usd"`
}

// FlowRule declares one money-movement rule. Rules run in declaration
// order on every tick; the order is load-bearing and never reordered.
type FlowRule struct {
	Name   string `json:"name" yaml:"name"`
	Type   string `json:"type" yaml:"type"` // fee_topup | threshold_sweep | profit_sweep | compound
	Source string `json:"source,omitempty" yaml:"source,omitempty"`

	// Single destination, or a weighted split (splits sum <= 100).
	Destination  string        `json:"destination,omitempty" yaml:"destination,omitempty"`
	Destinations []Destination `json:"destinations,omitempty" yaml:"destinations,omitempty"`

	// fee_topup
	MinBufferUSD float64 `json:"min_buffer_usd,omitempty" yaml:"min_buffer_usd,omitempty"`
	TargetUSD    float64 `json:"target_usd,omitempty" yaml:"target_usd,omitempty"`

	// threshold_sweep: absolute cap, or percentage of total equity
	CapUSD       float64 `json:"cap_usd,omitempty" yaml:"cap_usd,omitempty"`
	MaxEquityPct float64 `json:"max_equity_pct,omitempty" yaml:"max_equity_pct,omitempty"`

	// profit_sweep
	MinProfitUSD float64 `json:"min_profit_usd,omitempty" yaml:"min_profit_usd,omitempty"`
	SweepPct     float64 `json:"sweep_pct,omitempty" yaml:"sweep_pct,omitempty"`

	// compound
	MinPnLUSD      float64 `json:"min_pnl_usd,omitempty" yaml:"min_pnl_usd,omitempty"`
	MaxCompoundPct float64 `json:"max_compound_pct,omitempty" yaml:"max_compound_pct,omitempty"`
}

// Destination is one leg of a weighted split.
type Destination struct {
	Wallet   string  `json:"wallet" yaml:"wallet"`
	SplitPct float64 `json:"split_pct" yaml:"split_pct"`
}

// RiskConfig bundles the global safety guards and per-wallet limits.
type RiskConfig struct {
	Global  GlobalRiskConfig            `json:"global" yaml:"global"`
	Wallets map[string]WalletRiskConfig `json:"wallets" yaml:"wallets"`
}

type GlobalRiskConfig struct {
	Enabled                      bool    `json:"enabled" yaml:"enabled"`
	SafetyMode                   string  `json:"safety_mode,omitempty" yaml:"safety_mode,omitempty"` // SAFE | NORMAL | DEGEN
	WarningDrawdownPct           float64 `json:"warning_drawdown_pct" yaml:"warning_drawdown_pct"`
	CriticalDrawdownPct          float64 `json:"critical_drawdown_pct" yaml:"critical_drawdown_pct"`
	MaxConsecutiveLosersWarning  int     `json:"max_consecutive_losers_warning" yaml:"max_consecutive_losers_warning"`
	MaxConsecutiveLosersCritical int     `json:"max_consecutive_losers_critical" yaml:"max_consecutive_losers_critical"`
	MinOperationalCapitalUSD     float64 `json:"min_operational_capital_usd" yaml:"min_operational_capital_usd"`
}

type WalletRiskConfig struct {
	MaxPctBalancePerTrade float64 `json:"max_pct_balance_per_trade" yaml:"max_pct_balance_per_trade"`
	MaxOpenPositions      int     `json:"max_open_positions" yaml:"max_open_positions"`
	MaxNotionalPerAsset   float64 `json:"max_notional_per_asset" yaml:"max_notional_per_asset"`
}

// FillConfig tunes the inner fill engine and the pipeline retry policy.
type FillConfig struct {
	Engine       string  `json:"engine" yaml:"engine"` // paper
	FeeRate      float64 `json:"fee_rate" yaml:"fee_rate"`
	Seed         int64   `json:"seed,omitempty" yaml:"seed,omitempty"`
	Timeout      string  `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxRetries   int     `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	RetryBackoff string  `json:"retry_backoff,omitempty" yaml:"retry_backoff,omitempty"`
}

func (f FillConfig) ParseTimeout() (time.Duration, error) {
	if f.Timeout == "" {
		return 3 * time.Second, nil
	}
	return time.ParseDuration(f.Timeout)
}

func (f FillConfig) ParseRetryBackoff() (time.Duration, error) {
	if f.RetryBackoff == "" {
		return 250 * time.Millisecond, nil
	}
	return time.ParseDuration(f.RetryBackoff)
}

// SignalsConfig selects and tunes the signal provider.
type SignalsConfig struct {
	Provider    string   `json:"provider" yaml:"provider"` // stub | dryrun | none
	Seed        int64    `json:"seed,omitempty" yaml:"seed,omitempty"`
	Pairs       []string `json:"pairs,omitempty" yaml:"pairs,omitempty"`
	Wallets     []string `json:"wallets,omitempty" yaml:"wallets,omitempty"`
	NotionalUSD float64  `json:"notional_usd,omitempty" yaml:"notional_usd,omitempty"`
	File        string   `json:"file,omitempty" yaml:"file,omitempty"`
}

// JournalConfig selects the queryable trade journal mirror.
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // sqlite | csv | none
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
}

// ServerConfig controls the read-only status surface.
type ServerConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// LoadFromFile loads configuration from a file, trying YAML first and
// falling back to JSON.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes the configuration, picking the format from the
// file extension.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

var validRoles = map[string]bool{
	"SCALPING": true, "COPY_TRADING": true, "VAULT": true,
	"PROFITS": true, "FEES": true, "EMERGENCY": true,
}

var validFlowTypes = map[string]bool{
	"fee_topup": true, "threshold_sweep": true, "profit_sweep": true, "compound": true,
}

// Validate fails fast on referential or shape problems. An unknown
// wallet reference here is a configuration bug and aborts startup.
func (c *Config) Validate() error {
	if len(c.Wallets) == 0 {
		return fmt.Errorf("at least one wallet is required")
	}

	ids := make(map[string]bool, len(c.Wallets))
	for i, w := range c.Wallets {
		if w.ID == "" {
			return fmt.Errorf("wallets[%d]: id is required", i)
		}
		if ids[w.ID] {
			return fmt.Errorf("wallets[%d]: duplicate id %q", i, w.ID)
		}
		ids[w.ID] = true
		if !validRoles[w.Role] {
			return fmt.Errorf("wallet %q: unknown role %q", w.ID, w.Role)
		}
		if w.Chain == "" {
			return fmt.Errorf("wallet %q: chain is required", w.ID)
		}
		if w.BalanceUSD < 0 {
			return fmt.Errorf("wallet %q: balance_usd must not be negative", w.ID)
		}
	}

	for i, r := range c.Flows {
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("flows[%d]", i)
		}
		if !validFlowTypes[r.Type] {
			return fmt.Errorf("flow %s: unknown type %q", name, r.Type)
		}
		if r.Destination == "" && len(r.Destinations) == 0 {
			return fmt.Errorf("flow %s: destination is required", name)
		}
		if r.Destination != "" && !ids[r.Destination] {
			return fmt.Errorf("flow %s: unknown destination wallet %q", name, r.Destination)
		}
		total := 0.0
		for _, dst := range r.Destinations {
			if !ids[dst.Wallet] {
				return fmt.Errorf("flow %s: unknown destination wallet %q", name, dst.Wallet)
			}
			if dst.SplitPct <= 0 {
				return fmt.Errorf("flow %s: split_pct for %q must be positive", name, dst.Wallet)
			}
			total += dst.SplitPct
		}
		if total > 100 {
			return fmt.Errorf("flow %s: destination splits sum to %.2f%% (> 100%%)", name, total)
		}
		// A concrete source must exist; role patterns ("role:FEES",
		// "profits_*") resolve at tick time.
		if r.Source != "" && !strings.ContainsAny(r.Source, "*:") && !ids[r.Source] {
			return fmt.Errorf("flow %s: unknown source wallet %q", name, r.Source)
		}
		if r.SweepPct < 0 || r.SweepPct > 100 {
			return fmt.Errorf("flow %s: sweep_pct must be within [0,100]", name)
		}
		if r.MaxCompoundPct < 0 || r.MaxCompoundPct > 100 {
			return fmt.Errorf("flow %s: max_compound_pct must be within [0,100]", name)
		}
		if r.MaxEquityPct < 0 || r.MaxEquityPct > 100 {
			return fmt.Errorf("flow %s: max_equity_pct must be within [0,100]", name)
		}
	}

	for id := range c.Risk.Wallets {
		if !ids[id] {
			return fmt.Errorf("risk.wallets: unknown wallet %q", id)
		}
	}
	if g := c.Risk.Global; g.Enabled {
		if g.CriticalDrawdownPct <= 0 {
			return fmt.Errorf("risk.global: critical_drawdown_pct must be positive")
		}
		if g.WarningDrawdownPct > g.CriticalDrawdownPct {
			return fmt.Errorf("risk.global: warning_drawdown_pct exceeds critical_drawdown_pct")
		}
	}
	switch strings.ToUpper(c.Risk.Global.SafetyMode) {
	case "", "SAFE", "NORMAL", "DEGEN":
	default:
		return fmt.Errorf("risk.global: unknown safety_mode %q", c.Risk.Global.SafetyMode)
	}

	for _, wid := range c.Signals.Wallets {
		if !ids[wid] {
			return fmt.Errorf("signals.wallets: unknown wallet %q", wid)
		}
	}

	if _, err := c.Agent.ParseTickInterval(); err != nil {
		return fmt.Errorf("agent.tick_interval: %w", err)
	}
	if _, err := c.Agent.ParseDrainTimeout(); err != nil {
		return fmt.Errorf("agent.drain_timeout: %w", err)
	}
	if _, err := c.Fill.ParseTimeout(); err != nil {
		return fmt.Errorf("fill.timeout: %w", err)
	}
	if _, err := c.Fill.ParseRetryBackoff(); err != nil {
		return fmt.Errorf("fill.retry_backoff: %w", err)
	}
	if c.Fill.FeeRate < 0 {
		return fmt.Errorf("fill.fee_rate must not be negative")
	}

	switch c.Journal.Type {
	case "", "none":
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal.db_path required for sqlite journal")
		}
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal trades_file and equity_file required for csv journal")
		}
	default:
		return fmt.Errorf("journal.type must be 'sqlite', 'csv' or 'none'")
	}

	return nil
}

// Default returns a runnable paper-trading configuration.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			TickInterval:  "5s",
			TradeLogPath:  "./data/trades.jsonl",
			FlowLogPath:   "./data/flows.jsonl",
			SnapshotPath:  "./data/wallets_runtime.json",
			LogLevel:      "info",
			ReplayOnStart: true,
		},
		Wallets: []WalletConfig{
			{ID: "sniper_sol", Role: "SCALPING", Chain: "solana", BalanceUSD: 30},
			{ID: "copy_sol", Role: "COPY_TRADING", Chain: "solana", BalanceUSD: 20},
			{ID: "base_main", Role: "SCALPING", Chain: "base", BalanceUSD: 25},
			{ID: "profits_sol", Role: "PROFITS", Chain: "solana", BalanceUSD: 0},
			{ID: "fees", Role: "FEES", Chain: "ethereum", BalanceUSD: 15},
			{ID: "vault", Role: "VAULT", Chain: "ethereum", BalanceUSD: 50},
			{ID: "emergency", Role: "EMERGENCY", Chain: "ethereum", BalanceUSD: 10},
		},
		Flows: []FlowRule{
			{
				Name: "fee-buffer", Type: "fee_topup",
				Source: "vault", Destination: "fees",
				MinBufferUSD: 10, TargetUSD: 15,
			},
			{
				Name: "fee-cap", Type: "threshold_sweep",
				Source: "fees", Destination: "vault",
				MaxEquityPct: 15,
			},
			{
				Name: "profit-sweep", Type: "profit_sweep",
				Source: "role:SCALPING", Destination: "profits_sol",
				MinProfitUSD: 5, SweepPct: 50,
			},
			{
				Name: "compound", Type: "compound",
				Source: "profits_sol",
				Destinations: []Destination{
					{Wallet: "sniper_sol", SplitPct: 60},
					{Wallet: "copy_sol", SplitPct: 40},
				},
				MinPnLUSD: 2, MaxCompoundPct: 30,
			},
		},
		Risk: RiskConfig{
			Global: GlobalRiskConfig{
				Enabled:                      true,
				SafetyMode:                   "NORMAL",
				WarningDrawdownPct:           5,
				CriticalDrawdownPct:          10,
				MaxConsecutiveLosersWarning:  3,
				MaxConsecutiveLosersCritical: 5,
				MinOperationalCapitalUSD:     20,
			},
			Wallets: map[string]WalletRiskConfig{
				"sniper_sol": {MaxPctBalancePerTrade: 20, MaxOpenPositions: 10},
				"copy_sol":   {MaxPctBalancePerTrade: 10, MaxOpenPositions: 5},
				"base_main":  {MaxPctBalancePerTrade: 20, MaxOpenPositions: 10},
			},
		},
		Fill: FillConfig{
			Engine:  "paper",
			FeeRate: 0.003,
			Timeout: "3s",
		},
		Signals: SignalsConfig{
			Provider:    "stub",
			Pairs:       []string{"SOL/USDC", "ETH/USDC"},
			Wallets:     []string{"sniper_sol", "base_main"},
			NotionalUSD: 5,
		},
		Journal: JournalConfig{
			Type:   "sqlite",
			DBPath: "./data/journal.db",
		},
		Server: ServerConfig{
			Enabled: true,
			Addr:    ":8787",
		},
	}
}
