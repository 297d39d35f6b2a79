package risk

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/agent/config"
)

// Policy is the immutable risk configuration the gate evaluates
// against. Built once at startup from the policy document.
type Policy struct {
	Enabled bool

	// Global safety guards
	WarningDrawdownPct           decimal.Decimal
	CriticalDrawdownPct          decimal.Decimal
	MaxConsecutiveLosersWarning  int
	MaxConsecutiveLosersCritical int
	MinOperationalCapitalUSD     decimal.Decimal

	// Per-wallet limits; wallets without an entry fall back to Accept.
	Wallets map[string]WalletLimits
}

// WalletLimits caps a single wallet's trade admission. Zero means no
// limit for that dimension.
type WalletLimits struct {
	MaxPctBalancePerTrade decimal.Decimal
	MaxOpenPositions      int
	MaxNotionalPerAsset   decimal.Decimal
}

// PolicyFromConfig converts the loaded document, applying the safety
// mode scaling: SAFE halves the limits, DEGEN relaxes them by half
// again, NORMAL leaves them as declared.
func PolicyFromConfig(rc config.RiskConfig) Policy {
	factor := decimal.NewFromInt(1)
	switch strings.ToUpper(rc.Global.SafetyMode) {
	case "SAFE":
		factor = decimal.RequireFromString("0.5")
	case "DEGEN":
		factor = decimal.RequireFromString("1.5")
	}

	p := Policy{
		Enabled:                      rc.Global.Enabled,
		WarningDrawdownPct:           decimal.NewFromFloat(rc.Global.WarningDrawdownPct).Mul(factor),
		CriticalDrawdownPct:          decimal.NewFromFloat(rc.Global.CriticalDrawdownPct).Mul(factor),
		MaxConsecutiveLosersWarning:  rc.Global.MaxConsecutiveLosersWarning,
		MaxConsecutiveLosersCritical: rc.Global.MaxConsecutiveLosersCritical,
		MinOperationalCapitalUSD:     decimal.NewFromFloat(rc.Global.MinOperationalCapitalUSD),
		Wallets:                      make(map[string]WalletLimits, len(rc.Wallets)),
	}
	for id, w := range rc.Wallets {
		p.Wallets[id] = WalletLimits{
			MaxPctBalancePerTrade: decimal.NewFromFloat(w.MaxPctBalancePerTrade).Mul(factor),
			MaxOpenPositions:      w.MaxOpenPositions,
			MaxNotionalPerAsset:   decimal.NewFromFloat(w.MaxNotionalPerAsset),
		}
	}
	return p
}
