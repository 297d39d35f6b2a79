package ledger

import (
	"github.com/shopspring/decimal"
)

// Role classifies what a logical wallet is for. A wallet is an account
// with a balance and day-scoped PnL counters, not necessarily a
// distinct on-chain address.
type Role string

const (
	RoleScalping    Role = "SCALPING"
	RoleCopyTrading Role = "COPY_TRADING"
	RoleVault       Role = "VAULT"
	RoleProfits     Role = "PROFITS"
	RoleFees        Role = "FEES"
	RoleEmergency   Role = "EMERGENCY"
)

// TradingRoles are the roles that place trades and therefore receive
// compounded capital.
var TradingRoles = map[Role]bool{
	RoleScalping:    true,
	RoleCopyTrading: true,
}

// ParseRole validates a config-supplied role string.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleScalping, RoleCopyTrading, RoleVault, RoleProfits, RoleFees, RoleEmergency:
		return Role(s), true
	}
	return "", false
}

// WalletState is the full state of one wallet. Values returned from the
// ledger are copies; only the ledger mutates the originals.
type WalletState struct {
	ID                      string          `json:"-"`
	Role                    Role            `json:"-"`
	Chain                   string          `json:"-"`
	BalanceUSD              decimal.Decimal `json:"balance_usd"`
	RealizedPnLTodayUSD     decimal.Decimal `json:"realized_pnl_today_usd"`
	GrossPnLTodayUSD        decimal.Decimal `json:"gross_pnl_today_usd"`
	FeesPaidTodayUSD        decimal.Decimal `json:"fees_paid_today_usd"`
	ConsecutiveLosingTrades int             `json:"consecutive_losing_trades"`
	LastResetDate           string          `json:"last_reset_date"`
}
