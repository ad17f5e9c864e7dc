package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Exit reason classifications recorded on closed trades.
const (
	ExitReasonStopLoss     = "Stop loss hit"
	ExitReasonTrailingStop = "Trailing stop"
	ExitReasonProfitTarget = "Profit target reached"
	ExitReasonMomentumFade = "Momentum fade"
	ExitReasonTimeBased    = "Time-based exit with profit"
)

// ClosedTrade is the immutable settled record of a position after exit.
// It is created once at sell time and appended to the trade history,
// oldest first.
type ClosedTrade struct {
	Position

	ExitPrice decimal.Decimal `json:"exit_price"`
	ExitTime  time.Time       `json:"exit_time"`

	SellFee   decimal.Decimal `json:"sell_fee"`
	TotalFees decimal.Decimal `json:"total_fees"`

	// GrossProfit is exit proceeds before fees minus the invested amount.
	GrossProfit        decimal.Decimal `json:"gross_profit"`
	GrossProfitPercent decimal.Decimal `json:"gross_profit_percent"`
	// NetProfit is GrossProfit minus both the buy and sell fees.
	NetProfit        decimal.Decimal `json:"net_profit"`
	NetProfitPercent decimal.Decimal `json:"net_profit_percent"`

	HoldDuration time.Duration `json:"hold_duration"`
	ExitReason   string        `json:"exit_reason"`
}
