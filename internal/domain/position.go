package domain

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Position represents one open simulated trade. A product may have at most
// one open position at a time; the strategy enforces that invariant.
//
// Fee percentages are snapshotted at entry so the exit leg is charged at the
// rate that was in effect when the trade was opened, regardless of config
// reloads while the position is held.
type Position struct {
	ID        string `json:"id"`
	Symbol    string `json:"symbol"`
	ProductID string `json:"product_id"`

	EntryPrice decimal.Decimal `json:"entry_price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Invested   decimal.Decimal `json:"invested"`
	BuyFee     decimal.Decimal `json:"buy_fee"`

	TargetPrice   decimal.Decimal `json:"target_price"`
	StopLossPrice decimal.Decimal `json:"stop_loss_price"`

	MakerFeePercent decimal.Decimal `json:"maker_fee_percent"`
	TakerFeePercent decimal.Decimal `json:"taker_fee_percent"`

	EntryTime time.Time `json:"entry_time"`

	// Audit captures the indicator values and reasons that justified the
	// entry, for later analysis. Optional.
	Audit *EntryAudit `json:"audit,omitempty"`
}

// EntryAudit is the scoring snapshot recorded when a position is opened.
type EntryAudit struct {
	Score               int             `json:"score"`
	Grade               string          `json:"grade"`
	Reasons             []string        `json:"reasons,omitempty"`
	Momentum            decimal.Decimal `json:"momentum"`
	VolumeRatio         decimal.Decimal `json:"volume_ratio"`
	RSI                 decimal.Decimal `json:"rsi"`
	ProfitTargetPercent decimal.Decimal `json:"profit_target_percent"`
	StopLossPercent     decimal.Decimal `json:"stop_loss_percent"`
}

// NewPositionID derives a position identity from symbol and entry time.
func NewPositionID(symbol string, entryTime time.Time) string {
	return fmt.Sprintf("%s-%d", symbol, entryTime.UnixMilli())
}

// Validate checks the invariants every open position must satisfy.
func (p *Position) Validate() error {
	if p.Quantity.LessThanOrEqual(decimal.Zero) {
		return errors.New("position quantity must be greater than zero")
	}
	if p.EntryPrice.LessThanOrEqual(decimal.Zero) {
		return errors.New("entry price must be greater than zero")
	}
	return nil
}

// ProfitPercent returns the unrealized profit percentage at the given price.
func (p *Position) ProfitPercent(currentPrice decimal.Decimal) decimal.Decimal {
	if p.EntryPrice.IsZero() {
		return decimal.Zero
	}
	return currentPrice.Sub(p.EntryPrice).Div(p.EntryPrice).Mul(decimal.NewFromInt(100))
}
