package domain

import "github.com/shopspring/decimal"

// Summary is a read-only portfolio report.
type Summary struct {
	Cash          decimal.Decimal `json:"cash"`
	TotalValue    decimal.Decimal `json:"total_value"`
	OpenPositions int             `json:"open_positions"`

	TotalTrades int             `json:"total_trades"`
	Wins        int             `json:"wins"`
	WinRate     decimal.Decimal `json:"win_rate"`

	TotalGrossProfit decimal.Decimal `json:"total_gross_profit"`
	TotalNetProfit   decimal.Decimal `json:"total_net_profit"`
	TotalFees        decimal.Decimal `json:"total_fees"`

	// ROIPercent measures total value against the fixed starting capital.
	ROIPercent decimal.Decimal `json:"roi_percent"`
}
