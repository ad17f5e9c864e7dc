package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Opportunity is a transient scan result: a candidate coin with enough
// recent momentum to be considered for entry. It is consumed by the
// strategy on the same cycle and never persisted.
type Opportunity struct {
	Symbol    string
	ProductID string
	Price     decimal.Decimal
	// Momentum is the percent price change over the configured window.
	Momentum decimal.Decimal
	// MomentumScore is the weighted composite of price change, volume ratio,
	// RSI and VWAP position. The scanner gates and ranks on it.
	MomentumScore decimal.Decimal
	// Volatility is the average high-low candle range, used as a ranking
	// tie-break when two momentum scores are nearly equal.
	Volatility decimal.Decimal
	Volume24h  decimal.Decimal
	Indicators OpportunitySignals
	Timestamp  time.Time
}

// OpportunitySignals carries the secondary indicator readings computed for a
// candidate during scanning. RSIKnown is false when the candle window was too
// short to compute RSI.
type OpportunitySignals struct {
	RSI                  decimal.Decimal
	RSIKnown             bool
	VolumeRatio          decimal.Decimal
	VolumeSurge          bool
	AboveVWAP            bool
	PriceActionFavorable bool
	PriceActionReason    string
	// TrendConfirmed is set when the fast EMA sits above the slow EMA.
	TrendConfirmed bool
}
