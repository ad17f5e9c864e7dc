// Package domain defines core data structures used throughout the trading bot.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is a single OHLCV candlestick.
//
// Candle slices flowing through the bot are ordered newest-first: index 0 is
// the most recent candle. Exchange adapters reverse the wire order once at
// the boundary so every consumer can rely on this convention.
type Candle struct {
	OpenTime  time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	CloseTime time.Time
}

// Range returns the high-low span of the candle.
func (c *Candle) Range() decimal.Decimal {
	return c.High.Sub(c.Low)
}

// Body returns the absolute open-close span of the candle.
func (c *Candle) Body() decimal.Decimal {
	return c.Close.Sub(c.Open).Abs()
}

// TypicalPrice returns (high+low+close)/3, the VWAP input price.
func (c *Candle) TypicalPrice() decimal.Decimal {
	three := decimal.NewFromInt(3)
	return c.High.Add(c.Low).Add(c.Close).Div(three)
}
