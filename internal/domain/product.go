package domain

import "github.com/shopspring/decimal"

// Product describes one tradable market on an exchange.
type Product struct {
	// ID is the exchange product identifier, e.g. "DOGEUSDT".
	ID string
	// Symbol is the base asset, e.g. "DOGE".
	Symbol string
	// Quote is the quote currency, e.g. "USDT".
	Quote string
	// Tradable reports whether the market currently accepts orders.
	Tradable bool
}

// ProductStats is a 24-hour market statistics snapshot.
type ProductStats struct {
	Last          decimal.Decimal
	QuoteVolume   decimal.Decimal
	ChangePercent decimal.Decimal
}
