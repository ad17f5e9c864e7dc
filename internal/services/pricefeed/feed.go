package pricefeed

import (
	"context"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultStaleAfter = 10 * time.Second
	reconnectDelay    = 5 * time.Second
)

// Feed maintains a concurrently updated last-price cache fed by the Binance
// all-market mini-ticker stream. When the stream is down or a quote is stale
// the scanner falls back to pull-based REST queries; the feed only ever
// serves fresh quotes.
type Feed struct {
	logger     *zap.Logger
	staleAfter time.Duration

	mu        sync.RWMutex
	prices    map[string]feedQuote
	connected bool
}

type feedQuote struct {
	price decimal.Decimal
	at    time.Time
}

// NewFeed creates a price feed. staleAfter <= 0 selects the default.
func NewFeed(logger *zap.Logger, staleAfter time.Duration) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	return &Feed{
		logger:     logger,
		staleAfter: staleAfter,
		prices:     make(map[string]feedQuote),
	}
}

// Run keeps the websocket subscription alive until ctx is cancelled,
// reconnecting with a fixed delay after disconnects.
func (f *Feed) Run(ctx context.Context) {
	for {
		doneC, stopC, err := binance.WsAllMiniMarketsStatServe(f.handleEvent, f.handleStreamError)
		if err != nil {
			f.logger.Warn("price feed connect failed, falling back to pull mode",
				zap.Error(err),
				zap.Duration("retry_in", reconnectDelay))
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
				continue
			}
		}

		f.setConnected(true)
		f.logger.Info("price feed connected")

		select {
		case <-ctx.Done():
			stopC <- struct{}{}
			f.setConnected(false)
			return
		case <-doneC:
			f.setConnected(false)
			f.logger.Warn("price feed disconnected", zap.Duration("retry_in", reconnectDelay))
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
		}
	}
}

// LastPrice returns the cached price for the product if it is fresh enough
// to act on.
func (f *Feed) LastPrice(productID string) (decimal.Decimal, bool) {
	if f == nil {
		return decimal.Decimal{}, false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	q, ok := f.prices[productID]
	if !ok || time.Since(q.at) > f.staleAfter {
		return decimal.Decimal{}, false
	}
	return q.price, true
}

// Healthy reports whether the stream is currently connected.
func (f *Feed) Healthy() bool {
	if f == nil {
		return false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

func (f *Feed) handleEvent(event binance.WsAllMiniMarketsStatEvent) {
	now := time.Now()

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range event {
		price, err := decimal.NewFromString(e.LastPrice)
		if err != nil {
			continue
		}
		f.prices[e.Symbol] = feedQuote{price: price, at: now}
	}
}

func (f *Feed) handleStreamError(err error) {
	f.logger.Warn("price feed stream error", zap.Error(err))
}

func (f *Feed) setConnected(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = v
}
