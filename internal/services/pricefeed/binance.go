package pricefeed

import (
	"context"
	"fmt"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/penny/internal/domain"
)

// BinanceSource implements Source using the Binance public REST API.
// The call counter and candle cache are constructor-injected instance state.
type BinanceSource struct {
	client *binance.Client
	calls  *CallCounter
	cache  *CandleCache
}

// NewBinanceSource creates a Binance market data source. counter and cache
// may be nil.
func NewBinanceSource(client *binance.Client, counter *CallCounter, cache *CandleCache) *BinanceSource {
	return &BinanceSource{client: client, calls: counter, cache: cache}
}

// GetCurrentPrice fetches the last traded price from the public ticker.
func (s *BinanceSource) GetCurrentPrice(ctx context.Context, productID string) (decimal.Decimal, error) {
	s.calls.Inc("GetCurrentPrice")

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	prices, err := s.client.NewListPricesService().Symbol(productID).Do(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if len(prices) == 0 {
		return decimal.Decimal{}, fmt.Errorf("binance API returned empty prices for %s", productID)
	}

	return decimal.NewFromString(prices[0].Price)
}

// GetCandles fetches klines and returns them newest-first.
func (s *BinanceSource) GetCandles(ctx context.Context, productID string, granularity time.Duration, limit int) ([]domain.Candle, error) {
	if cached, ok := s.cache.Get(productID, granularity, limit); ok {
		return cached, nil
	}

	interval, err := binanceInterval(granularity)
	if err != nil {
		return nil, err
	}

	s.calls.Inc("GetCandles")

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	klines, err := s.client.NewKlinesService().
		Symbol(productID).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch klines from Binance for %s", productID)
	}

	// Binance returns klines oldest-first; reverse while parsing.
	candles := make([]domain.Candle, len(klines))
	for i, k := range klines {
		open, err := decimal.NewFromString(k.Open)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse open price at index %d", i)
		}
		high, err := decimal.NewFromString(k.High)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse high price at index %d", i)
		}
		low, err := decimal.NewFromString(k.Low)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse low price at index %d", i)
		}
		closePrice, err := decimal.NewFromString(k.Close)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse close price at index %d", i)
		}
		volume, err := decimal.NewFromString(k.Volume)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse volume at index %d", i)
		}

		candles[len(klines)-1-i] = domain.Candle{
			OpenTime:  time.Unix(0, k.OpenTime*int64(time.Millisecond)),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
			CloseTime: time.Unix(0, k.CloseTime*int64(time.Millisecond)),
		}
	}

	s.cache.Put(productID, granularity, limit, candles)
	return candles, nil
}

// GetProductStats fetches the 24h rolling window statistics.
func (s *BinanceSource) GetProductStats(ctx context.Context, productID string) (domain.ProductStats, error) {
	s.calls.Inc("GetProductStats")

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	stats, err := s.client.NewListPriceChangeStatsService().Symbol(productID).Do(ctx)
	if err != nil {
		return domain.ProductStats{}, errors.Wrapf(err, "failed to fetch 24h stats from Binance for %s", productID)
	}
	if len(stats) == 0 {
		return domain.ProductStats{}, fmt.Errorf("binance API returned empty stats for %s", productID)
	}

	last, err := decimal.NewFromString(stats[0].LastPrice)
	if err != nil {
		return domain.ProductStats{}, errors.Wrap(err, "failed to parse last price")
	}
	quoteVolume, err := decimal.NewFromString(stats[0].QuoteVolume)
	if err != nil {
		return domain.ProductStats{}, errors.Wrap(err, "failed to parse quote volume")
	}
	change, err := decimal.NewFromString(stats[0].PriceChangePercent)
	if err != nil {
		return domain.ProductStats{}, errors.Wrap(err, "failed to parse price change percent")
	}

	return domain.ProductStats{
		Last:          last,
		QuoteVolume:   quoteVolume,
		ChangePercent: change,
	}, nil
}

// GetProducts lists spot markets from exchange info.
func (s *BinanceSource) GetProducts(ctx context.Context) ([]domain.Product, error) {
	s.calls.Inc("GetProducts")

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	info, err := s.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch exchange info from Binance")
	}

	products := make([]domain.Product, 0, len(info.Symbols))
	for _, sym := range info.Symbols {
		products = append(products, domain.Product{
			ID:       sym.Symbol,
			Symbol:   sym.BaseAsset,
			Quote:    sym.QuoteAsset,
			Tradable: sym.Status == "TRADING" && sym.IsSpotTradingAllowed,
		})
	}

	return products, nil
}

func binanceInterval(granularity time.Duration) (string, error) {
	switch granularity {
	case time.Minute:
		return "1m", nil
	case 3 * time.Minute:
		return "3m", nil
	case 5 * time.Minute:
		return "5m", nil
	case 15 * time.Minute:
		return "15m", nil
	case 30 * time.Minute:
		return "30m", nil
	case time.Hour:
		return "1h", nil
	case 4 * time.Hour:
		return "4h", nil
	default:
		return "", fmt.Errorf("unsupported candle granularity: %s", granularity)
	}
}
