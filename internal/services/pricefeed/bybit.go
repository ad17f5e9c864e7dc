package pricefeed

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	bybit "github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/penny/internal/domain"
)

// BybitSource implements Source using the Bybit V5 spot API. The SDK does not
// thread contexts into its requests, so the per-fetch bound lives on the HTTP
// client; use NewBybitClient to get one that carries it.
type BybitSource struct {
	client *bybit.Client
	calls  *CallCounter
	cache  *CandleCache
}

// NewBybitClient builds a Bybit SDK client whose requests are bounded by the
// package fetch timeout.
func NewBybitClient() *bybit.Client {
	return bybit.NewClient().WithHTTPClient(&http.Client{Timeout: requestTimeout})
}

// NewBybitSource creates a Bybit market data source. counter and cache may
// be nil.
func NewBybitSource(client *bybit.Client, counter *CallCounter, cache *CandleCache) *BybitSource {
	return &BybitSource{client: client, calls: counter, cache: cache}
}

// GetCurrentPrice fetches the last traded price from the spot ticker.
func (s *BybitSource) GetCurrentPrice(ctx context.Context, productID string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Decimal{}, err
	}
	s.calls.Inc("GetCurrentPrice")

	symbol := bybit.SymbolV5(productID)
	result, err := s.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: bybit.CategoryV5Spot,
		Symbol:   &symbol,
	})
	if err != nil {
		return decimal.Decimal{}, err
	}
	if len(result.Result.Spot.List) == 0 {
		return decimal.Decimal{}, fmt.Errorf("bybit API returned empty prices for %s", productID)
	}

	return decimal.NewFromString(result.Result.Spot.List[0].LastPrice)
}

// GetCandles fetches klines. Bybit already returns them newest-first.
func (s *BybitSource) GetCandles(ctx context.Context, productID string, granularity time.Duration, limit int) ([]domain.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cached, ok := s.cache.Get(productID, granularity, limit); ok {
		return cached, nil
	}

	interval, err := bybitInterval(granularity)
	if err != nil {
		return nil, err
	}

	s.calls.Inc("GetCandles")

	result, err := s.client.V5().Market().GetKline(bybit.V5GetKlineParam{
		Category: bybit.CategoryV5Spot,
		Symbol:   bybit.SymbolV5(productID),
		Interval: bybit.Interval(interval),
		Limit:    &limit,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch klines from Bybit for %s", productID)
	}
	if result == nil {
		return nil, errors.Errorf("empty result from Bybit API for %s", productID)
	}

	candles := make([]domain.Candle, len(result.Result.List))
	for i, k := range result.Result.List {
		openTime, err := parseMilliTimestamp(k.StartTime)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse start time at index %d", i)
		}
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

		candles[i] = domain.Candle{
			OpenTime:  openTime,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
			CloseTime: openTime.Add(granularity),
		}
	}

	s.cache.Put(productID, granularity, limit, candles)
	return candles, nil
}

// GetProductStats fetches the 24h statistics from the spot ticker.
func (s *BybitSource) GetProductStats(ctx context.Context, productID string) (domain.ProductStats, error) {
	if err := ctx.Err(); err != nil {
		return domain.ProductStats{}, err
	}
	s.calls.Inc("GetProductStats")

	symbol := bybit.SymbolV5(productID)
	result, err := s.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: bybit.CategoryV5Spot,
		Symbol:   &symbol,
	})
	if err != nil {
		return domain.ProductStats{}, errors.Wrapf(err, "failed to fetch tickers from Bybit for %s", productID)
	}
	if len(result.Result.Spot.List) == 0 {
		return domain.ProductStats{}, fmt.Errorf("bybit API returned empty tickers for %s", productID)
	}

	item := result.Result.Spot.List[0]

	last, err := decimal.NewFromString(item.LastPrice)
	if err != nil {
		return domain.ProductStats{}, errors.Wrap(err, "failed to parse last price")
	}
	quoteVolume, err := decimal.NewFromString(item.Turnover24H)
	if err != nil {
		return domain.ProductStats{}, errors.Wrap(err, "failed to parse 24h turnover")
	}
	// Bybit reports the 24h change as a fraction, e.g. "0.0465" for +4.65%.
	changeFraction, err := decimal.NewFromString(item.Price24HPcnt)
	if err != nil {
		return domain.ProductStats{}, errors.Wrap(err, "failed to parse 24h change")
	}

	return domain.ProductStats{
		Last:          last,
		QuoteVolume:   quoteVolume,
		ChangePercent: changeFraction.Mul(decimal.NewFromInt(100)),
	}, nil
}

// GetProducts lists spot instruments.
func (s *BybitSource) GetProducts(ctx context.Context) ([]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.calls.Inc("GetProducts")

	result, err := s.client.V5().Market().GetInstrumentsInfo(bybit.V5GetInstrumentsInfoParam{
		Category: bybit.CategoryV5Spot,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch instruments info from Bybit")
	}

	list := result.Result.Spot.List
	products := make([]domain.Product, 0, len(list))
	for _, item := range list {
		products = append(products, domain.Product{
			ID:       string(item.Symbol),
			Symbol:   string(item.BaseCoin),
			Quote:    string(item.QuoteCoin),
			Tradable: string(item.Status) == "Trading",
		})
	}

	return products, nil
}

func bybitInterval(granularity time.Duration) (string, error) {
	switch granularity {
	case time.Minute:
		return "1", nil
	case 3 * time.Minute:
		return "3", nil
	case 5 * time.Minute:
		return "5", nil
	case 15 * time.Minute:
		return "15", nil
	case 30 * time.Minute:
		return "30", nil
	case time.Hour:
		return "60", nil
	case 4 * time.Hour:
		return "240", nil
	default:
		return "", fmt.Errorf("unsupported candle granularity: %s", granularity)
	}
}

func parseMilliTimestamp(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, ms*int64(time.Millisecond)), nil
}
