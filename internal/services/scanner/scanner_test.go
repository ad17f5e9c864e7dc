package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/penny/config"
	"github.com/vadiminshakov/penny/internal/domain"
	"go.uber.org/zap"
)

type fakeSource struct {
	products    []domain.Product
	productsErr error
	stats       map[string]domain.ProductStats
	statsErr    map[string]error
	candles     map[string][]domain.Candle
	candlesErr  map[string]error
	prices      map[string]decimal.Decimal
}

func (f *fakeSource) GetCurrentPrice(_ context.Context, productID string) (decimal.Decimal, error) {
	price, ok := f.prices[productID]
	if !ok {
		return decimal.Decimal{}, errors.Errorf("no price for %s", productID)
	}
	return price, nil
}

func (f *fakeSource) GetCandles(_ context.Context, productID string, _ time.Duration, _ int) ([]domain.Candle, error) {
	if err := f.candlesErr[productID]; err != nil {
		return nil, err
	}
	return f.candles[productID], nil
}

func (f *fakeSource) GetProductStats(_ context.Context, productID string) (domain.ProductStats, error) {
	if err := f.statsErr[productID]; err != nil {
		return domain.ProductStats{}, err
	}
	stats, ok := f.stats[productID]
	if !ok {
		return domain.ProductStats{}, errors.Errorf("no stats for %s", productID)
	}
	return stats, nil
}

func (f *fakeSource) GetProducts(_ context.Context) ([]domain.Product, error) {
	if f.productsErr != nil {
		return nil, f.productsErr
	}
	return f.products, nil
}

func testCfg() *config.Config {
	return &config.Config{
		QuoteCurrency:     "USDT",
		MaxPrice:          decimal.NewFromInt(1),
		MinVolume24h:      decimal.NewFromInt(100000),
		MomentumThreshold: decimal.RequireFromString("1.5"),
		MomentumWindow:    10 * time.Minute,
		CandleGranularity: time.Minute,
		ScanWorkers:       2,
	}
}

func usdtProduct(id, symbol string) domain.Product {
	return domain.Product{ID: id, Symbol: symbol, Quote: "USDT", Tradable: true}
}

func stats(last, volume string) domain.ProductStats {
	return domain.ProductStats{
		Last:        decimal.RequireFromString(last),
		QuoteVolume: decimal.RequireFromString(volume),
	}
}

// window builds a newest-first candle slice where every candle has the given
// high-low range around its close.
func window(rangeSize string, closes ...string) []domain.Candle {
	half := decimal.RequireFromString(rangeSize).Div(decimal.NewFromInt(2))
	now := time.Now()

	candles := make([]domain.Candle, len(closes))
	for i, c := range closes {
		close := decimal.RequireFromString(c)
		candles[i] = domain.Candle{
			OpenTime:  now.Add(-time.Duration(i+1) * time.Minute),
			Open:      close,
			High:      close.Add(half),
			Low:       close.Sub(half),
			Close:     close,
			Volume:    decimal.NewFromInt(100),
			CloseTime: now.Add(-time.Duration(i) * time.Minute),
		}
	}
	return candles
}

func TestScanFiltersIneligibleProducts(t *testing.T) {
	src := &fakeSource{
		products: []domain.Product{
			usdtProduct("GOOD-USDT", "GOOD"),
			{ID: "BTCQ-BTC", Symbol: "BTCQ", Quote: "BTC", Tradable: true},
			{ID: "HALT-USDT", Symbol: "HALT", Quote: "USDT", Tradable: false},
			usdtProduct("RICH-USDT", "RICH"),
			usdtProduct("THIN-USDT", "THIN"),
		},
		stats: map[string]domain.ProductStats{
			"GOOD-USDT": stats("0.55", "500000"),
			"RICH-USDT": stats("1.50", "500000"), // above max price
			"THIN-USDT": stats("0.55", "50000"),  // below volume floor
		},
		candles: map[string][]domain.Candle{
			"GOOD-USDT": window("0.01", "0.54", "0.52", "0.50"),
			"RICH-USDT": window("0.01", "1.45", "1.40", "1.30"),
			"THIN-USDT": window("0.01", "0.54", "0.52", "0.50"),
		},
	}

	opps := New(zap.NewNop(), testCfg(), src, nil).Scan(context.Background())

	require.Len(t, opps, 1)
	assert.Equal(t, "GOOD-USDT", opps[0].ProductID)
	assert.Equal(t, "GOOD", opps[0].Symbol)
	assert.True(t, opps[0].Momentum.Equal(decimal.NewFromInt(10)),
		"momentum: %s", opps[0].Momentum)
	// 10% price change x1.5, plus 0.3 for sitting above VWAP.
	assert.True(t, opps[0].MomentumScore.Equal(decimal.RequireFromString("15.3")),
		"score: %s", opps[0].MomentumScore)
}

func TestScanSkipsBelowMomentumThreshold(t *testing.T) {
	// +0.6% price change x1.5 plus the VWAP bonus is 1.2, under the 1.5
	// threshold; no volume surge helps it over.
	src := &fakeSource{
		products: []domain.Product{usdtProduct("FLAT-USDT", "FLAT")},
		stats: map[string]domain.ProductStats{
			"FLAT-USDT": stats("0.503", "500000"),
		},
		candles: map[string][]domain.Candle{
			"FLAT-USDT": window("0.01", "0.504", "0.502", "0.50"),
		},
	}

	opps := New(zap.NewNop(), testCfg(), src, nil).Scan(context.Background())
	assert.Empty(t, opps)
}

func TestScanKeepsModestMoveBackedByVolumeSurge(t *testing.T) {
	// +1.2% raw price change is under the 1.5 threshold on its own, but the
	// newest candle carries triple the average volume, and the composite
	// (1.2x1.5 + capped surge 1.0 + VWAP 0.3 = 3.1) clears the gate.
	candles := window("0.002", "0.506", "0.505", "0.504", "0.502", "0.50")
	candles[0].Volume = decimal.NewFromInt(300)

	src := &fakeSource{
		products: []domain.Product{usdtProduct("SRG-USDT", "SRG")},
		stats: map[string]domain.ProductStats{
			"SRG-USDT": stats("0.506", "500000"),
		},
		candles: map[string][]domain.Candle{"SRG-USDT": candles},
	}

	opps := New(zap.NewNop(), testCfg(), src, nil).Scan(context.Background())

	require.Len(t, opps, 1)
	assert.True(t, opps[0].Momentum.Equal(decimal.RequireFromString("1.2")),
		"momentum: %s", opps[0].Momentum)
	assert.True(t, opps[0].MomentumScore.Equal(decimal.RequireFromString("3.1")),
		"score: %s", opps[0].MomentumScore)
}

func TestScanSkipsShortCandleWindows(t *testing.T) {
	src := &fakeSource{
		products: []domain.Product{usdtProduct("NEW-USDT", "NEW")},
		stats: map[string]domain.ProductStats{
			"NEW-USDT": stats("0.60", "500000"),
		},
		candles: map[string][]domain.Candle{
			"NEW-USDT": window("0.01", "0.58", "0.50"), // only two candles
		},
	}

	opps := New(zap.NewNop(), testCfg(), src, nil).Scan(context.Background())
	assert.Empty(t, opps)
}

func TestScanRanksByMomentumWithVolatilityTieBreak(t *testing.T) {
	src := &fakeSource{
		products: []domain.Product{
			usdtProduct("AAA-USDT", "AAA"),
			usdtProduct("BBB-USDT", "BBB"),
			usdtProduct("CCC-USDT", "CCC"),
		},
		stats: map[string]domain.ProductStats{
			"AAA-USDT": stats("0.525", "500000"),  // +5.0%, volatile
			"BBB-USDT": stats("0.5265", "500000"), // +5.3%, quiet
			"CCC-USDT": stats("0.55", "500000"),   // +10%
		},
		candles: map[string][]domain.Candle{
			"AAA-USDT": window("0.02", "0.52", "0.51", "0.50"),
			"BBB-USDT": window("0.004", "0.52", "0.51", "0.50"),
			"CCC-USDT": window("0.01", "0.54", "0.52", "0.50"),
		},
	}

	opps := New(zap.NewNop(), testCfg(), src, nil).Scan(context.Background())

	require.Len(t, opps, 3)
	// CCC wins on momentum score outright; AAA and BBB score within the tie
	// band of each other, so the more volatile AAA ranks ahead.
	assert.Equal(t, "CCC-USDT", opps[0].ProductID)
	assert.Equal(t, "AAA-USDT", opps[1].ProductID)
	assert.Equal(t, "BBB-USDT", opps[2].ProductID)
}

func TestSortOpportunitiesOrderIndependentOfInput(t *testing.T) {
	opp := func(id, score, volatility string) domain.Opportunity {
		return domain.Opportunity{
			ProductID:     id,
			MomentumScore: decimal.RequireFromString(score),
			Volatility:    decimal.RequireFromString(volatility),
		}
	}

	// A chain of near-equal scores: A~B and B~C but not A~C. The band is
	// anchored at the best score, so B joins A's band and C starts its own,
	// whatever order the candidates arrive in.
	a := opp("A-USDT", "5.0", "0.001")
	b := opp("B-USDT", "4.6", "0.03")
	c := opp("C-USDT", "4.2", "0.02")

	for _, input := range [][]domain.Opportunity{
		{a, b, c},
		{c, b, a},
		{b, c, a},
	} {
		opps := make([]domain.Opportunity, len(input))
		copy(opps, input)
		sortOpportunities(opps)

		require.Len(t, opps, 3)
		assert.Equal(t, "B-USDT", opps[0].ProductID, "B out-volatiles A inside the band")
		assert.Equal(t, "A-USDT", opps[1].ProductID)
		assert.Equal(t, "C-USDT", opps[2].ProductID)
	}
}

func TestScanSurvivesPerCandidateFailures(t *testing.T) {
	src := &fakeSource{
		products: []domain.Product{
			usdtProduct("BAD-USDT", "BAD"),
			usdtProduct("WORSE-USDT", "WORSE"),
			usdtProduct("GOOD-USDT", "GOOD"),
		},
		stats: map[string]domain.ProductStats{
			"WORSE-USDT": stats("0.55", "500000"),
			"GOOD-USDT":  stats("0.55", "500000"),
		},
		statsErr: map[string]error{
			"BAD-USDT": errors.New("rate limited"),
		},
		candlesErr: map[string]error{
			"WORSE-USDT": errors.New("klines unavailable"),
		},
		candles: map[string][]domain.Candle{
			"GOOD-USDT": window("0.01", "0.54", "0.52", "0.50"),
		},
	}

	opps := New(zap.NewNop(), testCfg(), src, nil).Scan(context.Background())

	require.Len(t, opps, 1)
	assert.Equal(t, "GOOD-USDT", opps[0].ProductID)
}

func TestScanReturnsNilWhenProductListingFails(t *testing.T) {
	src := &fakeSource{productsErr: errors.New("exchange down")}

	opps := New(zap.NewNop(), testCfg(), src, nil).Scan(context.Background())
	assert.Nil(t, opps)
}

func TestScanPopulatesIndicatorSignals(t *testing.T) {
	// Five candles so the volume surge window applies; the newest candle
	// carries triple the average volume of the older ones.
	candles := window("0.01", "0.55", "0.54", "0.53", "0.51", "0.50")
	candles[0].Volume = decimal.NewFromInt(300)

	src := &fakeSource{
		products: []domain.Product{usdtProduct("SRG-USDT", "SRG")},
		stats: map[string]domain.ProductStats{
			"SRG-USDT": stats("0.56", "500000"),
		},
		candles: map[string][]domain.Candle{"SRG-USDT": candles},
	}

	opps := New(zap.NewNop(), testCfg(), src, nil).Scan(context.Background())

	require.Len(t, opps, 1)
	sig := opps[0].Indicators
	assert.True(t, sig.VolumeSurge)
	assert.True(t, sig.VolumeRatio.Equal(decimal.NewFromInt(3)), "ratio: %s", sig.VolumeRatio)
	assert.True(t, sig.AboveVWAP)
	assert.True(t, sig.PriceActionFavorable)
	assert.False(t, sig.RSIKnown, "five closes are not enough for RSI")
}
