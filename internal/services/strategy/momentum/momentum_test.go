package momentum

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
	"github.com/vadiminshakov/penny/internal/services/ledger"
	"github.com/vadiminshakov/penny/internal/storage/portfolio"
	"go.uber.org/zap"
)

type fakeSource struct {
	prices     map[string]decimal.Decimal
	priceErr   map[string]error
	candles    map[string][]domain.Candle
	candlesErr error
}

func (f *fakeSource) GetCurrentPrice(_ context.Context, productID string) (decimal.Decimal, error) {
	if err := f.priceErr[productID]; err != nil {
		return decimal.Decimal{}, err
	}
	price, ok := f.prices[productID]
	if !ok {
		return decimal.Decimal{}, errors.Errorf("no price for %s", productID)
	}
	return price, nil
}

func (f *fakeSource) GetCandles(_ context.Context, productID string, _ time.Duration, _ int) ([]domain.Candle, error) {
	if f.candlesErr != nil {
		return nil, f.candlesErr
	}
	return f.candles[productID], nil
}

func (f *fakeSource) GetProductStats(_ context.Context, _ string) (domain.ProductStats, error) {
	return domain.ProductStats{}, errors.New("not used")
}

func (f *fakeSource) GetProducts(_ context.Context) ([]domain.Product, error) {
	return nil, errors.New("not used")
}

func (f *fakeSource) setPrice(productID, price string) {
	f.prices[productID] = decimal.RequireFromString(price)
}

// closesOnly builds a minimal newest-first candle window for the fade check.
func closesOnly(closes ...string) []domain.Candle {
	candles := make([]domain.Candle, len(closes))
	for i, c := range closes {
		candles[i] = domain.Candle{Close: decimal.RequireFromString(c)}
	}
	return candles
}

func testCfg() *config.Config {
	return &config.Config{
		Mode:                  domain.ModePaper,
		PositionSize:          decimal.NewFromInt(100),
		MaxPositions:          2,
		ProfitTargetPercent:   decimal.NewFromInt(3),
		StopLossPercent:       decimal.NewFromInt(-5),
		TrailingProfitEnabled: true,
		TrailingStopPercent:   decimal.NewFromInt(10),
		MinMomentumToRide:     decimal.RequireFromString("0.5"),
		FadeDropFraction:      decimal.RequireFromString("0.5"),
		MaxHoldDuration:       4 * time.Hour,
		MakerFeePercent:       decimal.RequireFromString("0.25"),
		TakerFeePercent:       decimal.RequireFromString("0.4"),
		CandleGranularity:     time.Minute,
	}
}

func newTestStrategy(t *testing.T, cfg *config.Config) (*Strategy, *ledger.Ledger, *fakeSource) {
	t.Helper()

	store, err := portfolio.NewStore(t.TempDir())
	require.NoError(t, err)
	book, err := ledger.New(zap.NewNop(), cfg, store)
	require.NoError(t, err)

	src := &fakeSource{
		prices:   make(map[string]decimal.Decimal),
		priceErr: make(map[string]error),
		candles:  make(map[string][]domain.Candle),
	}
	return New(zap.NewNop(), cfg, book, src, nil, nil), book, src
}

func strongOpportunity(productID, symbol, price string) domain.Opportunity {
	return domain.Opportunity{
		Symbol:    symbol,
		ProductID: productID,
		Price:     decimal.RequireFromString(price),
		Momentum:  decimal.NewFromInt(5),
		Indicators: domain.OpportunitySignals{
			RSI:                  decimal.NewFromInt(50),
			RSIKnown:             true,
			VolumeRatio:          decimal.NewFromInt(3),
			VolumeSurge:          true,
			PriceActionFavorable: true,
			PriceActionReason:    "Strong bullish candle",
		},
		Timestamp: time.Now(),
	}
}

func weakOpportunity(productID, symbol, price string) domain.Opportunity {
	return domain.Opportunity{
		Symbol:    symbol,
		ProductID: productID,
		Price:     decimal.RequireFromString(price),
		Momentum:  decimal.NewFromInt(1),
		Indicators: domain.OpportunitySignals{
			VolumeRatio: decimal.NewFromInt(1),
		},
		Timestamp: time.Now(),
	}
}

func TestEntryExecutesOnStrongOpportunity(t *testing.T) {
	s, book, _ := newTestStrategy(t, testCfg())

	bought := s.EvaluateBuyOpportunity(context.Background(), strongOpportunity("XYZ-USDT", "XYZ", "0.50"))
	require.True(t, bought)

	positions := book.OpenPositions()
	require.Len(t, positions, 1)
	assert.Equal(t, "XYZ-USDT", positions[0].ProductID)
	require.NotNil(t, positions[0].Audit)
	assert.Equal(t, "A", positions[0].Audit.Grade)
	assert.Equal(t, 100, positions[0].Audit.Score)
}

func TestEntryGateInsufficientCash(t *testing.T) {
	cfg := testCfg()
	cfg.PositionSize = decimal.NewFromInt(20000)
	s, book, _ := newTestStrategy(t, cfg)

	bought := s.EvaluateBuyOpportunity(context.Background(), strongOpportunity("XYZ-USDT", "XYZ", "0.50"))
	assert.False(t, bought)
	assert.Empty(t, book.OpenPositions())
}

func TestEntryGatePositionLimit(t *testing.T) {
	cfg := testCfg()
	cfg.MaxPositions = 1
	s, book, _ := newTestStrategy(t, cfg)

	require.True(t, s.EvaluateBuyOpportunity(context.Background(), strongOpportunity("AAA-USDT", "AAA", "0.50")))
	assert.False(t, s.EvaluateBuyOpportunity(context.Background(), strongOpportunity("BBB-USDT", "BBB", "0.50")))
	assert.Len(t, book.OpenPositions(), 1)
}

func TestEntryGateOnePositionPerProduct(t *testing.T) {
	s, book, _ := newTestStrategy(t, testCfg())

	require.True(t, s.EvaluateBuyOpportunity(context.Background(), strongOpportunity("XYZ-USDT", "XYZ", "0.50")))
	assert.False(t, s.EvaluateBuyOpportunity(context.Background(), strongOpportunity("XYZ-USDT", "XYZ", "0.52")))
	assert.Len(t, book.OpenPositions(), 1)
}

func TestEntryGateRejectsGradeF(t *testing.T) {
	s, book, _ := newTestStrategy(t, testCfg())

	bought := s.EvaluateBuyOpportunity(context.Background(), weakOpportunity("XYZ-USDT", "XYZ", "0.50"))
	assert.False(t, bought)
	assert.Empty(t, book.OpenPositions())
}

func TestEntryGateRejectsLiveMode(t *testing.T) {
	cfg := testCfg()
	cfg.Mode = domain.ModeLive
	s, book, _ := newTestStrategy(t, cfg)

	bought := s.EvaluateBuyOpportunity(context.Background(), strongOpportunity("XYZ-USDT", "XYZ", "0.50"))
	assert.False(t, bought)
	assert.Empty(t, book.OpenPositions())
}

func TestStopLossExit(t *testing.T) {
	s, book, src := newTestStrategy(t, testCfg())

	require.True(t, s.EvaluateBuyOpportunity(context.Background(), strongOpportunity("XYZ-USDT", "XYZ", "0.50")))

	src.setPrice("XYZ-USDT", "0.47") // below the 0.475 stop
	s.ManagePositions(context.Background())

	assert.Empty(t, book.OpenPositions())
	trades := book.ClosedTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, domain.ExitReasonStopLoss, trades[0].ExitReason)
}

func TestTargetReachedWithTrailingDisabled(t *testing.T) {
	cfg := testCfg()
	cfg.TrailingProfitEnabled = false
	s, book, src := newTestStrategy(t, cfg)

	require.True(t, s.EvaluateBuyOpportunity(context.Background(), strongOpportunity("XYZ-USDT", "XYZ", "1.00")))

	src.setPrice("XYZ-USDT", "1.04") // +4%, above the 3% target
	s.ManagePositions(context.Background())

	assert.Empty(t, book.OpenPositions())
	trades := book.ClosedTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, domain.ExitReasonProfitTarget, trades[0].ExitReason)
}

func TestTrailingRidesTheWinner(t *testing.T) {
	s, book, src := newTestStrategy(t, testCfg())
	ctx := context.Background()

	require.True(t, s.EvaluateBuyOpportunity(ctx, strongOpportunity("XYZ-USDT", "XYZ", "1.00")))

	// Target crossed: seed the peak, no sell.
	src.setPrice("XYZ-USDT", "1.04")
	s.ManagePositions(ctx)
	assert.Len(t, book.OpenPositions(), 1)

	// New high: ride, no sell.
	src.setPrice("XYZ-USDT", "1.08")
	s.ManagePositions(ctx)
	assert.Len(t, book.OpenPositions(), 1)

	// Retreat to 1.00: drop from peak is 7.4%, inside the 10% trailing
	// band, and recent candles show no deceleration. Keep holding even
	// though profit is back under the target.
	src.setPrice("XYZ-USDT", "1.00")
	src.candles["XYZ-USDT"] = closesOnly("1.00", "1.00", "1.01")
	s.ManagePositions(ctx)
	assert.Len(t, book.OpenPositions(), 1)
	assert.Empty(t, book.ClosedTrades())
}

func TestTrailingMomentumFadeExit(t *testing.T) {
	s, book, src := newTestStrategy(t, testCfg())
	ctx := context.Background()

	require.True(t, s.EvaluateBuyOpportunity(ctx, strongOpportunity("XYZ-USDT", "XYZ", "1.00")))

	src.setPrice("XYZ-USDT", "1.08")
	s.ManagePositions(ctx) // seed peak at 1.08

	// Drop of 7.4% exceeds half the trailing stop, and the last candle
	// fell 1% against the previous close: fade fires before the full
	// trailing distance is reached.
	src.setPrice("XYZ-USDT", "1.00")
	src.candles["XYZ-USDT"] = closesOnly("0.99", "1.00", "1.01")
	s.ManagePositions(ctx)

	assert.Empty(t, book.OpenPositions())
	trades := book.ClosedTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, domain.ExitReasonMomentumFade, trades[0].ExitReason)
}

func TestTrailingStopExit(t *testing.T) {
	s, book, src := newTestStrategy(t, testCfg())
	ctx := context.Background()

	require.True(t, s.EvaluateBuyOpportunity(ctx, strongOpportunity("XYZ-USDT", "XYZ", "1.00")))

	src.setPrice("XYZ-USDT", "1.08")
	s.ManagePositions(ctx) // seed peak at 1.08

	// 0.97 is a 10.2% drop from the 1.08 peak, past the 10% trailing stop
	// (and still above the 0.95 hard stop).
	src.setPrice("XYZ-USDT", "0.97")
	s.ManagePositions(ctx)

	assert.Empty(t, book.OpenPositions())
	trades := book.ClosedTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, domain.ExitReasonTrailingStop, trades[0].ExitReason)
}

func TestTimeBasedExitOnStagnantWinner(t *testing.T) {
	cfg := testCfg()

	store, err := portfolio.NewStore(t.TempDir())
	require.NoError(t, err)

	// Seed a snapshot holding a five-hour-old position in slight profit.
	stale := domain.Position{
		ID:              "XYZ-1",
		Symbol:          "XYZ",
		ProductID:       "XYZ-USDT",
		EntryPrice:      decimal.NewFromInt(1),
		Quantity:        decimal.RequireFromString("99.75"),
		Invested:        decimal.NewFromInt(100),
		BuyFee:          decimal.RequireFromString("0.25"),
		TargetPrice:     decimal.RequireFromString("1.03"),
		StopLossPrice:   decimal.RequireFromString("0.95"),
		MakerFeePercent: cfg.MakerFeePercent,
		TakerFeePercent: cfg.TakerFeePercent,
		EntryTime:       time.Now().Add(-5 * time.Hour),
	}
	require.NoError(t, store.Save(portfolio.State{
		Cash:      decimal.NewFromInt(9900),
		Positions: []domain.Position{stale},
	}))

	book, err := ledger.New(zap.NewNop(), cfg, store)
	require.NoError(t, err)

	src := &fakeSource{
		prices:   map[string]decimal.Decimal{"XYZ-USDT": decimal.RequireFromString("1.01")},
		priceErr: make(map[string]error),
		candles:  make(map[string][]domain.Candle),
	}
	s := New(zap.NewNop(), cfg, book, src, nil, nil)

	s.ManagePositions(context.Background())

	assert.Empty(t, book.OpenPositions())
	trades := book.ClosedTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, domain.ExitReasonTimeBased, trades[0].ExitReason)
}

func TestManagePositionsIsolatesFailures(t *testing.T) {
	s, book, src := newTestStrategy(t, testCfg())
	ctx := context.Background()

	require.True(t, s.EvaluateBuyOpportunity(ctx, strongOpportunity("AAA-USDT", "AAA", "0.50")))
	require.True(t, s.EvaluateBuyOpportunity(ctx, strongOpportunity("BBB-USDT", "BBB", "0.50")))

	src.priceErr["AAA-USDT"] = errors.New("price fetch failed")
	src.setPrice("BBB-USDT", "0.47") // stop loss for BBB

	s.ManagePositions(ctx)

	positions := book.OpenPositions()
	require.Len(t, positions, 1)
	assert.Equal(t, "AAA-USDT", positions[0].ProductID)
	require.Len(t, book.ClosedTrades(), 1)
	assert.Equal(t, domain.ExitReasonStopLoss, book.ClosedTrades()[0].ExitReason)
}
