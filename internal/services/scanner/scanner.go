// Package scanner finds short-term momentum candidates among low-priced
// coins. Each cycle it filters the exchange's markets down to eligible
// products, measures recent momentum concurrently and returns ranked
// opportunities for the strategy to evaluate.
package scanner

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/penny/config"
	"github.com/vadiminshakov/penny/internal/domain"
	"github.com/vadiminshakov/penny/internal/services/market/indicators"
	"github.com/vadiminshakov/penny/internal/services/pricefeed"
	"go.uber.org/zap"
)

const (
	rsiPeriod  = 14
	minCandles = 3

	emaFastPeriod = 9
	emaSlowPeriod = 21
)

var (
	hundred = decimal.NewFromInt(100)
	// surgeThreshold is the volume ratio treated as a surge.
	surgeThreshold = decimal.NewFromInt(2)
	// momentumTieBand is the momentum score spread below which candidates are
	// considered equal and ranked by volatility instead.
	momentumTieBand = decimal.RequireFromString("0.5")
)

// Scanner scans exchange markets for momentum entry candidates.
type Scanner struct {
	logger *zap.Logger
	cfg    *config.Config
	source pricefeed.Source
	feed   *pricefeed.Feed
}

// New creates a scanner. feed may be nil; the scanner then runs in pure
// pull mode with identical results.
func New(logger *zap.Logger, cfg *config.Config, source pricefeed.Source, feed *pricefeed.Feed) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{logger: logger, cfg: cfg, source: source, feed: feed}
}

// Scan returns momentum opportunities sorted best-first. Failures on
// individual products are logged and skipped; a scan never fails as a whole,
// it returns nil when nothing useful could be gathered.
func (s *Scanner) Scan(ctx context.Context) []domain.Opportunity {
	products, err := s.source.GetProducts(ctx)
	if err != nil {
		s.logger.Warn("failed to list products, skipping scan cycle", zap.Error(err))
		return nil
	}

	eligible := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if p.Tradable && p.Quote == s.cfg.QuoteCurrency {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) == 0 {
		return nil
	}

	workers := s.cfg.ScanWorkers
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan domain.Product)
	var mu sync.Mutex
	var opportunities []domain.Opportunity
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for product := range jobs {
				opp, err := s.evaluate(ctx, product)
				if err != nil {
					s.logger.Debug("candidate evaluation failed",
						zap.String("product", product.ID), zap.Error(err))
					continue
				}
				if opp == nil {
					continue
				}
				mu.Lock()
				opportunities = append(opportunities, *opp)
				mu.Unlock()
			}
		}()
	}

	for _, p := range eligible {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil
		case jobs <- p:
		}
	}
	close(jobs)
	wg.Wait()

	sortOpportunities(opportunities)

	s.logger.Info("scan cycle finished",
		zap.Int("markets", len(eligible)),
		zap.Int("opportunities", len(opportunities)))

	return opportunities
}

// evaluate measures one product. A nil opportunity with nil error means the
// product is simply not a candidate right now.
func (s *Scanner) evaluate(ctx context.Context, product domain.Product) (*domain.Opportunity, error) {
	stats, err := s.source.GetProductStats(ctx, product.ID)
	if err != nil {
		return nil, err
	}

	price := s.currentPrice(ctx, product.ID, stats)
	if price.LessThanOrEqual(decimal.Zero) {
		return nil, nil
	}
	if price.GreaterThan(s.cfg.MaxPrice) {
		return nil, nil
	}
	if stats.QuoteVolume.LessThan(s.cfg.MinVolume24h) {
		return nil, nil
	}

	limit := int(s.cfg.MomentumWindow / s.cfg.CandleGranularity)
	if limit < minCandles {
		limit = minCandles
	}

	candles, err := s.source.GetCandles(ctx, product.ID, s.cfg.CandleGranularity, limit)
	if err != nil {
		return nil, err
	}
	if len(candles) < minCandles {
		return nil, nil
	}

	oldest := candles[len(candles)-1].Close
	if oldest.LessThanOrEqual(decimal.Zero) {
		return nil, nil
	}
	momentum := price.Sub(oldest).Div(oldest).Mul(hundred)

	totalRange := decimal.Zero
	closes := make([]decimal.Decimal, len(candles))
	for i := range candles {
		totalRange = totalRange.Add(candles[i].Range())
		closes[i] = candles[i].Close
	}
	volatility := totalRange.Div(decimal.NewFromInt(int64(len(candles))))

	rsi, rsiKnown := indicators.RSI(closes, rsiPeriod)
	surge := indicators.VolumeSurge(candles, surgeThreshold)

	aboveVWAP := false
	if vwap, ok := indicators.VWAP(candles); ok {
		aboveVWAP = price.GreaterThan(vwap)
	}

	favorable, reason := indicators.PriceAction(candles)

	trendConfirmed := false
	if confirmed, err := indicators.TrendConfirmed(closes, emaFastPeriod, emaSlowPeriod); err == nil {
		trendConfirmed = confirmed
	}

	// The threshold gate runs on the composite, not raw price change, so a
	// modest move backed by a volume surge or healthy RSI still qualifies.
	score := indicators.MomentumScore(indicators.MomentumScoreInput{
		PriceChange: momentum,
		VolumeRatio: surge.Ratio,
		RSI:         rsi,
		RSIKnown:    rsiKnown,
		AboveVWAP:   aboveVWAP,
	})
	if score.LessThan(s.cfg.MomentumThreshold) {
		return nil, nil
	}

	return &domain.Opportunity{
		Symbol:        product.Symbol,
		ProductID:     product.ID,
		Price:         price,
		Momentum:      momentum,
		MomentumScore: score,
		Volatility:    volatility,
		Volume24h:     stats.QuoteVolume,
		Indicators: domain.OpportunitySignals{
			RSI:                  rsi,
			RSIKnown:             rsiKnown,
			VolumeRatio:          surge.Ratio,
			VolumeSurge:          surge.IsSurge,
			AboveVWAP:            aboveVWAP,
			PriceActionFavorable: favorable,
			PriceActionReason:    reason,
			TrendConfirmed:       trendConfirmed,
		},
		Timestamp: time.Now(),
	}, nil
}

// currentPrice prefers a fresh push-feed quote and falls back to the REST
// snapshot, so pull mode sees the same decision inputs when the stream is
// down.
func (s *Scanner) currentPrice(ctx context.Context, productID string, stats domain.ProductStats) decimal.Decimal {
	if price, ok := s.feed.LastPrice(productID); ok {
		return price
	}
	if stats.Last.IsPositive() {
		return stats.Last
	}
	price, err := s.source.GetCurrentPrice(ctx, productID)
	if err != nil {
		return decimal.Zero
	}
	return price
}

// sortOpportunities ranks candidates by momentum score descending, then
// reorders each tie band by volatility, higher first, because volatility
// proxies the size of the short-term move. Bands are anchored at the best
// score in the band so the final order does not depend on the input
// permutation.
func sortOpportunities(opps []domain.Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].MomentumScore.GreaterThan(opps[j].MomentumScore)
	})

	for start := 0; start < len(opps); {
		end := start + 1
		for end < len(opps) && opps[start].MomentumScore.Sub(opps[end].MomentumScore).LessThan(momentumTieBand) {
			end++
		}
		band := opps[start:end]
		sort.SliceStable(band, func(i, j int) bool {
			return band[i].Volatility.GreaterThan(band[j].Volatility)
		})
		start = end
	}
}
