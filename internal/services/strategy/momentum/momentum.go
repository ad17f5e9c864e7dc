// Package momentum implements the trading policy: when to enter a scanned
// opportunity and when to exit an open position.
package momentum

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/penny/config"
	"github.com/vadiminshakov/penny/internal/domain"
	"github.com/vadiminshakov/penny/internal/services/ledger"
	"github.com/vadiminshakov/penny/internal/services/market/indicators"
	"github.com/vadiminshakov/penny/internal/services/pricefeed"
	"github.com/vadiminshakov/penny/internal/storage/decisions"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// recentCandleLimit is the short window fetched for the momentum-fade check.
const recentCandleLimit = 3

// Strategy owns the entry gates and the exit state machine. It is not safe
// for concurrent use; the bot drives it from a single cycle loop, exits
// before entries.
type Strategy struct {
	logger  *zap.Logger
	cfg     *config.Config
	book    *ledger.Ledger
	source  pricefeed.Source
	feed    *pricefeed.Feed
	journal *decisions.Journal

	// peaks tracks the highest price seen per product since trailing-profit
	// mode engaged. Transient by design: losing it on restart only costs one
	// extra profit-target evaluation.
	peaks map[string]decimal.Decimal
}

// New creates a strategy. feed and journal may be nil.
func New(logger *zap.Logger, cfg *config.Config, book *ledger.Ledger, source pricefeed.Source, feed *pricefeed.Feed, journal *decisions.Journal) *Strategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Strategy{
		logger:  logger,
		cfg:     cfg,
		book:    book,
		source:  source,
		feed:    feed,
		journal: journal,
		peaks:   make(map[string]decimal.Decimal),
	}
}

// EvaluateBuyOpportunity runs the entry gates against one scanned
// opportunity and places a paper buy when all of them pass. Returns true iff
// a buy was executed.
func (s *Strategy) EvaluateBuyOpportunity(ctx context.Context, opp domain.Opportunity) bool {
	score := indicators.ScoreTrade(opp, opp.Indicators)

	if s.book.Cash().LessThan(s.cfg.PositionSize) {
		s.skip(opp, score, "insufficient cash for position size")
		return false
	}

	open := s.book.OpenPositions()
	if len(open) >= s.cfg.MaxPositions {
		s.skip(opp, score, "position limit reached")
		return false
	}
	for i := range open {
		if open[i].ProductID == opp.ProductID {
			s.skip(opp, score, "position already open for this product")
			return false
		}
	}

	if score.Grade == "F" {
		s.skip(opp, score, "trade grade too low")
		return false
	}

	if !s.cfg.Mode.CanExecute() {
		// The decision pipeline still ran for observability; only the order
		// is withheld. Live execution is deliberately unimplemented.
		s.skip(opp, score, "execution disabled outside paper mode")
		return false
	}

	audit := &domain.EntryAudit{
		Score:               score.Score,
		Grade:               score.Grade,
		Reasons:             score.Reasons,
		Momentum:            opp.Momentum,
		VolumeRatio:         opp.Indicators.VolumeRatio,
		RSI:                 opp.Indicators.RSI,
		ProfitTargetPercent: s.cfg.ProfitTargetPercent,
		StopLossPercent:     s.cfg.StopLossPercent,
	}

	pos, err := s.book.Buy(opp.ProductID, opp.Symbol, opp.Price, s.cfg.PositionSize, audit)
	if err != nil {
		s.logger.Error("buy failed",
			zap.String("symbol", opp.Symbol),
			zap.String("product", opp.ProductID),
			zap.Error(err))
		return false
	}

	s.logger.Info("entry executed",
		zap.String("symbol", opp.Symbol),
		zap.String("grade", score.Grade),
		zap.Int("score", score.Score),
		zap.String("momentum", opp.Momentum.StringFixed(2)),
		zap.String("price", opp.Price.String()))

	s.record(decisions.Event{
		Kind:      decisions.KindEntry,
		Symbol:    opp.Symbol,
		ProductID: opp.ProductID,
		Price:     pos.EntryPrice,
		Reason:    "entry gates passed",
		Score:     score.Score,
		Grade:     score.Grade,
		Details:   score.Reasons,
	})
	return true
}

// ManagePositions runs the exit state machine over every open position.
// A failure on one position is logged and never stops the sweep.
func (s *Strategy) ManagePositions(ctx context.Context) {
	for _, pos := range s.book.OpenPositions() {
		if err := s.evaluatePosition(ctx, pos); err != nil {
			s.logger.Warn("position evaluation failed",
				zap.String("symbol", pos.Symbol),
				zap.String("product", pos.ProductID),
				zap.Error(err))
		}
	}
}

func (s *Strategy) evaluatePosition(ctx context.Context, pos domain.Position) error {
	price, err := s.currentPrice(ctx, pos.ProductID)
	if err != nil {
		return err
	}

	profit := pos.ProfitPercent(price)

	if price.LessThanOrEqual(pos.StopLossPrice) {
		return s.sell(pos, price, domain.ExitReasonStopLoss)
	}

	if time.Since(pos.EntryTime) > s.cfg.MaxHoldDuration && profit.IsPositive() {
		return s.sell(pos, price, domain.ExitReasonTimeBased)
	}

	if peak, engaged := s.peaks[pos.ProductID]; engaged {
		return s.manageTrailing(ctx, pos, price, peak)
	}

	if profit.GreaterThanOrEqual(s.cfg.ProfitTargetPercent) {
		if !s.cfg.TrailingProfitEnabled {
			return s.sell(pos, price, domain.ExitReasonProfitTarget)
		}
		// First crossing: seed the peak and ride the winner.
		s.peaks[pos.ProductID] = price
		s.logger.Info("trailing profit engaged",
			zap.String("symbol", pos.Symbol),
			zap.String("peak", price.String()),
			zap.String("profit_percent", profit.StringFixed(2)))
		return nil
	}

	progress := decimal.Zero
	if s.cfg.ProfitTargetPercent.IsPositive() {
		progress = profit.Div(s.cfg.ProfitTargetPercent)
	}
	s.logger.Debug("holding",
		zap.String("symbol", pos.Symbol),
		zap.String("profit_percent", profit.StringFixed(2)),
		zap.String("target_progress", progress.StringFixed(2)))
	return nil
}

// manageTrailing handles a position whose trailing-profit mode has engaged:
// ride new highs, stop out on a configured retreat from the peak, or bail
// early when momentum visibly fades inside the trailing band.
func (s *Strategy) manageTrailing(ctx context.Context, pos domain.Position, price, peak decimal.Decimal) error {
	if price.GreaterThan(peak) {
		s.peaks[pos.ProductID] = price
		s.logger.Debug("new peak while trailing",
			zap.String("symbol", pos.Symbol),
			zap.String("peak", price.String()))
		return nil
	}

	drop := peak.Sub(price).Div(peak).Mul(hundred)
	if drop.GreaterThanOrEqual(s.cfg.TrailingStopPercent) {
		return s.sell(pos, price, domain.ExitReasonTrailingStop)
	}

	fadeFloor := s.cfg.TrailingStopPercent.Mul(s.cfg.FadeDropFraction)
	if drop.GreaterThan(fadeFloor) && s.momentumFading(ctx, pos.ProductID) {
		return s.sell(pos, price, domain.ExitReasonMomentumFade)
	}

	return nil
}

// momentumFading checks the two most recent candle closes for deceleration.
// Fetch problems are swallowed: no signal means keep holding.
func (s *Strategy) momentumFading(ctx context.Context, productID string) bool {
	candles, err := s.source.GetCandles(ctx, productID, s.cfg.CandleGranularity, recentCandleLimit)
	if err != nil || len(candles) < 2 {
		return false
	}
	prev := candles[1].Close
	if !prev.IsPositive() {
		return false
	}
	recent := candles[0].Close.Sub(prev).Div(prev).Mul(hundred)
	return recent.LessThan(s.cfg.MinMomentumToRide.Neg())
}

func (s *Strategy) sell(pos domain.Position, price decimal.Decimal, reason string) error {
	trade, err := s.book.Sell(pos.ID, price, reason)
	delete(s.peaks, pos.ProductID)
	if err != nil {
		return err
	}

	s.logger.Info("exit executed",
		zap.String("symbol", pos.Symbol),
		zap.String("reason", reason),
		zap.String("exit_price", price.String()),
		zap.String("net_profit_percent", trade.NetProfitPercent.StringFixed(2)))

	s.record(decisions.Event{
		Kind:          decisions.KindExit,
		Symbol:        pos.Symbol,
		ProductID:     pos.ProductID,
		Price:         price,
		Reason:        reason,
		ProfitPercent: trade.NetProfitPercent,
	})
	return nil
}

func (s *Strategy) skip(opp domain.Opportunity, score indicators.TradeScore, reason string) {
	s.logger.Info("entry skipped",
		zap.String("symbol", opp.Symbol),
		zap.String("reason", reason),
		zap.String("grade", score.Grade),
		zap.Int("score", score.Score))

	s.record(decisions.Event{
		Kind:      decisions.KindSkip,
		Symbol:    opp.Symbol,
		ProductID: opp.ProductID,
		Price:     opp.Price,
		Reason:    reason,
		Score:     score.Score,
		Grade:     score.Grade,
		Details:   score.Reasons,
	})
}

func (s *Strategy) record(event decisions.Event) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Save(event); err != nil {
		s.logger.Warn("failed to journal decision", zap.Error(err))
	}
}

func (s *Strategy) currentPrice(ctx context.Context, productID string) (decimal.Decimal, error) {
	if price, ok := s.feed.LastPrice(productID); ok {
		return price, nil
	}
	return s.source.GetCurrentPrice(ctx, productID)
}
