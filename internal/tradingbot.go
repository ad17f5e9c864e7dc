package internal

import (
	"context"
	"time"

	"github.com/vadiminshakov/penny/config"
	"github.com/vadiminshakov/penny/internal/domain"
	"go.uber.org/zap"
)

// OpportunityScanner finds ranked momentum candidates.
type OpportunityScanner interface {
	Scan(ctx context.Context) []domain.Opportunity
}

// PositionStrategy decides entries and manages exits.
type PositionStrategy interface {
	EvaluateBuyOpportunity(ctx context.Context, opp domain.Opportunity) bool
	ManagePositions(ctx context.Context)
}

// TradingBot drives the trading cycle: exit evaluation for open positions,
// then a market scan, then entry evaluation of the top candidates.
type TradingBot struct {
	logger   *zap.Logger
	cfg      *config.Config
	scanner  OpportunityScanner
	strategy PositionStrategy
}

// NewTradingBot creates a bot instance.
func NewTradingBot(logger *zap.Logger, cfg *config.Config, scanner OpportunityScanner, strategy PositionStrategy) *TradingBot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TradingBot{logger: logger, cfg: cfg, scanner: scanner, strategy: strategy}
}

// Run executes trading cycles on the configured interval until ctx is
// cancelled. Cancellation is cooperative: an in-flight cycle finishes before
// the loop stops.
func (b *TradingBot) Run(ctx context.Context) error {
	b.logger.Info("starting trading loop",
		zap.Duration("scan_interval", b.cfg.ScanInterval),
		zap.String("mode", string(b.cfg.Mode)))

	ticker := time.NewTicker(b.cfg.ScanInterval)
	defer ticker.Stop()

	b.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("context done, stopping trading loop")
			return ctx.Err()
		case <-ticker.C:
			b.cycle(ctx)
		}
	}
}

// cycle runs one iteration. Exits are always evaluated before entries so
// freed slots and cash are available to new candidates in the same cycle.
func (b *TradingBot) cycle(ctx context.Context) {
	started := time.Now()

	b.strategy.ManagePositions(ctx)

	opportunities := b.scanner.Scan(ctx)

	entries := 0
	for i, opp := range opportunities {
		if i >= b.cfg.TopCandidates {
			break
		}
		if b.strategy.EvaluateBuyOpportunity(ctx, opp) {
			entries++
		}
	}

	b.logger.Debug("trading cycle finished",
		zap.Int("opportunities", len(opportunities)),
		zap.Int("entries", entries),
		zap.Duration("took", time.Since(started)))
}
