// Package ledger implements the paper-trading book: the authoritative,
// fee-aware accounting of simulated capital, open positions and trade
// history.
package ledger

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/penny/config"
	"github.com/vadiminshakov/penny/internal/domain"
	"github.com/vadiminshakov/penny/internal/storage/portfolio"
	"go.uber.org/zap"
)

// StartingCash is the fixed virtual capital every fresh portfolio begins
// with, and the basis for ROI reporting.
var StartingCash = decimal.NewFromInt(10000)

var (
	// ErrInsufficientFunds rejects a buy larger than available cash.
	ErrInsufficientFunds = errors.New("insufficient cash for buy")
	// ErrPositionNotFound rejects a sell of a position that is not open.
	ErrPositionNotFound = errors.New("position is not open")
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Ledger owns the portfolio aggregate. A single mutex serializes every
// mutation so concurrent buys cannot jointly overspend a stale cash
// balance.
type Ledger struct {
	mu     sync.Mutex
	logger *zap.Logger
	cfg    *config.Config
	store  *portfolio.Store

	cash      decimal.Decimal
	positions []domain.Position
	closed    []domain.ClosedTrade
}

// New creates a ledger, restoring the persisted snapshot when one exists and
// otherwise initializing to starting cash and persisting the fresh state.
func New(logger *zap.Logger, cfg *config.Config, store *portfolio.Store) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &Ledger{
		logger: logger,
		cfg:    cfg,
		store:  store,
		cash:   StartingCash,
	}

	state, err := store.Load()
	if err != nil {
		return nil, errors.Wrap(err, "load portfolio")
	}
	if state != nil {
		l.cash = state.Cash
		l.positions = state.Positions
		l.closed = state.ClosedTrades
		logger.Info("portfolio restored",
			zap.String("cash", l.cash.String()),
			zap.Int("open_positions", len(l.positions)),
			zap.Int("closed_trades", len(l.closed)))
		return l, nil
	}

	if err := l.persistLocked(); err != nil {
		return nil, err
	}
	logger.Info("portfolio initialized", zap.String("cash", l.cash.String()))
	return l, nil
}

// Buy opens a position spending usdAmount of cash at the given price. The
// maker fee is deducted inside the quantity calculation; the full usdAmount
// leaves the cash balance exactly once.
func (l *Ledger) Buy(productID, symbol string, price, usdAmount decimal.Decimal, audit *domain.EntryAudit) (*domain.Position, error) {
	if price.LessThanOrEqual(decimal.Zero) {
		return nil, errors.Errorf("buy price must be positive, got %s", price)
	}
	if usdAmount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.Errorf("buy amount must be positive, got %s", usdAmount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cash.LessThan(usdAmount) {
		l.logger.Info("buy rejected: insufficient funds",
			zap.String("symbol", symbol),
			zap.String("cash", l.cash.String()),
			zap.String("requested", usdAmount.String()))
		return nil, ErrInsufficientFunds
	}

	now := time.Now()
	buyFee := usdAmount.Mul(l.cfg.MakerFeePercent).Div(hundred)
	quantity := usdAmount.Sub(buyFee).Div(price)

	pos := domain.Position{
		ID:              domain.NewPositionID(symbol, now),
		Symbol:          symbol,
		ProductID:       productID,
		EntryPrice:      price,
		Quantity:        quantity,
		Invested:        usdAmount,
		BuyFee:          buyFee,
		TargetPrice:     price.Mul(one.Add(l.cfg.ProfitTargetPercent.Div(hundred))),
		StopLossPrice:   price.Mul(one.Add(l.cfg.StopLossPercent.Div(hundred))),
		MakerFeePercent: l.cfg.MakerFeePercent,
		TakerFeePercent: l.cfg.TakerFeePercent,
		EntryTime:       now,
		Audit:           audit,
	}
	if err := pos.Validate(); err != nil {
		return nil, err
	}

	l.cash = l.cash.Sub(usdAmount)
	l.positions = append(l.positions, pos)

	l.logger.Info("paper buy executed",
		zap.String("symbol", symbol),
		zap.String("product", productID),
		zap.String("price", price.String()),
		zap.String("quantity", quantity.String()),
		zap.String("invested", usdAmount.String()),
		zap.String("buy_fee", buyFee.String()),
		zap.String("target", pos.TargetPrice.String()),
		zap.String("stop_loss", pos.StopLossPrice.String()),
		zap.String("cash", l.cash.String()))

	if err := l.persistLocked(); err != nil {
		return &pos, err
	}
	return &pos, nil
}

// Sell closes the open position at the given price, crediting the proceeds
// net of the taker fee snapshotted at entry. Returns the immutable closed
// trade record.
func (l *Ledger) Sell(positionID string, currentPrice decimal.Decimal, reason string) (*domain.ClosedTrade, error) {
	if currentPrice.LessThanOrEqual(decimal.Zero) {
		return nil, errors.Errorf("sell price must be positive, got %s", currentPrice)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	idx := -1
	for i := range l.positions {
		if l.positions[i].ID == positionID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, ErrPositionNotFound
	}
	pos := l.positions[idx]

	now := time.Now()
	grossValue := pos.Quantity.Mul(currentPrice)
	sellFee := grossValue.Mul(pos.TakerFeePercent).Div(hundred)
	netValue := grossValue.Sub(sellFee)

	grossProfit := grossValue.Sub(pos.Invested)
	totalFees := pos.BuyFee.Add(sellFee)
	netProfit := grossProfit.Sub(totalFees)

	grossPercent := decimal.Zero
	netPercent := decimal.Zero
	if pos.Invested.IsPositive() {
		grossPercent = grossProfit.Div(pos.Invested).Mul(hundred)
		netPercent = netProfit.Div(pos.Invested).Mul(hundred)
	}

	trade := domain.ClosedTrade{
		Position:           pos,
		ExitPrice:          currentPrice,
		ExitTime:           now,
		SellFee:            sellFee,
		TotalFees:          totalFees,
		GrossProfit:        grossProfit,
		GrossProfitPercent: grossPercent,
		NetProfit:          netProfit,
		NetProfitPercent:   netPercent,
		HoldDuration:       now.Sub(pos.EntryTime),
		ExitReason:         reason,
	}

	l.positions = append(l.positions[:idx], l.positions[idx+1:]...)
	l.closed = append(l.closed, trade)
	l.cash = l.cash.Add(netValue)

	l.logger.Info("paper sell executed",
		zap.String("symbol", pos.Symbol),
		zap.String("product", pos.ProductID),
		zap.String("exit_price", currentPrice.String()),
		zap.String("gross_profit", grossProfit.String()),
		zap.String("net_profit", netProfit.String()),
		zap.String("sell_fee", sellFee.String()),
		zap.String("reason", reason),
		zap.Duration("held", trade.HoldDuration),
		zap.String("cash", l.cash.String()))

	if err := l.persistLocked(); err != nil {
		return &trade, err
	}
	return &trade, nil
}

// Cash returns the available balance.
func (l *Ledger) Cash() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash
}

// OpenPositions returns a copy of the open position set.
func (l *Ledger) OpenPositions() []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Position, len(l.positions))
	copy(out, l.positions)
	return out
}

// ClosedTrades returns a copy of the trade history, oldest first.
func (l *Ledger) ClosedTrades() []domain.ClosedTrade {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.ClosedTrade, len(l.closed))
	copy(out, l.closed)
	return out
}

// Summary reports portfolio totals. Open positions are valued at the
// supplied live prices, falling back to entry price for products without a
// quote so a missing price never zeroes the valuation.
func (l *Ledger) Summary(currentPrices map[string]decimal.Decimal) domain.Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	totalValue := l.cash
	for i := range l.positions {
		price := l.positions[i].EntryPrice
		if p, ok := currentPrices[l.positions[i].ProductID]; ok && p.IsPositive() {
			price = p
		}
		totalValue = totalValue.Add(l.positions[i].Quantity.Mul(price))
	}

	wins := 0
	totalGross := decimal.Zero
	totalNet := decimal.Zero
	totalFees := decimal.Zero
	for i := range l.closed {
		if l.closed[i].NetProfit.IsPositive() {
			wins++
		}
		totalGross = totalGross.Add(l.closed[i].GrossProfit)
		totalNet = totalNet.Add(l.closed[i].NetProfit)
		totalFees = totalFees.Add(l.closed[i].TotalFees)
	}

	winRate := decimal.Zero
	if len(l.closed) > 0 {
		winRate = decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(len(l.closed)))).Mul(hundred)
	}

	return domain.Summary{
		Cash:             l.cash,
		TotalValue:       totalValue,
		OpenPositions:    len(l.positions),
		TotalTrades:      len(l.closed),
		Wins:             wins,
		WinRate:          winRate,
		TotalGrossProfit: totalGross,
		TotalNetProfit:   totalNet,
		TotalFees:        totalFees,
		ROIPercent:       totalValue.Sub(StartingCash).Div(StartingCash).Mul(hundred),
	}
}

func (l *Ledger) persistLocked() error {
	state := portfolio.State{
		Cash:         l.cash,
		Positions:    l.positions,
		ClosedTrades: l.closed,
	}
	if err := l.store.Save(state); err != nil {
		return errors.Wrap(err, "persist portfolio")
	}
	return nil
}
