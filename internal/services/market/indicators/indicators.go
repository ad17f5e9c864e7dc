// Package indicators provides technical analysis primitives for the momentum
// strategy: RSI, VWAP, volume surge detection, price action classification,
// ATR-based dynamic stop loss and the composite trade quality score.
//
// All functions are pure and take candle/price sequences ordered newest-first
// (index 0 is the most recent sample). The RSI and ATR variants here use
// plain averages over the lookback window rather than Wilder smoothing, so
// they are computed directly; the cinar/indicator library is used where its
// semantics match (EMA trend confirmation).
package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/penny/internal/domain"
)

const (
	// DefaultRSIPeriod is the lookback used when no period is specified.
	DefaultRSIPeriod = 14
	// maxTrueRanges caps the ATR lookback for the dynamic stop loss.
	maxTrueRanges = 14
)

var (
	hundred = decimal.NewFromInt(100)

	surgeMinCandles = 5

	stopFallbackFactor = decimal.RequireFromString("0.97")
	stopFloorFactor    = decimal.RequireFromString("0.95")
	stopCeilFactor     = decimal.RequireFromString("0.985")

	momentumPriceWeight = decimal.RequireFromString("1.5")
	momentumVolumeCap   = decimal.NewFromInt(2)
	momentumVolumeHalf  = decimal.RequireFromString("0.5")
	momentumRSIPenalty  = decimal.NewFromInt(1)
	momentumRSIBonus    = decimal.RequireFromString("0.5")
	momentumVWAPBonus   = decimal.RequireFromString("0.3")

	overboughtRSI = decimal.NewFromInt(70)
	oversoldEntry = decimal.NewFromInt(40)

	bullishBodyRatio = decimal.RequireFromString("0.6")
	bearishBodyRatio = decimal.RequireFromString("0.7")
)

// RSI computes the Relative Strength Index over the most recent `period`
// price deltas. Prices are ordered newest-first. The second return value is
// false when fewer than period+1 samples are available.
//
// When every delta is a gain (average loss is zero) the RSI saturates to
// exactly 100.
func RSI(prices []decimal.Decimal, period int) (decimal.Decimal, bool) {
	if period <= 0 {
		period = DefaultRSIPeriod
	}
	if len(prices) < period+1 {
		return decimal.Zero, false
	}

	gains := decimal.Zero
	losses := decimal.Zero
	for i := 0; i < period; i++ {
		delta := prices[i].Sub(prices[i+1])
		if delta.IsPositive() {
			gains = gains.Add(delta)
		} else {
			losses = losses.Add(delta.Neg())
		}
	}

	periodDec := decimal.NewFromInt(int64(period))
	avgGain := gains.Div(periodDec)
	avgLoss := losses.Div(periodDec)

	if avgLoss.IsZero() {
		return hundred, true
	}

	rs := avgGain.Div(avgLoss)
	one := decimal.NewFromInt(1)
	return hundred.Sub(hundred.Div(one.Add(rs))), true
}

// VWAP computes the volume-weighted average price of the given candles.
// Returns false for an empty slice or when total volume is zero.
func VWAP(candles []domain.Candle) (decimal.Decimal, bool) {
	if len(candles) == 0 {
		return decimal.Zero, false
	}

	weighted := decimal.Zero
	totalVolume := decimal.Zero
	for i := range candles {
		weighted = weighted.Add(candles[i].TypicalPrice().Mul(candles[i].Volume))
		totalVolume = totalVolume.Add(candles[i].Volume)
	}

	if totalVolume.IsZero() {
		return decimal.Zero, false
	}

	return weighted.Div(totalVolume), true
}

// VolumeSurgeResult reports whether current volume spikes above its recent
// average and by how much.
type VolumeSurgeResult struct {
	IsSurge bool
	Ratio   decimal.Decimal
}

// VolumeSurge compares the most recent candle's volume against the average
// volume of all older candles in the window. Fewer than 5 candles, or a zero
// historical average, is never a surge.
func VolumeSurge(candles []domain.Candle, threshold decimal.Decimal) VolumeSurgeResult {
	if len(candles) < surgeMinCandles {
		return VolumeSurgeResult{IsSurge: false, Ratio: decimal.Zero}
	}

	older := decimal.Zero
	for i := 1; i < len(candles); i++ {
		older = older.Add(candles[i].Volume)
	}
	avg := older.Div(decimal.NewFromInt(int64(len(candles) - 1)))
	if avg.IsZero() {
		return VolumeSurgeResult{IsSurge: false, Ratio: decimal.Zero}
	}

	ratio := candles[0].Volume.Div(avg)
	return VolumeSurgeResult{
		IsSurge: ratio.GreaterThanOrEqual(threshold),
		Ratio:   ratio,
	}
}

// MomentumScoreInput bundles the signals feeding the composite momentum score.
type MomentumScoreInput struct {
	// PriceChange is the percent price change over the scan window.
	PriceChange decimal.Decimal
	// VolumeRatio is current volume relative to its recent average.
	VolumeRatio decimal.Decimal
	RSI         decimal.Decimal
	RSIKnown    bool
	AboveVWAP   bool
}

// MomentumScore returns the raw weighted momentum composite. Price change is
// the primary driver (x1.5); volume, RSI and VWAP position contribute smaller
// adjustments. The sum is not normalized.
func MomentumScore(in MomentumScoreInput) decimal.Decimal {
	score := in.PriceChange.Mul(momentumPriceWeight)

	one := decimal.NewFromInt(1)
	if in.VolumeRatio.GreaterThan(one) {
		excess := in.VolumeRatio.Sub(one)
		if excess.GreaterThan(momentumVolumeCap) {
			excess = momentumVolumeCap
		}
		score = score.Add(excess.Mul(momentumVolumeHalf))
	}

	if in.RSIKnown {
		switch {
		case in.RSI.GreaterThan(overboughtRSI):
			score = score.Sub(momentumRSIPenalty)
		case in.RSI.LessThan(oversoldEntry) && in.PriceChange.IsPositive():
			score = score.Add(momentumRSIBonus)
		}
	}

	if in.AboveVWAP {
		score = score.Add(momentumVWAPBonus)
	}

	return score
}

// PriceAction classifies the most recent candle shape. With fewer than three
// candles the result is favorable with reason "Insufficient data".
func PriceAction(candles []domain.Candle) (bool, string) {
	if len(candles) < 3 {
		return true, "Insufficient data"
	}

	last := candles[0]
	prev := candles[1]

	bodyRatio := decimal.Zero
	if rng := last.Range(); rng.IsPositive() {
		bodyRatio = last.Body().Div(rng)
	}

	if bodyRatio.GreaterThan(bullishBodyRatio) && last.Close.GreaterThan(prev.Close) {
		return true, "Strong bullish candle"
	}
	if bodyRatio.GreaterThan(bearishBodyRatio) && last.Close.LessThanOrEqual(prev.Close) {
		return false, "Strong bearish candle"
	}

	if candles[0].Low.GreaterThan(candles[1].Low) && candles[1].Low.GreaterThan(candles[2].Low) {
		return true, "Higher lows pattern"
	}

	return true, "Neutral"
}

// DynamicStopLoss derives a stop-loss price from recent volatility: entry
// minus ATR times the multiplier, clamped to between 1.5% and 5% below entry.
// With fewer than five candles it falls back to a flat 3% stop.
func DynamicStopLoss(entryPrice decimal.Decimal, candles []domain.Candle, multiplier decimal.Decimal) decimal.Decimal {
	if len(candles) < 5 {
		return entryPrice.Mul(stopFallbackFactor)
	}

	count := len(candles) - 1
	if count > maxTrueRanges {
		count = maxTrueRanges
	}

	sum := decimal.Zero
	for i := 0; i < count; i++ {
		cur := candles[i]
		prevClose := candles[i+1].Close

		tr := cur.High.Sub(cur.Low)
		if hc := cur.High.Sub(prevClose).Abs(); hc.GreaterThan(tr) {
			tr = hc
		}
		if lc := cur.Low.Sub(prevClose).Abs(); lc.GreaterThan(tr) {
			tr = lc
		}
		sum = sum.Add(tr)
	}
	atr := sum.Div(decimal.NewFromInt(int64(count)))

	stop := entryPrice.Sub(atr.Mul(multiplier))

	floor := entryPrice.Mul(stopFloorFactor)
	ceil := entryPrice.Mul(stopCeilFactor)
	if stop.LessThan(floor) {
		return floor
	}
	if stop.GreaterThan(ceil) {
		return ceil
	}
	return stop
}

// TrendConfirmed reports whether the fast EMA of the closes sits above the
// slow EMA, a supplementary confirmation signal for scan candidates. Closes
// are ordered newest-first. Requires at least slowPeriod samples.
func TrendConfirmed(closes []decimal.Decimal, fastPeriod, slowPeriod int) (bool, error) {
	if fastPeriod <= 0 || slowPeriod <= fastPeriod {
		return false, fmt.Errorf("invalid EMA periods: fast=%d slow=%d", fastPeriod, slowPeriod)
	}
	if len(closes) < slowPeriod {
		return false, fmt.Errorf("not enough data points for EMA%d: need %d, got %d", slowPeriod, slowPeriod, len(closes))
	}

	// cinar indicators stream oldest-first.
	ordered := make([]float64, len(closes))
	for i, c := range closes {
		ordered[len(closes)-1-i], _ = c.Float64()
	}

	fast := lastEMA(ordered, fastPeriod)
	slow := lastEMA(ordered, slowPeriod)

	return fast > slow, nil
}

func lastEMA(closes []float64, period int) float64 {
	ema := trend.NewEmaWithPeriod[float64](period)
	values := helper.ChanToSlice(ema.Compute(helper.SliceToChan(closes)))
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}
