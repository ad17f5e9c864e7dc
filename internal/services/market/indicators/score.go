package indicators

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/penny/internal/domain"
)

// TradeScore is the composite quality assessment of a scan candidate.
type TradeScore struct {
	// Score is additive, out of 100.
	Score int
	// Grade summarizes the score: A >= 80, B >= 65, C >= 50, D >= 35, else F.
	Grade string
	// Reasons lists the human-readable justification for every contribution
	// that actually triggered, positive or negative.
	Reasons []string
}

var (
	momentumTierStrong   = decimal.NewFromInt(3)
	momentumTierGood     = decimal.NewFromInt(2)
	momentumTierModerate = decimal.RequireFromString("1.5")

	volumeTierSurge    = decimal.NewFromInt(3)
	volumeTierAbove    = decimal.NewFromInt(2)
	volumeTierSlight   = decimal.RequireFromString("1.5")

	rsiOversold     = decimal.NewFromInt(30)
	rsiHealthyLow   = decimal.NewFromInt(40)
	rsiHealthyHigh  = decimal.NewFromInt(60)
)

// ScoreTrade grades an opportunity from its momentum, volume, RSI and price
// action signals.
func ScoreTrade(opp domain.Opportunity, signals domain.OpportunitySignals) TradeScore {
	score := 0
	var reasons []string

	switch {
	case opp.Momentum.GreaterThanOrEqual(momentumTierStrong):
		score += 40
		reasons = append(reasons, fmt.Sprintf("Strong momentum: +%s%%", opp.Momentum.StringFixed(2)))
	case opp.Momentum.GreaterThanOrEqual(momentumTierGood):
		score += 25
		reasons = append(reasons, fmt.Sprintf("Good momentum: +%s%%", opp.Momentum.StringFixed(2)))
	case opp.Momentum.GreaterThanOrEqual(momentumTierModerate):
		score += 10
		reasons = append(reasons, fmt.Sprintf("Moderate momentum: +%s%%", opp.Momentum.StringFixed(2)))
	}

	ratio := signals.VolumeRatio
	switch {
	case ratio.GreaterThanOrEqual(volumeTierSurge):
		score += 25
		reasons = append(reasons, fmt.Sprintf("Volume surge: %sx average", ratio.StringFixed(1)))
	case ratio.GreaterThanOrEqual(volumeTierAbove):
		score += 15
		reasons = append(reasons, fmt.Sprintf("Volume above average: %sx", ratio.StringFixed(1)))
	case ratio.GreaterThanOrEqual(volumeTierSlight):
		score += 5
		reasons = append(reasons, fmt.Sprintf("Slight volume increase: %sx", ratio.StringFixed(1)))
	}

	if signals.RSIKnown {
		rsi := signals.RSI
		switch {
		case rsi.GreaterThan(overboughtRSI):
			score -= 10
			reasons = append(reasons, fmt.Sprintf("Overbought RSI: %s", rsi.StringFixed(1)))
		case rsi.LessThan(rsiOversold):
			score += 15
			reasons = append(reasons, fmt.Sprintf("Oversold RSI: %s, bounce potential", rsi.StringFixed(1)))
		case rsi.GreaterThanOrEqual(rsiHealthyLow) && rsi.LessThanOrEqual(rsiHealthyHigh):
			score += 20
			reasons = append(reasons, fmt.Sprintf("Healthy RSI: %s", rsi.StringFixed(1)))
		default:
			score += 10
			reasons = append(reasons, fmt.Sprintf("Acceptable RSI: %s", rsi.StringFixed(1)))
		}
	}

	if signals.PriceActionFavorable {
		score += 15
		reasons = append(reasons, fmt.Sprintf("Favorable price action: %s", signals.PriceActionReason))
	}

	return TradeScore{
		Score:   score,
		Grade:   gradeFor(score),
		Reasons: reasons,
	}
}

func gradeFor(score int) string {
	switch {
	case score >= 80:
		return "A"
	case score >= 65:
		return "B"
	case score >= 50:
		return "C"
	case score >= 35:
		return "D"
	default:
		return "F"
	}
}
