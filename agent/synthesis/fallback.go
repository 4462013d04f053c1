package synthesis

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	contractx "github.com/sirawit-t/agentic-pricing-pipeline/agent/contract"
)

// The model sometimes narrates price moves in prose while leaving the
// structured recommendation array empty. MineRecommendations recovers
// that signal: when the summary is substantial and talks about price,
// each known item name found within 50 characters after an "increase"
// or "decrease" mention yields a conservative ±5% recommendation,
// capped at three.
const (
	fallbackMinSummaryLen = 100
	fallbackLookbehind    = 50
	fallbackMaxRecs       = 3
)

var (
	fallbackUpFactor   = decimal.RequireFromString("1.05")
	fallbackDownFactor = decimal.RequireFromString("0.95")
)

func MineRecommendations(summary string, items []contractx.Item) []contractx.PriceRecommendation {
	if len(summary) <= fallbackMinSummaryLen {
		return nil
	}
	lower := strings.ToLower(summary)
	if !strings.Contains(lower, "price") {
		return nil
	}

	var recs []contractx.PriceRecommendation
	for _, item := range items {
		if len(recs) >= fallbackMaxRecs {
			break
		}
		name := strings.ToLower(strings.TrimSpace(item.Name))
		if name == "" {
			continue
		}
		idx := strings.Index(lower, name)
		if idx < 0 {
			continue
		}

		windowStart := idx - fallbackLookbehind
		if windowStart < 0 {
			windowStart = 0
		}
		window := lower[windowStart:idx]

		var factor decimal.Decimal
		var pct float64
		switch {
		case strings.Contains(window, "increase"):
			factor, pct = fallbackUpFactor, 5.0
		case strings.Contains(window, "decrease"):
			factor, pct = fallbackDownFactor, -5.0
		default:
			continue
		}

		recommended := decimal.NewFromFloat(item.Price).Mul(factor).Round(2)
		direction := "increase"
		if pct < 0 {
			direction = "decrease"
		}
		recs = append(recs, contractx.PriceRecommendation{
			ItemID:           item.ID,
			ItemName:         item.Name,
			CurrentPrice:     item.Price,
			RecommendedPrice: recommended.InexactFloat64(),
			ChangePercentage: pct,
			Rationale:        fmt.Sprintf("Synthesized from summary text suggesting a price %s for %s", direction, item.Name),
		})
	}
	return recs
}
