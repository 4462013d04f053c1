package contract

import "encoding/json"

// DegradedSections builds the sections payload for a degraded report:
// every named section of the kind carries {"error": msg}, so the fan-in
// stage always has non-nil sections to read.
func DegradedSections(kind ReportKind, msg string) Sections {
	raw, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		raw = json.RawMessage(`{"error": "unknown"}`)
	}

	switch kind {
	case ReportKindCompetitor:
		return Sections{Competitor: &CompetitorSections{Insights: raw, Positioning: raw}}
	case ReportKindCustomer:
		return Sections{Customer: &CustomerSections{Demographics: raw, Events: raw, Trends: raw}}
	case ReportKindMarket:
		return Sections{Market: &MarketSections{Trends: raw, Opportunities: raw, Threats: raw}}
	case ReportKindPricing:
		return Sections{Pricing: &PricingSections{Recommendations: []PriceRecommendation{}, Implementation: raw}}
	default:
		return Sections{}
	}
}
