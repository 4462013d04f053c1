package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/competitor.txt
	competitorRaw string

	//go:embed template/customer.txt
	customerRaw string

	//go:embed template/market.txt
	marketRaw string

	//go:embed template/pricing.txt
	pricingRaw string

	//go:embed template/experiment.txt
	experimentRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Competitor string
	Customer   string
	Market     string
	Pricing    string
	Experiment string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
// This is safe to call concurrently; the embed is compile-time, and trimming is cheap.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Competitor: strings.TrimSpace(competitorRaw),
		Customer:   strings.TrimSpace(customerRaw),
		Market:     strings.TrimSpace(marketRaw),
		Pricing:    strings.TrimSpace(pricingRaw),
		Experiment: strings.TrimSpace(experimentRaw),
	}
}
