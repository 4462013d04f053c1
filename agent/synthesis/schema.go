package synthesis

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	contractx "github.com/sirawit-t/agentic-pricing-pipeline/agent/contract"
)

// recommendationSchema is the contract one model-provided recommendation
// entry must satisfy before it is trusted.
const recommendationSchema = `{
	"type": "object",
	"required": ["item_id", "item_name", "current_price", "recommended_price", "change_percentage", "rationale"],
	"properties": {
		"item_id": {"type": "integer"},
		"item_name": {"type": "string", "minLength": 1},
		"current_price": {"type": "number", "minimum": 0},
		"recommended_price": {"type": "number", "minimum": 0},
		"change_percentage": {"type": "number"},
		"rationale": {"type": "string"}
	}
}`

// validRecommendations keeps the entries that satisfy the schema and
// decodes them; invalid entries are dropped, not fatal.
func validRecommendations(entries []json.RawMessage) ([]contractx.PriceRecommendation, []error) {
	schemaLoader := gojsonschema.NewStringLoader(recommendationSchema)

	var recs []contractx.PriceRecommendation
	var rejected []error
	for i, entry := range entries {
		result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(entry))
		if err != nil {
			rejected = append(rejected, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		if !result.Valid() {
			desc := "invalid"
			if errs := result.Errors(); len(errs) > 0 {
				desc = errs[0].String()
			}
			rejected = append(rejected, fmt.Errorf("entry %d: %s", i, desc))
			continue
		}

		var rec contractx.PriceRecommendation
		if err := json.Unmarshal(entry, &rec); err != nil {
			rejected = append(rejected, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		recs = append(recs, rec)
	}
	return recs, rejected
}
