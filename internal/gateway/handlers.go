package gateway

import (
	"github.com/thrivecoach/safegate/internal/triage"
)

// handlerStrategy holds the category-specific generation parameters. The
// prompt template itself lives in the prompts package; the strategy decides
// budget and whether streaming to the caller is allowed before review.
type handlerStrategy struct {
	// category this strategy serves.
	category triage.Category

	// streamable allows forwarding fragments to the caller as they arrive.
	// Refusal-style answers are short and always delivered post-review.
	streamable bool
}

// strategies covers every non-terminal category. Terminal categories are
// dispatched to the fixed-response store before strategy lookup.
var strategies = map[triage.Category]handlerStrategy{
	triage.CategoryGeneralWellness: {
		category:   triage.CategoryGeneralWellness,
		streamable: true,
	},
	triage.CategoryMentalHealthNonCrisis: {
		category:   triage.CategoryMentalHealthNonCrisis,
		streamable: true,
	},
	triage.CategoryMedicalNonUrgent: {
		category:   triage.CategoryMedicalNonUrgent,
		streamable: true,
	},
	triage.CategoryModerateRiskProtocol: {
		category:   triage.CategoryModerateRiskProtocol,
		streamable: true,
	},
	triage.CategoryExtremeRiskProtocol: {
		category:   triage.CategoryExtremeRiskProtocol,
		streamable: false,
	},
}

// strategyFor returns the handler strategy for a non-terminal category.
func strategyFor(category triage.Category) handlerStrategy {
	if s, ok := strategies[category]; ok {
		return s
	}
	return strategies[triage.CategoryGeneralWellness]
}
