package journey

import "github.com/ManuelReschke/TrialFunnel/app/models"

type transitionTable map[models.JourneyStatus][]models.JourneyStatus

// legalTransitions is the forward-only table used by Transition and Resolve.
// Expiry is monotonic here; only the operator override may leave TRIAL_EXPIRED
// for TRIAL_ACTIVE.
var legalTransitions = transitionTable{
	models.JourneyStatusTrialActive: {
		models.JourneyStatusTrialExpired,
		models.JourneyStatusInitialPaid,
	},
	models.JourneyStatusTrialExpired: {
		models.JourneyStatusInitialPaid,
	},
	models.JourneyStatusInitialPaid: {},
}

// overrideTransitions is used by Reactivate after an operator re-issued a grant.
var overrideTransitions = transitionTable{
	models.JourneyStatusTrialExpired: {
		models.JourneyStatusTrialActive,
	},
}

func (t transitionTable) allows(from, to models.JourneyStatus) bool {
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransition reports whether from -> to is in the regular transition table.
func CanTransition(from, to models.JourneyStatus) bool {
	return legalTransitions.allows(from, to)
}
