package entitlements

import (
	"github.com/ManuelReschke/TrialFunnel/app/models"
)

type Plan string

const (
	PlanNone  Plan = "none"
	PlanTrial Plan = "trial"
	PlanPaid  Plan = "paid"
)

// ForStatus maps a journey stage onto the plan the frontend should unlock.
func ForStatus(status models.JourneyStatus) Plan {
	switch status {
	case models.JourneyStatusTrialActive:
		return PlanTrial
	case models.JourneyStatusInitialPaid:
		return PlanPaid
	default:
		return PlanNone
	}
}

// HasAccess reports whether the plan unlocks gated content.
func HasAccess(plan Plan) bool {
	return plan == PlanTrial || plan == PlanPaid
}

// CanCheckout reports whether a purchase may still be started for the stage.
func CanCheckout(status models.JourneyStatus) bool {
	return status.IsTrial()
}
