package journey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/TrialFunnel/app/models"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/apperror"
	"github.com/gofiber/fiber/v2/log"
)

// ResolveInput selects the journey to resolve, by id or by the identity's most
// recent journey. JourneyID wins when both are set.
type ResolveInput struct {
	JourneyID   string
	IdentityRef string
}

// Snapshot is what clients polling a journey get back.
type Snapshot struct {
	JourneyID  string               `json:"journeyId"`
	Status     models.JourneyStatus `json:"status"`
	TrialEndAt *time.Time           `json:"trialEndAt"`
}

// Resolve derives the journey status from the wall clock while it is in a
// trial state and persists the derived value only when it differs. Payment
// derived states are returned as stored.
func (m *Machine) Resolve(ctx context.Context, in ResolveInput) (*Snapshot, error) {
	j, err := m.load(ctx, in)
	if err != nil {
		return nil, err
	}
	if j.TrialGrantID == nil {
		return &Snapshot{JourneyID: j.ID, Status: j.Status}, nil
	}

	grant, err := m.grants.GetByID(ctx, *j.TrialGrantID)
	if err != nil {
		return nil, fmt.Errorf("grant of journey %s: %w", j.ID, err)
	}
	endAt := grant.EndAt
	snap := &Snapshot{JourneyID: j.ID, Status: j.Status, TrialEndAt: &endAt}

	if !j.Status.IsTrial() {
		return snap, nil
	}

	derived := models.JourneyStatusTrialExpired
	if grant.IsActiveAt(m.now()) {
		derived = models.JourneyStatusTrialActive
	}
	// Expiry only moves forward on this path; an extended grant reaches the
	// journey through Reactivate.
	if derived == j.Status || derived == models.JourneyStatusTrialActive {
		return snap, nil
	}

	updated, err := m.Transition(ctx, j.ID, derived, "trial window elapsed")
	if err != nil {
		if !errors.Is(err, apperror.ErrIllegalTransition) {
			return nil, err
		}
		// A payment landed between load and swap.
		current, rerr := m.journeys.GetByID(ctx, j.ID)
		if rerr != nil {
			return nil, rerr
		}
		log.Infof("[Journey] %s: expiry skipped, status is now %s", j.ID, current.Status)
		snap.Status = current.Status
		return snap, nil
	}
	snap.Status = updated.Status
	return snap, nil
}

func (m *Machine) load(ctx context.Context, in ResolveInput) (*models.CustomerJourney, error) {
	switch {
	case in.JourneyID != "":
		return m.journeys.GetByID(ctx, in.JourneyID)
	case in.IdentityRef != "":
		return m.journeys.FindLatestByIdentity(ctx, in.IdentityRef)
	default:
		return nil, fmt.Errorf("resolve needs a journey id or identity: %w", apperror.ErrNotFound)
	}
}
