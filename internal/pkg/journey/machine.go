// Package journey owns the customer journey status field. Every status change
// goes through Machine, which validates it against the transition table and
// writes it with a compare-and-swap on the current status.
package journey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/TrialFunnel/app/models"
	"github.com/ManuelReschke/TrialFunnel/app/repository"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/apperror"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/metrics"
	"github.com/gofiber/fiber/v2/log"
)

const maxSwapAttempts = 5

// ErrContention is returned when the journey kept changing underneath every swap attempt.
var ErrContention = errors.New("journey status changed concurrently")

type Machine struct {
	journeys repository.JourneyRepository
	grants   repository.TrialGrantRepository
	audits   repository.AuditLogRepository
	now      func() time.Time
}

func NewMachine(journeys repository.JourneyRepository, grants repository.TrialGrantRepository, audits repository.AuditLogRepository) *Machine {
	return &Machine{
		journeys: journeys,
		grants:   grants,
		audits:   audits,
		now:      time.Now,
	}
}

// WithClock replaces the wall clock used for trial derivation and audit timestamps.
func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.now = now
	return m
}

// Transition moves the journey to target. Moving to the current status is a
// no-op without an audit row. Moves outside the transition table fail with
// apperror.ErrIllegalTransition and leave the journey untouched.
func (m *Machine) Transition(ctx context.Context, journeyID string, target models.JourneyStatus, note string) (*models.CustomerJourney, error) {
	return m.apply(ctx, journeyID, target, note, legalTransitions)
}

// Reactivate is the operator override that moves an expired journey back to
// TRIAL_ACTIVE after its grant was re-issued. Paid journeys are never downgraded.
func (m *Machine) Reactivate(ctx context.Context, journeyID, note string) (*models.CustomerJourney, error) {
	return m.apply(ctx, journeyID, models.JourneyStatusTrialActive, note, overrideTransitions)
}

func (m *Machine) apply(ctx context.Context, journeyID string, target models.JourneyStatus, note string, table transitionTable) (*models.CustomerJourney, error) {
	if _, ok := models.ParseJourneyStatus(string(target)); !ok {
		return nil, fmt.Errorf("unknown target status %q: %w", target, apperror.ErrIllegalTransition)
	}

	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		j, err := m.journeys.GetByID(ctx, journeyID)
		if err != nil {
			return nil, err
		}
		if j.Status == target {
			return j, nil
		}
		if !table.allows(j.Status, target) {
			return nil, fmt.Errorf("journey %s %s -> %s: %w", journeyID, j.Status, target, apperror.ErrIllegalTransition)
		}

		from := j.Status
		swapped, err := m.journeys.CompareAndSwapStatus(ctx, journeyID, from, target, &models.AuditLog{
			Action:    models.AuditActionStateChange,
			ToStatus:  target,
			Note:      note,
			Timestamp: m.now().UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("journey %s %s -> %s: %w", journeyID, from, target, err)
		}
		if swapped {
			metrics.JourneyTransitionsTotal.WithLabelValues(string(target)).Inc()
			log.Infof("[Journey] %s: %s -> %s (%s)", journeyID, from, target, note)
			j.Status = target
			return j, nil
		}
		log.Debugf("[Journey] %s: lost status swap from %s, retrying", journeyID, from)
	}
	return nil, fmt.Errorf("journey %s: %w", journeyID, ErrContention)
}

// FindOrCreateForGrant returns the journey bound to grant, creating it in
// TRIAL_ACTIVE when the grant has none yet. created is true only for the caller
// whose insert committed.
func (m *Machine) FindOrCreateForGrant(ctx context.Context, grant *models.TrialGrant, identityRef string) (*models.CustomerJourney, bool, error) {
	existing, err := m.journeys.FindByTrialGrantID(ctx, grant.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, false, err
	}

	grantID := grant.ID
	created, stored, err := m.journeys.CreateIfNotExists(ctx, &models.CustomerJourney{
		IdentityRef:  identityRef,
		TenantID:     grant.TenantID,
		Status:       models.JourneyStatusTrialActive,
		TrialGrantID: &grantID,
	}, &models.AuditLog{
		Action:    models.AuditActionStateChange,
		ToStatus:  models.JourneyStatusTrialActive,
		Note:      "journey created",
		Timestamp: m.now().UTC(),
	})
	if err != nil {
		return nil, false, fmt.Errorf("create journey for grant %s: %w", grant.ID, err)
	}
	if created {
		log.Infof("[Journey] Created journey %s for grant %s", stored.ID, grant.ID)
	}
	return stored, created, nil
}

// RecordGrantReissue appends the audit entry for an operator re-issue of the
// journey's grant.
func (m *Machine) RecordGrantReissue(ctx context.Context, journeyID, note string) error {
	return m.audits.Append(ctx, &models.AuditLog{
		JourneyID: journeyID,
		Action:    models.AuditActionGrantReissued,
		Note:      note,
		Timestamp: m.now().UTC(),
	})
}

// AuditTrail returns the journey's audit rows, oldest first.
func (m *Machine) AuditTrail(ctx context.Context, journeyID string) ([]models.AuditLog, error) {
	if _, err := m.journeys.GetByID(ctx, journeyID); err != nil {
		return nil, err
	}
	return m.audits.ListByJourney(ctx, journeyID)
}
