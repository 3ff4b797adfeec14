// Package trial creates and extends time-boxed trial grants per identity.
// Whether a trial is active is always derived from the wall clock against the
// grant's end, never from a background expiry job.
package trial

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/TrialFunnel/app/models"
	"github.com/ManuelReschke/TrialFunnel/app/repository"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/apperror"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/security"
	"github.com/gofiber/fiber/v2/log"
)

const day = 24 * time.Hour

// DefaultExtensionDays is used by Reissue when the operator gives no extension.
const DefaultExtensionDays = 3

// JourneyBinder is the journey side of trial handling.
type JourneyBinder interface {
	FindOrCreateForGrant(ctx context.Context, grant *models.TrialGrant, identityRef string) (*models.CustomerJourney, bool, error)
	RecordGrantReissue(ctx context.Context, journeyID, note string) error
	Reactivate(ctx context.Context, journeyID, note string) (*models.CustomerJourney, error)
}

type Manager struct {
	grants   repository.TrialGrantRepository
	journeys JourneyBinder
	operator *security.OperatorGuard
	tenantID string
	now      func() time.Time
}

// NewManager builds a manager. tenantID is used for grants the operator path
// creates on the fly.
func NewManager(grants repository.TrialGrantRepository, journeys JourneyBinder, operator *security.OperatorGuard, tenantID string) *Manager {
	return &Manager{
		grants:   grants,
		journeys: journeys,
		operator: operator,
		tenantID: tenantID,
		now:      time.Now,
	}
}

// WithClock replaces the wall clock used for grant windows.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// FindOrCreate returns the identity's most recently started grant, creating a
// first grant of durationDays when there is none. Concurrent first touches for
// the same identity race on the (identity, generation) unique key; the losers
// read back the winner's row.
func (m *Manager) FindOrCreate(ctx context.Context, identityRef, tenantID string, durationDays int) (*models.TrialGrant, bool, error) {
	identityRef = strings.TrimSpace(identityRef)
	if identityRef == "" {
		return nil, false, errors.New("trial grant needs an identity")
	}
	if durationDays <= 0 {
		return nil, false, fmt.Errorf("trial duration must be positive, got %d days", durationDays)
	}

	grant, err := m.grants.FindLatestByIdentity(ctx, identityRef)
	if err == nil {
		return grant, false, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, false, err
	}

	now := m.now().UTC()
	created, stored, err := m.grants.CreateIfNotExists(ctx, &models.TrialGrant{
		IdentityRef: identityRef,
		TenantID:    tenantID,
		Generation:  1,
		CampaignID:  models.DefaultCampaignID,
		StartAt:     now,
		EndAt:       now.Add(time.Duration(durationDays) * day),
	})
	if err != nil {
		return nil, false, fmt.Errorf("create trial grant: %w", err)
	}
	if created {
		log.Infof("[Trial] Created grant %s (ends %s)", stored.ID, stored.EndAt.Format(time.RFC3339))
	}
	return stored, created, nil
}

// ReissueResult is the outcome of an operator re-issue.
type ReissueResult struct {
	Grant   *models.TrialGrant
	Journey *models.CustomerJourney
}

// Reissue is the operator override: it moves the identity's grant end to
// now + extensionDays, audits the change on the bound journey and moves an
// expired journey back to TRIAL_ACTIVE. Identities without a grant get one.
func (m *Manager) Reissue(ctx context.Context, operatorKey, identityRef string, extensionDays int) (*ReissueResult, error) {
	if !m.operator.Allows(operatorKey) {
		return nil, fmt.Errorf("trial reissue: %w", apperror.ErrUnauthorized)
	}
	if extensionDays <= 0 {
		extensionDays = DefaultExtensionDays
	}

	grant, _, err := m.FindOrCreate(ctx, identityRef, m.tenantID, extensionDays)
	if err != nil {
		return nil, err
	}

	newEnd := m.now().UTC().Add(time.Duration(extensionDays) * day)
	if !newEnd.After(grant.StartAt) {
		return nil, fmt.Errorf("extend grant %s: %w", grant.ID, models.ErrInvalidTrialWindow)
	}
	if err := m.grants.UpdateEndAt(ctx, grant.ID, newEnd); err != nil {
		return nil, fmt.Errorf("extend grant %s: %w", grant.ID, err)
	}
	grant.EndAt = newEnd

	j, _, err := m.journeys.FindOrCreateForGrant(ctx, grant, identityRef)
	if err != nil {
		return nil, err
	}

	note := fmt.Sprintf("grant extended to %s", newEnd.Format(time.RFC3339))
	if err := m.journeys.RecordGrantReissue(ctx, j.ID, note); err != nil {
		return nil, fmt.Errorf("audit reissue on journey %s: %w", j.ID, err)
	}

	updated, err := m.journeys.Reactivate(ctx, j.ID, "trial re-issued by operator")
	switch {
	case err == nil:
		j = updated
	case errors.Is(err, apperror.ErrIllegalTransition):
		log.Infof("[Trial] Journey %s keeps status %s after reissue", j.ID, j.Status)
	default:
		return nil, err
	}

	log.Infof("[Trial] Grant %s re-issued until %s", grant.ID, newEnd.Format(time.RFC3339))
	return &ReissueResult{Grant: grant, Journey: j}, nil
}
