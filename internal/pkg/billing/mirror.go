package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuelReschke/TrialFunnel/app/models"
	"github.com/ManuelReschke/TrialFunnel/app/repository"
	"github.com/gofiber/fiber/v2/log"
)

// Mirror copies provider subscription state onto local rows. Local status is
// never computed, only copied.
type Mirror struct {
	repo repository.SubscriptionRepository
}

func NewMirror(repo repository.SubscriptionRepository) *Mirror {
	return &Mirror{repo: repo}
}

// Apply writes snap onto the row with the same external id. It reports false,
// without error, when no local row exists yet.
func (m *Mirror) Apply(ctx context.Context, snap *Snapshot) (bool, error) {
	if snap == nil || snap.ExternalID == "" {
		return false, errors.New("subscription snapshot without id")
	}

	status, known := models.ParseSubscriptionStatus(snap.Status)
	if !known {
		log.Warnf("[Billing] Subscription %s has unrecognized status %q, stored for reconciliation", snap.ExternalID, snap.Status)
	}

	updated, err := m.repo.UpdateMirror(ctx, snap.ExternalID, repository.SubscriptionMirror{
		Status:            status,
		RawStatus:         snap.Status,
		CurrentPeriodEnd:  snap.CurrentPeriodEnd,
		CancelAt:          snap.CancelAt,
		CancelAtPeriodEnd: snap.CancelAtPeriodEnd,
	})
	if err != nil {
		return false, fmt.Errorf("mirror subscription %s: %w", snap.ExternalID, err)
	}
	if !updated {
		log.Infof("[Billing] No local subscription for %s yet, update skipped", snap.ExternalID)
	}
	return updated, nil
}

// ForceCanceled marks the local row canceled regardless of timestamps; a
// provider-side deletion is authoritative.
func (m *Mirror) ForceCanceled(ctx context.Context, snap *Snapshot) (bool, error) {
	canceled := *snap
	canceled.Status = string(models.SubscriptionStatusCanceled)
	return m.Apply(ctx, &canceled)
}

// Provision creates the local row for a subscription the first time it is seen.
func (m *Mirror) Provision(ctx context.Context, identityRef, externalID string) (*models.Subscription, bool, error) {
	identityRef = strings.TrimSpace(identityRef)
	externalID = strings.TrimSpace(externalID)
	if identityRef == "" || externalID == "" {
		return nil, false, errors.New("subscription provisioning needs identity and external id")
	}

	created, sub, err := m.repo.CreateIfNotExists(ctx, &models.Subscription{
		IdentityRef:            identityRef,
		Provider:               models.ProviderStripe,
		ExternalSubscriptionID: externalID,
		Status:                 models.SubscriptionStatusIncomplete,
		RawStatus:              string(models.SubscriptionStatusIncomplete),
	})
	if err != nil {
		return nil, false, fmt.Errorf("provision subscription %s: %w", externalID, err)
	}
	if created {
		log.Infof("[Billing] Provisioned subscription %s", externalID)
	}
	return sub, created, nil
}

func (m *Mirror) Get(ctx context.Context, externalID string) (*models.Subscription, error) {
	return m.repo.GetByExternalID(ctx, externalID)
}
