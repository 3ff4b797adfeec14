package repository

import (
	"context"
	"errors"

	"github.com/ManuelReschke/TrialFunnel/app/models"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/apperror"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).Where("external_subscription_id = ?", externalID).First(&sub).Error; err != nil {
		return nil, notFound(err, "subscription")
	}
	return &sub, nil
}

func (r *subscriptionRepository) CreateIfNotExists(ctx context.Context, sub *models.Subscription) (bool, *models.Subscription, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_subscription_id"}},
		DoNothing: true,
	}).Create(sub)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	stored, err := r.GetByExternalID(ctx, sub.ExternalSubscriptionID)
	if err != nil {
		return false, nil, err
	}
	return created, stored, nil
}

// UpdateMirror copies provider fields onto the row with the given external id.
// It reports false, without error, when no local row exists yet. A nil period
// end marks a partial read: the stored period end and cancel_at are kept.
func (r *subscriptionRepository) UpdateMirror(ctx context.Context, externalID string, fields SubscriptionMirror) (bool, error) {
	if _, err := r.GetByExternalID(ctx, externalID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	updates := map[string]interface{}{
		"status":               fields.Status,
		"raw_status":           fields.RawStatus,
		"cancel_at_period_end": fields.CancelAtPeriodEnd,
	}
	switch {
	case fields.CurrentPeriodEnd != nil:
		updates["current_period_end"] = fields.CurrentPeriodEnd
		updates["cancel_at"] = fields.CancelAt
	case fields.CancelAt != nil:
		updates["cancel_at"] = fields.CancelAt
	}
	err := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("external_subscription_id = ?", externalID).
		Updates(updates).Error
	if err != nil {
		return false, err
	}
	return true, nil
}
