package repository

import (
	"context"

	"github.com/ManuelReschke/TrialFunnel/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type journeyRepository struct {
	db *gorm.DB
}

// NewJourneyRepository creates a new journey repository instance
func NewJourneyRepository(db *gorm.DB) JourneyRepository {
	return &journeyRepository{db: db}
}

func (r *journeyRepository) GetByID(ctx context.Context, id string) (*models.CustomerJourney, error) {
	var j models.CustomerJourney
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&j).Error; err != nil {
		return nil, notFound(err, "journey")
	}
	return &j, nil
}

func (r *journeyRepository) FindLatestByIdentity(ctx context.Context, identityRef string) (*models.CustomerJourney, error) {
	var j models.CustomerJourney
	err := r.db.WithContext(ctx).
		Where("identity_ref = ?", identityRef).
		Order("created_at DESC").
		First(&j).Error
	if err != nil {
		return nil, notFound(err, "journey")
	}
	return &j, nil
}

func (r *journeyRepository) FindByTrialGrantID(ctx context.Context, grantID string) (*models.CustomerJourney, error) {
	var j models.CustomerJourney
	if err := r.db.WithContext(ctx).Where("trial_grant_id = ?", grantID).First(&j).Error; err != nil {
		return nil, notFound(err, "journey")
	}
	return &j, nil
}

// CreateIfNotExists inserts the journey and its creation audit row in one
// transaction. A journey bound to a grant that already owns one is not
// inserted; the existing journey is returned instead.
func (r *journeyRepository) CreateIfNotExists(ctx context.Context, journey *models.CustomerJourney, audit *models.AuditLog) (bool, *models.CustomerJourney, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "trial_grant_id"}},
			DoNothing: true,
		}).Create(journey)
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected > 0
		if !created || audit == nil {
			return nil
		}
		audit.JourneyID = journey.ID
		return tx.Create(audit).Error
	})
	if err != nil {
		return false, nil, err
	}
	if created || journey.TrialGrantID == nil {
		return created, journey, nil
	}

	stored, err := r.FindByTrialGrantID(ctx, *journey.TrialGrantID)
	if err != nil {
		return false, nil, err
	}
	return false, stored, nil
}

// CompareAndSwapStatus moves the journey from one status to another only if it
// still holds the expected source status, appending the audit row in the same
// transaction. It reports false when another writer got there first.
func (r *journeyRepository) CompareAndSwapStatus(ctx context.Context, id string, from, to models.JourneyStatus, audit *models.AuditLog) (bool, error) {
	swapped := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.CustomerJourney{}).
			Where("id = ? AND status = ?", id, from).
			Update("status", to)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		swapped = true
		if audit == nil {
			return nil
		}
		audit.JourneyID = id
		return tx.Create(audit).Error
	})
	if err != nil {
		return false, err
	}
	return swapped, nil
}
