package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/TrialFunnel/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type trialGrantRepository struct {
	db *gorm.DB
}

// NewTrialGrantRepository creates a new trial grant repository instance
func NewTrialGrantRepository(db *gorm.DB) TrialGrantRepository {
	return &trialGrantRepository{db: db}
}

func (r *trialGrantRepository) GetByID(ctx context.Context, id string) (*models.TrialGrant, error) {
	var g models.TrialGrant
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&g).Error; err != nil {
		return nil, notFound(err, "trial grant")
	}
	return &g, nil
}

// FindLatestByIdentity returns the most recently started grant for the identity
func (r *trialGrantRepository) FindLatestByIdentity(ctx context.Context, identityRef string) (*models.TrialGrant, error) {
	var g models.TrialGrant
	err := r.db.WithContext(ctx).
		Where("identity_ref = ?", identityRef).
		Order("start_at DESC").
		Order("generation DESC").
		First(&g).Error
	if err != nil {
		return nil, notFound(err, "trial grant")
	}
	return &g, nil
}

// CreateIfNotExists inserts the grant unless (identity_ref, generation) is taken.
// The stored row is read back either way so a losing concurrent caller gets the
// winner's grant.
func (r *trialGrantRepository) CreateIfNotExists(ctx context.Context, grant *models.TrialGrant) (bool, *models.TrialGrant, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "identity_ref"},
			{Name: "generation"},
		},
		DoNothing: true,
	}).Create(grant)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.TrialGrant
	if err := r.db.WithContext(ctx).Where("identity_ref = ? AND generation = ?", grant.IdentityRef, grant.Generation).
		First(&stored).Error; err != nil {
		return false, nil, notFound(err, "trial grant")
	}
	return created, &stored, nil
}

func (r *trialGrantRepository) UpdateEndAt(ctx context.Context, id string, endAt time.Time) error {
	tx := r.db.WithContext(ctx).Model(&models.TrialGrant{}).
		Where("id = ?", id).
		Update("end_at", endAt)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, "trial grant")
	}
	return nil
}
