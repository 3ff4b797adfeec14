package repository

import (
	"context"

	"github.com/ManuelReschke/TrialFunnel/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ingestedEventRepository struct {
	db *gorm.DB
}

// NewIngestedEventRepository creates a new ledger repository instance
func NewIngestedEventRepository(db *gorm.DB) IngestedEventRepository {
	return &ingestedEventRepository{db: db}
}

// CreateIfNotExists inserts the event and reports whether this call created it.
// A unique-key conflict is the duplicate signal, not an error.
func (r *ingestedEventRepository) CreateIfNotExists(ctx context.Context, event *models.IngestedEvent) (bool, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *ingestedEventRepository) GetByProviderEventID(ctx context.Context, provider, eventID string) (*models.IngestedEvent, error) {
	var ev models.IngestedEvent
	err := r.db.WithContext(ctx).
		Where("provider = ? AND event_id = ?", provider, eventID).
		First(&ev).Error
	if err != nil {
		return nil, notFound(err, "ingested event")
	}
	return &ev, nil
}
