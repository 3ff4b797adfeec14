package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultCampaignID is used when a grant is created without a campaign.
const DefaultCampaignID = "default"

// TrialGrant is a time-boxed trial entitlement for one identity.
// Generation increments when a grant is superseded; first-touch creation always
// uses generation 1, which makes (identity_ref, generation) the uniqueness point
// for concurrent first entries.
type TrialGrant struct {
	ID          string    `gorm:"type:char(36);primaryKey" json:"id"`
	IdentityRef string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_trial_grants_identity_generation,priority:1;index:idx_trial_grants_identity_start,priority:1" json:"identity_ref"`
	Generation  int       `gorm:"not null;default:1;uniqueIndex:ux_trial_grants_identity_generation,priority:2" json:"generation"`
	TenantID    string    `gorm:"type:varchar(64);not null;index" json:"tenant_id"`
	CampaignID  string    `gorm:"type:varchar(64);not null;default:'default'" json:"campaign_id"`
	StartAt     time.Time `gorm:"not null;index:idx_trial_grants_identity_start,priority:2" json:"start_at"`
	EndAt       time.Time `gorm:"not null" json:"end_at"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ErrInvalidTrialWindow is returned when EndAt does not lie after StartAt.
var ErrInvalidTrialWindow = errors.New("trial grant end must be after start")

// BeforeCreate assigns an id and enforces endAt > startAt.
func (g *TrialGrant) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	if g.Generation == 0 {
		g.Generation = 1
	}
	if g.CampaignID == "" {
		g.CampaignID = DefaultCampaignID
	}
	if !g.EndAt.After(g.StartAt) {
		return ErrInvalidTrialWindow
	}
	return nil
}

// IsActiveAt reports whether the grant window still covers t (inclusive of EndAt).
func (g *TrialGrant) IsActiveAt(t time.Time) bool {
	return !t.After(g.EndAt)
}
