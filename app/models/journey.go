package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JourneyStatus is the closed set of funnel stages a customer journey can be in.
type JourneyStatus string

const (
	JourneyStatusTrialActive  JourneyStatus = "TRIAL_ACTIVE"
	JourneyStatusTrialExpired JourneyStatus = "TRIAL_EXPIRED"
	JourneyStatusInitialPaid  JourneyStatus = "INITIAL_PAID"
)

// ParseJourneyStatus rejects anything outside the known stages instead of coercing it.
func ParseJourneyStatus(s string) (JourneyStatus, bool) {
	switch JourneyStatus(s) {
	case JourneyStatusTrialActive, JourneyStatusTrialExpired, JourneyStatusInitialPaid:
		return JourneyStatus(s), true
	default:
		return "", false
	}
}

// IsTrial reports whether the status is derived from the trial window rather than payment.
func (s JourneyStatus) IsTrial() bool {
	return s == JourneyStatusTrialActive || s == JourneyStatusTrialExpired
}

// CustomerJourney is a prospect's persisted progress through trial and payment.
// Status is only ever written through the journey state machine.
type CustomerJourney struct {
	ID           string        `gorm:"type:char(36);primaryKey" json:"id"`
	IdentityRef  string        `gorm:"type:varchar(191);not null;default:'';index:idx_customer_journeys_identity_created,priority:1" json:"identity_ref"`
	TenantID     string        `gorm:"type:varchar(64);not null;index" json:"tenant_id"`
	Status       JourneyStatus `gorm:"type:varchar(32);not null;index" json:"status"`
	TrialGrantID *string       `gorm:"type:char(36);uniqueIndex:ux_customer_journeys_trial_grant" json:"trial_grant_id,omitempty"`
	CreatedAt    time.Time     `gorm:"autoCreateTime;index:idx_customer_journeys_identity_created,priority:2" json:"created_at"`
	UpdatedAt    time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate assigns an id and the initial trial status.
func (j *CustomerJourney) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	if j.Status == "" {
		j.Status = JourneyStatusTrialActive
	}
	return nil
}
