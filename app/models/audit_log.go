package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditAction names what an audit row records.
type AuditAction string

const (
	AuditActionStateChange   AuditAction = "STATE_CHANGE"
	AuditActionGrantReissued AuditAction = "GRANT_REISSUED"
)

// AuditLog is an append-only record of journey changes. There is no update or
// delete path for it anywhere in the code base.
type AuditLog struct {
	ID        string        `gorm:"type:char(36);primaryKey" json:"id"`
	JourneyID string        `gorm:"type:char(36);not null;index:idx_audit_logs_journey_time,priority:1" json:"journey_id"`
	Action    AuditAction   `gorm:"type:varchar(32);not null" json:"action"`
	ToStatus  JourneyStatus `gorm:"type:varchar(32);not null;default:''" json:"to_status"`
	Note      string        `gorm:"type:varchar(255);not null;default:''" json:"note"`
	Timestamp time.Time     `gorm:"not null;index:idx_audit_logs_journey_time,priority:2" json:"timestamp"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	return nil
}
