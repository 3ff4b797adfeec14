package models

import "time"

// Providers whose deliveries are recorded in the idempotency ledger.
const (
	ProviderStripe = "stripe"
	ProviderLine   = "line"
)

// IngestedEvent is one idempotency ledger entry. The unique (provider, event_id)
// pair is the only deduplication mechanism; rows are written once and never
// updated afterwards.
type IngestedEvent struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Provider   string    `gorm:"type:varchar(20);not null;uniqueIndex:ux_ingested_events_provider_event,priority:1" json:"provider"`
	EventID    string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_ingested_events_provider_event,priority:2" json:"event_id"`
	Type       string    `gorm:"type:varchar(100);not null;index" json:"type"`
	Payload    string    `gorm:"type:longtext;not null" json:"payload"`
	ReceivedAt time.Time `gorm:"not null;index" json:"received_at"`
}
