package models

import "time"

// SubscriptionStatus mirrors the payment provider's subscription status.
type SubscriptionStatus string

const (
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionStatusPaused            SubscriptionStatus = "paused"
	// SubscriptionStatusUnrecognized marks a provider status this service does not
	// know yet. The provider's value is kept in RawStatus for manual reconciliation.
	SubscriptionStatusUnrecognized SubscriptionStatus = "unrecognized"
)

// ParseSubscriptionStatus maps a provider status onto the closed set. Unknown
// values come back as SubscriptionStatusUnrecognized with ok=false.
func ParseSubscriptionStatus(s string) (SubscriptionStatus, bool) {
	switch st := SubscriptionStatus(s); st {
	case SubscriptionStatusActive,
		SubscriptionStatusTrialing,
		SubscriptionStatusPastDue,
		SubscriptionStatusCanceled,
		SubscriptionStatusIncomplete,
		SubscriptionStatusIncompleteExpired,
		SubscriptionStatusUnpaid,
		SubscriptionStatusPaused:
		return st, true
	default:
		return SubscriptionStatusUnrecognized, false
	}
}

// Subscription mirrors a provider subscription. ExternalSubscriptionID is the
// join key for every provider-driven update; Status is never computed locally.
type Subscription struct {
	ID                     uint               `gorm:"primaryKey" json:"id"`
	IdentityRef            string             `gorm:"type:varchar(191);not null;index" json:"identity_ref"`
	Provider               string             `gorm:"type:varchar(20);not null;default:'stripe'" json:"provider"`
	ExternalSubscriptionID string             `gorm:"type:varchar(191);not null;uniqueIndex:ux_subscriptions_external_id" json:"external_subscription_id"`
	Status                 SubscriptionStatus `gorm:"type:varchar(32);not null;default:'incomplete';index" json:"status"`
	RawStatus              string             `gorm:"type:varchar(64);not null;default:''" json:"raw_status"`
	CurrentPeriodEnd       *time.Time         `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	CancelAt               *time.Time         `gorm:"type:timestamp;default:null" json:"cancel_at,omitempty"`
	CancelAtPeriodEnd      bool               `gorm:"default:false" json:"cancel_at_period_end"`
	CreatedAt              time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}
