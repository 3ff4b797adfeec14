package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/TrialFunnel/app/models"
	"gorm.io/gorm"
)

// TrialGrantRepository defines the persistence operations for trial grants
type TrialGrantRepository interface {
	GetByID(ctx context.Context, id string) (*models.TrialGrant, error)
	FindLatestByIdentity(ctx context.Context, identityRef string) (*models.TrialGrant, error)
	CreateIfNotExists(ctx context.Context, grant *models.TrialGrant) (bool, *models.TrialGrant, error)
	UpdateEndAt(ctx context.Context, id string, endAt time.Time) error
}

// JourneyRepository defines the persistence operations for customer journeys.
// Status is only written through CompareAndSwapStatus.
type JourneyRepository interface {
	GetByID(ctx context.Context, id string) (*models.CustomerJourney, error)
	FindLatestByIdentity(ctx context.Context, identityRef string) (*models.CustomerJourney, error)
	FindByTrialGrantID(ctx context.Context, grantID string) (*models.CustomerJourney, error)
	CreateIfNotExists(ctx context.Context, journey *models.CustomerJourney, audit *models.AuditLog) (bool, *models.CustomerJourney, error)
	CompareAndSwapStatus(ctx context.Context, id string, from, to models.JourneyStatus, audit *models.AuditLog) (bool, error)
}

// AuditLogRepository is append-only
type AuditLogRepository interface {
	Append(ctx context.Context, entry *models.AuditLog) error
	ListByJourney(ctx context.Context, journeyID string) ([]models.AuditLog, error)
}

// SubscriptionRepository defines the persistence operations for mirrored subscriptions
type SubscriptionRepository interface {
	GetByExternalID(ctx context.Context, externalID string) (*models.Subscription, error)
	CreateIfNotExists(ctx context.Context, sub *models.Subscription) (bool, *models.Subscription, error)
	UpdateMirror(ctx context.Context, externalID string, fields SubscriptionMirror) (bool, error)
}

// SubscriptionMirror carries the provider-owned fields copied onto a local row
type SubscriptionMirror struct {
	Status            models.SubscriptionStatus
	RawStatus         string
	CurrentPeriodEnd  *time.Time
	CancelAt          *time.Time
	CancelAtPeriodEnd bool
}

// IngestedEventRepository is the storage behind the idempotency ledger
type IngestedEventRepository interface {
	CreateIfNotExists(ctx context.Context, event *models.IngestedEvent) (bool, error)
	GetByProviderEventID(ctx context.Context, provider, eventID string) (*models.IngestedEvent, error)
}

// Repositories holds all repository instances
type Repositories struct {
	TrialGrant    TrialGrantRepository
	Journey       JourneyRepository
	AuditLog      AuditLogRepository
	Subscription  SubscriptionRepository
	IngestedEvent IngestedEventRepository
}

// NewRepositories creates all repositories backed by the given DB
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		TrialGrant:    NewTrialGrantRepository(db),
		Journey:       NewJourneyRepository(db),
		AuditLog:      NewAuditLogRepository(db),
		Subscription:  NewSubscriptionRepository(db),
		IngestedEvent: NewIngestedEventRepository(db),
	}
}
