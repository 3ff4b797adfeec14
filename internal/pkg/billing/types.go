package billing

import (
	"encoding/json"
	"time"
)

// Stripe event types the pipeline handles.
const (
	EventCheckoutSessionCompleted   = "checkout.session.completed"
	EventSubscriptionCreated        = "customer.subscription.created"
	EventSubscriptionUpdated        = "customer.subscription.updated"
	EventSubscriptionDeleted        = "customer.subscription.deleted"
	EventInvoicePaymentFailed       = "invoice.payment_failed"
	EventInvoicePaymentSucceeded    = "invoice.payment_succeeded"
	EventInvoicePaid                = "invoice.paid"
	checkoutModePayment             = "payment"
	checkoutModeSubscription        = "subscription"
	checkoutPaymentStatusPaid       = "paid"
	checkoutPaymentStatusNoRequired = "no_payment_required"
)

// Metadata keys set on checkout sessions.
const (
	MetadataJourneyID   = "journeyId"
	MetadataIdentityRef = "identityRef"
)

// Event is a verified provider event. Data holds the raw event object exactly
// as delivered.
type Event struct {
	ID   string
	Type string
	Data json.RawMessage
}

// CheckoutSession is a minimal representation of a Stripe checkout.session event.
type CheckoutSession struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	PaymentStatus     string            `json:"payment_status"`
	ClientReferenceID string            `json:"client_reference_id"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	Metadata          map[string]string `json:"metadata"`
}

// SubscriptionObject is a minimal representation of a Stripe subscription event.
type SubscriptionObject struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Status            string            `json:"status"`
	CancelAt          int64             `json:"cancel_at"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64             `json:"current_period_end"`
	Metadata          map[string]string `json:"metadata"`
	Items             struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

// Invoice is a minimal representation of a Stripe invoice event. Newer API
// versions move the subscription id under parent.subscription_details.
type Invoice struct {
	ID           string `json:"id"`
	Subscription string `json:"subscription"`
	Parent       struct {
		SubscriptionDetails struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (i Invoice) SubscriptionID() string {
	if i.Subscription != "" {
		return i.Subscription
	}
	return i.Parent.SubscriptionDetails.Subscription
}

// Snapshot is the provider's view of one subscription at read time.
type Snapshot struct {
	ExternalID        string
	Status            string
	CurrentPeriodEnd  *time.Time
	CancelAt          *time.Time
	CancelAtPeriodEnd bool
}

// Complete reports whether the fields that lag behind creation are populated.
func (s *Snapshot) Complete() bool {
	return s != nil && s.CurrentPeriodEnd != nil
}

// Snapshot converts the event object into a snapshot. The period end is the
// latest over the subscription items, falling back to the legacy top-level field.
func (o SubscriptionObject) Snapshot() *Snapshot {
	periodEnd := o.CurrentPeriodEnd
	for _, item := range o.Items.Data {
		if item.CurrentPeriodEnd > periodEnd {
			periodEnd = item.CurrentPeriodEnd
		}
	}
	return &Snapshot{
		ExternalID:        o.ID,
		Status:            o.Status,
		CurrentPeriodEnd:  unixTime(periodEnd),
		CancelAt:          unixTime(o.CancelAt),
		CancelAtPeriodEnd: o.CancelAtPeriodEnd,
	}
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
