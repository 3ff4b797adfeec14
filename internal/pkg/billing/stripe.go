package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuelReschke/TrialFunnel/app/models"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/apperror"
	"github.com/stripe/stripe-go/v82"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeVerifier authenticates Stripe webhook deliveries against the raw body.
type StripeVerifier struct {
	secret string
}

func NewStripeVerifier(secret string) (*StripeVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("stripe webhook secret is required")
	}
	return &StripeVerifier{secret: secret}, nil
}

func (v *StripeVerifier) Provider() string {
	return models.ProviderStripe
}

// Verify checks the Stripe-Signature header over payload, which must be the
// untouched request body.
func (v *StripeVerifier) Verify(payload []byte, signatureHeader string) (*Event, error) {
	if strings.TrimSpace(signatureHeader) == "" {
		return nil, fmt.Errorf("missing Stripe signature: %w", apperror.ErrAuthentication)
	}
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, apperror.ErrAuthentication)
	}

	var data []byte
	if event.Data != nil {
		data = event.Data.Raw
	}
	return &Event{ID: event.ID, Type: string(event.Type), Data: data}, nil
}

// StripeSubscriptionSource reads subscriptions through the Stripe API.
type StripeSubscriptionSource struct {
	get func(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
}

// NewStripeSubscriptionSource sets the process-wide Stripe key and returns a source.
func NewStripeSubscriptionSource(secretKey string) *StripeSubscriptionSource {
	stripe.Key = secretKey
	return &StripeSubscriptionSource{get: subscription.Get}
}

func (s *StripeSubscriptionSource) FetchSubscription(ctx context.Context, externalID string) (*Snapshot, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := s.get(externalID, params)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, fmt.Errorf("subscription %s: empty response", externalID)
	}
	return snapshotFromStripe(sub), nil
}

func snapshotFromStripe(sub *stripe.Subscription) *Snapshot {
	var periodEnd int64
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item != nil && item.CurrentPeriodEnd > periodEnd {
				periodEnd = item.CurrentPeriodEnd
			}
		}
	}
	return &Snapshot{
		ExternalID:        sub.ID,
		Status:            string(sub.Status),
		CurrentPeriodEnd:  unixTime(periodEnd),
		CancelAt:          unixTime(sub.CancelAt),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
}

// CheckoutRequest describes the one-time trial conversion checkout.
type CheckoutRequest struct {
	JourneyID  string
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// StripeCheckout creates hosted checkout sessions.
type StripeCheckout struct {
	create func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func NewStripeCheckout(secretKey string) *StripeCheckout {
	stripe.Key = secretKey
	return &StripeCheckout{create: stripesession.New}
}

// CreateSession returns the hosted checkout URL. The journey id travels in the
// session metadata so the completion webhook can advance the journey.
func (c *StripeCheckout) CreateSession(ctx context.Context, req CheckoutRequest) (string, error) {
	if strings.TrimSpace(req.PriceID) == "" {
		return "", errors.New("checkout price is not configured")
	}
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			MetadataJourneyID: req.JourneyID,
		},
	}
	params.Context = ctx

	session, err := c.create(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	if session == nil || strings.TrimSpace(session.URL) == "" {
		return "", errors.New("create checkout session: empty url")
	}
	return session.URL, nil
}
