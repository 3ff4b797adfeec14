package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/TrialFunnel/app/models"
	"github.com/gofiber/fiber/v2/log"
)

// JourneyTransitioner is the part of the journey state machine the payment
// handlers need.
type JourneyTransitioner interface {
	Transition(ctx context.Context, journeyID string, target models.JourneyStatus, note string) (*models.CustomerJourney, error)
}

// Processor holds the per-event-type Stripe handlers.
type Processor struct {
	journeys JourneyTransitioner
	mirror   *Mirror
	reader   *RemoteReader
	attempts int
	delay    time.Duration
}

func NewProcessor(journeys JourneyTransitioner, mirror *Mirror, reader *RemoteReader, attempts int, delay time.Duration) *Processor {
	return &Processor{
		journeys: journeys,
		mirror:   mirror,
		reader:   reader,
		attempts: attempts,
		delay:    delay,
	}
}

// Register installs the Stripe handlers on p.
func (pr *Processor) Register(p *Pipeline) {
	p.Handle(EventCheckoutSessionCompleted, pr.handleCheckoutCompleted)
	p.Handle(EventSubscriptionCreated, pr.handleSubscriptionChanged)
	p.Handle(EventSubscriptionUpdated, pr.handleSubscriptionChanged)
	p.Handle(EventSubscriptionDeleted, pr.handleSubscriptionDeleted)
	p.Handle(EventInvoicePaymentFailed, pr.handleInvoice)
	p.Handle(EventInvoicePaymentSucceeded, pr.handleInvoice)
	p.Handle(EventInvoicePaid, pr.handleInvoice)
}

func (pr *Processor) handleCheckoutCompleted(ctx context.Context, event *Event) error {
	var session CheckoutSession
	if err := json.Unmarshal(event.Data, &session); err != nil {
		return fmt.Errorf("decode checkout.session: %w", err)
	}

	var errs []error
	if session.Mode == checkoutModeSubscription && session.Subscription != "" {
		if err := pr.provisionFromCheckout(ctx, session); err != nil {
			errs = append(errs, err)
		}
	}

	if session.PaymentStatus != checkoutPaymentStatusPaid && session.PaymentStatus != checkoutPaymentStatusNoRequired {
		log.Infof("[Billing] Checkout %s completed with payment status %q, journey unchanged", session.ID, session.PaymentStatus)
		return errors.Join(errs...)
	}

	journeyID := strings.TrimSpace(session.Metadata[MetadataJourneyID])
	if journeyID == "" {
		log.Warnf("[Billing] Checkout %s has no journey reference", session.ID)
		return errors.Join(errs...)
	}
	if _, err := pr.journeys.Transition(ctx, journeyID, models.JourneyStatusInitialPaid, "init fee paid (webhook)"); err != nil {
		errs = append(errs, fmt.Errorf("journey %s: %w", journeyID, err))
	}
	return errors.Join(errs...)
}

func (pr *Processor) provisionFromCheckout(ctx context.Context, session CheckoutSession) error {
	identity := strings.TrimSpace(session.ClientReferenceID)
	if identity == "" {
		identity = strings.TrimSpace(session.Metadata[MetadataIdentityRef])
	}
	if identity == "" {
		log.Warnf("[Billing] Checkout %s created subscription %s without identity reference", session.ID, session.Subscription)
		return nil
	}

	if _, _, err := pr.mirror.Provision(ctx, identity, session.Subscription); err != nil {
		return err
	}
	_, err := pr.reconcile(ctx, session.Subscription)
	return err
}

func (pr *Processor) handleSubscriptionChanged(ctx context.Context, event *Event) error {
	var sub SubscriptionObject
	if err := json.Unmarshal(event.Data, &sub); err != nil {
		return fmt.Errorf("decode subscription: %w", err)
	}
	_, err := pr.mirror.Apply(ctx, sub.Snapshot())
	return err
}

func (pr *Processor) handleSubscriptionDeleted(ctx context.Context, event *Event) error {
	var sub SubscriptionObject
	if err := json.Unmarshal(event.Data, &sub); err != nil {
		return fmt.Errorf("decode subscription: %w", err)
	}
	_, err := pr.mirror.ForceCanceled(ctx, sub.Snapshot())
	return err
}

// Invoice events do not carry the subscription state, so it is re-read.
func (pr *Processor) handleInvoice(ctx context.Context, event *Event) error {
	var inv Invoice
	if err := json.Unmarshal(event.Data, &inv); err != nil {
		return fmt.Errorf("decode invoice: %w", err)
	}
	subID := inv.SubscriptionID()
	if subID == "" {
		log.Infof("[Billing] Invoice %s is not tied to a subscription", inv.ID)
		return nil
	}
	_, err := pr.reconcile(ctx, subID)
	return err
}

func (pr *Processor) reconcile(ctx context.Context, externalID string) (*Snapshot, error) {
	snap, err := pr.reader.FetchWithRetry(ctx, externalID, pr.attempts, pr.delay)
	if err != nil {
		return nil, err
	}
	if snap.ExternalID == "" {
		snap.ExternalID = externalID
	}
	if _, err := pr.mirror.Apply(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// Refresh re-reads one known subscription from the provider and mirrors it.
func (pr *Processor) Refresh(ctx context.Context, externalID string) (*models.Subscription, error) {
	if _, err := pr.mirror.Get(ctx, externalID); err != nil {
		return nil, err
	}
	if _, err := pr.reconcile(ctx, externalID); err != nil {
		return nil, err
	}
	return pr.mirror.Get(ctx, externalID)
}
