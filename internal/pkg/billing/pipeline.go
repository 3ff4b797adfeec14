package billing

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/ManuelReschke/TrialFunnel/internal/pkg/ledger"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/metrics"
	"github.com/gofiber/fiber/v2/log"
)

// Verifier authenticates a delivery from one provider.
type Verifier interface {
	Provider() string
	Verify(payload []byte, signatureHeader string) (*Event, error)
}

// Recorder is the idempotency ledger as seen by the pipeline.
type Recorder interface {
	RecordOnce(ctx context.Context, provider, eventID, eventType string, payload []byte) (ledger.Result, error)
}

// HandlerFunc applies one event type to domain state.
type HandlerFunc func(ctx context.Context, event *Event) error

// Outcome describes what happened to an authenticated delivery.
type Outcome struct {
	EventID   string
	Type      string
	Duplicate bool
	// HandlerErr is set when the handler failed. The delivery still counts as
	// accepted; the failure is only logged and counted.
	HandlerErr error
}

// Pipeline runs a delivery through authenticate, dedupe and dispatch, in that
// order. Only an authentication failure or a ledger write failure is returned
// as an error; handler failures never are.
type Pipeline struct {
	verifier Verifier
	ledger   Recorder
	handlers map[string]HandlerFunc
}

func NewPipeline(verifier Verifier, recorder Recorder) *Pipeline {
	return &Pipeline{
		verifier: verifier,
		ledger:   recorder,
		handlers: make(map[string]HandlerFunc),
	}
}

// Handle registers the handler for an event type, replacing any earlier one.
func (p *Pipeline) Handle(eventType string, h HandlerFunc) {
	p.handlers[eventType] = h
}

// Ingest processes one delivery. payload must be the exact bytes received.
func (p *Pipeline) Ingest(ctx context.Context, payload []byte, signatureHeader string) (*Outcome, error) {
	provider := p.verifier.Provider()
	start := time.Now()
	defer func() {
		metrics.WebhookDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	}()

	event, err := p.verifier.Verify(payload, signatureHeader)
	if err != nil {
		metrics.WebhookDeliveriesTotal.WithLabelValues(provider, "unknown", "rejected").Inc()
		log.Warnf("[Billing] Rejected %s webhook: %v", provider, err)
		return nil, err
	}

	outcome := &Outcome{EventID: event.ID, Type: event.Type}
	res, err := p.ledger.RecordOnce(ctx, provider, event.ID, event.Type, payload)
	if err != nil {
		metrics.WebhookDeliveriesTotal.WithLabelValues(provider, event.Type, "ledger_error").Inc()
		log.Errorw("[Billing] Ledger write failed", "provider", provider, "event_id", event.ID, "type", event.Type, "error", err)
		return nil, err
	}
	outcome.EventID = res.EventID
	if !res.Fresh {
		outcome.Duplicate = true
		metrics.WebhookDeliveriesTotal.WithLabelValues(provider, event.Type, "duplicate").Inc()
		log.Debugf("[Billing] Duplicate %s event %s ignored", provider, res.EventID)
		return outcome, nil
	}

	outcome.HandlerErr = p.dispatch(ctx, event)
	if outcome.HandlerErr != nil {
		metrics.HandlerFailuresTotal.WithLabelValues(provider, event.Type).Inc()
		log.Errorw("[Billing] Webhook handler failed", "provider", provider, "event_id", event.ID, "type", event.Type, "error", outcome.HandlerErr)
	}
	metrics.WebhookDeliveriesTotal.WithLabelValues(provider, event.Type, "processed").Inc()
	return outcome, nil
}

func (p *Pipeline) dispatch(ctx context.Context, event *Event) (err error) {
	h, ok := p.handlers[event.Type]
	if !ok {
		log.Infof("[Billing] Ignoring unhandled event type %s (%s)", event.Type, event.ID)
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			log.Errorf("[Billing] Panic in %s handler: %v\n%s", event.Type, r, debug.Stack())
		}
	}()
	return h(ctx, event)
}
