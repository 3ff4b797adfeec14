package line

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ManuelReschke/TrialFunnel/app/models"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/apperror"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/jobqueue"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/ledger"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/metrics"
	"github.com/gofiber/fiber/v2/log"
)

const (
	Provider = models.ProviderLine

	EventTypeFollow   = "follow"
	EventTypeUnfollow = "unfollow"
	EventTypeMessage  = "message"
)

type EventSource struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type DeliveryContext struct {
	IsRedelivery bool `json:"isRedelivery"`
}

// WebhookEvent is the subset of a Messaging API event the funnel reads.
type WebhookEvent struct {
	Type            string          `json:"type"`
	WebhookEventID  string          `json:"webhookEventId"`
	Timestamp       int64           `json:"timestamp"`
	Source          EventSource     `json:"source"`
	DeliveryContext DeliveryContext `json:"deliveryContext"`

	Raw json.RawMessage `json:"-"`
}

type webhookBody struct {
	Destination string            `json:"destination"`
	Events      []json.RawMessage `json:"events"`
}

// ParseWebhook splits a webhook body into its events, keeping each event's raw bytes.
func ParseWebhook(body []byte) ([]WebhookEvent, error) {
	var wb webhookBody
	if err := json.Unmarshal(body, &wb); err != nil {
		return nil, fmt.Errorf("decode line webhook: %w", err)
	}

	events := make([]WebhookEvent, 0, len(wb.Events))
	for _, raw := range wb.Events {
		var ev WebhookEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("decode line event: %w", err)
		}
		ev.Raw = raw
		events = append(events, ev)
	}
	return events, nil
}

// Recorder is the idempotency ledger as seen by the webhook.
type Recorder interface {
	RecordOnce(ctx context.Context, provider, eventID, eventType string, payload []byte) (ledger.Result, error)
}

// Enqueuer hands follow-up work to the chat job queue.
type Enqueuer interface {
	EnqueueJob(ctx context.Context, jobType jobqueue.JobType, payload map[string]interface{}) (*jobqueue.Job, error)
}

// DispatchResult summarises one webhook delivery.
type DispatchResult struct {
	Events     int
	Duplicates int
	Enqueued   int
}

// WebhookDispatcher does the synchronous part of a LINE delivery: signature,
// dedup and enqueue. Enrolment of followers runs later on the job queue.
type WebhookDispatcher struct {
	channelSecret string
	recorder      Recorder
	queue         Enqueuer
	tenantID      string
}

func NewWebhookDispatcher(channelSecret string, recorder Recorder, queue Enqueuer, tenantID string) *WebhookDispatcher {
	return &WebhookDispatcher{
		channelSecret: channelSecret,
		recorder:      recorder,
		queue:         queue,
		tenantID:      tenantID,
	}
}

// Dispatch verifies and records every event in body. A bad signature wraps
// apperror.ErrAuthentication; a ledger failure is returned so the platform
// redelivers. Enqueue failures are logged only.
func (d *WebhookDispatcher) Dispatch(ctx context.Context, body []byte, signatureHeader string) (*DispatchResult, error) {
	start := time.Now()
	defer func() {
		metrics.WebhookDuration.WithLabelValues(Provider).Observe(time.Since(start).Seconds())
	}()

	if !VerifySignature(body, signatureHeader, d.channelSecret) {
		metrics.WebhookDeliveriesTotal.WithLabelValues(Provider, "", "rejected").Inc()
		return nil, fmt.Errorf("line signature mismatch: %w", apperror.ErrAuthentication)
	}

	events, err := ParseWebhook(body)
	if err != nil {
		metrics.WebhookDeliveriesTotal.WithLabelValues(Provider, "", "rejected").Inc()
		return nil, fmt.Errorf("%v: %w", err, apperror.ErrAuthentication)
	}

	res := &DispatchResult{Events: len(events)}
	for _, ev := range events {
		recorded, err := d.recorder.RecordOnce(ctx, Provider, ev.WebhookEventID, ev.Type, ev.Raw)
		if err != nil {
			metrics.WebhookDeliveriesTotal.WithLabelValues(Provider, ev.Type, "ledger_error").Inc()
			return res, fmt.Errorf("record line event: %w", err)
		}
		if !recorded.Fresh {
			res.Duplicates++
			metrics.WebhookDeliveriesTotal.WithLabelValues(Provider, ev.Type, "duplicate").Inc()
			log.Debugf("[LINE] Duplicate event %s (%s)", recorded.EventID, ev.Type)
			continue
		}
		metrics.WebhookDeliveriesTotal.WithLabelValues(Provider, ev.Type, "processed").Inc()

		if ev.Type != EventTypeFollow || ev.Source.UserID == "" {
			continue
		}
		payload := jobqueue.ChatFollowPayload{
			UserID:         ev.Source.UserID,
			WebhookEventID: recorded.EventID,
			TenantID:       d.tenantID,
		}
		if _, err := d.queue.EnqueueJob(ctx, jobqueue.JobTypeChatFollow, payload.ToMap()); err != nil {
			log.Errorw("[LINE] Failed to enqueue follow job", "event_id", recorded.EventID, "error", err)
			continue
		}
		res.Enqueued++
	}
	return res, nil
}
