// Package ledger records externally sourced event ids so redelivered webhooks
// are detected before any domain mutation runs.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/TrialFunnel/app/models"
	"github.com/ManuelReschke/TrialFunnel/app/repository"
)

// Result is the outcome of RecordOnce. Fresh is true for exactly one caller per
// (provider, event id).
type Result struct {
	Fresh   bool
	EventID string
}

type Ledger struct {
	repo repository.IngestedEventRepository
	now  func() time.Time
}

func New(repo repository.IngestedEventRepository) *Ledger {
	return &Ledger{repo: repo, now: time.Now}
}

// RecordOnce inserts the delivery into the ledger. A conflict on the event id
// is reported as Fresh=false, not as an error. Events that arrive without an id
// are keyed by the SHA-256 of their payload.
func (l *Ledger) RecordOnce(ctx context.Context, provider, eventID, eventType string, payload []byte) (Result, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		sum := sha256.Sum256(payload)
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	created, err := l.repo.CreateIfNotExists(ctx, &models.IngestedEvent{
		Provider:   provider,
		EventID:    eventID,
		Type:       eventType,
		Payload:    string(payload),
		ReceivedAt: l.now().UTC(),
	})
	if err != nil {
		return Result{EventID: eventID}, fmt.Errorf("record %s event %s: %w", provider, eventID, err)
	}
	return Result{Fresh: created, EventID: eventID}, nil
}
