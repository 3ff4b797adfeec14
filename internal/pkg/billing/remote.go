package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/TrialFunnel/internal/pkg/apperror"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/metrics"
	backoff "github.com/cenkalti/backoff/v4"
	"github.com/gofiber/fiber/v2/log"
)

// SubscriptionSource reads one subscription from the payment provider.
type SubscriptionSource interface {
	FetchSubscription(ctx context.Context, externalID string) (*Snapshot, error)
}

var errSnapshotIncomplete = errors.New("subscription snapshot incomplete")

// RemoteReader polls the provider until a just-created subscription exposes
// its period end. It is bounded by maxAttempts and never blocks past that.
type RemoteReader struct {
	source SubscriptionSource
}

func NewRemoteReader(source SubscriptionSource) *RemoteReader {
	return &RemoteReader{source: source}
}

// FetchWithRetry returns the first complete snapshot, or the best partial one
// once attempts run out. Callers treat a partial snapshot as valid. An error
// wrapping apperror.ErrUpstreamUnavailable is returned only when no read
// succeeded at all.
func (r *RemoteReader) FetchWithRetry(ctx context.Context, externalID string, maxAttempts int, delay time.Duration) (*Snapshot, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if delay < 0 {
		delay = 0
	}

	var best *Snapshot
	var lastErr error
	attempt := 0

	operation := func() error {
		attempt++
		snap, err := r.source.FetchSubscription(ctx, externalID)
		if err != nil {
			lastErr = err
			metrics.RemoteReadAttemptsTotal.WithLabelValues("error").Inc()
			log.Warnf("[Billing] Read of subscription %s failed (attempt %d/%d): %v", externalID, attempt, maxAttempts, err)
			return err
		}
		best = snap
		if !snap.Complete() {
			metrics.RemoteReadAttemptsTotal.WithLabelValues("partial").Inc()
			return errSnapshotIncomplete
		}
		metrics.RemoteReadAttemptsTotal.WithLabelValues("complete").Inc()
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(maxAttempts-1)),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		if best != nil {
			log.Infof("[Billing] Subscription %s still partial after %d attempts", externalID, attempt)
			return best, nil
		}
		if lastErr == nil {
			lastErr = err
		}
		return nil, fmt.Errorf("read subscription %s: %v: %w", externalID, lastErr, apperror.ErrUpstreamUnavailable)
	}
	return best, nil
}
