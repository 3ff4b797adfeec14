package billing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ManuelReschke/TrialFunnel/app/models"
	"github.com/ManuelReschke/TrialFunnel/app/repository"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/journey"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/ledger"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/testutil"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testWebhookSecret = "whsec_test_secret"

// fakeSource returns queued snapshots or errors in order, repeating the last one.
type fakeSource struct {
	mu        sync.Mutex
	responses []fakeResponse
	calls     int
}

type fakeResponse struct {
	snap *Snapshot
	err  error
}

func (f *fakeSource) FetchSubscription(_ context.Context, externalID string) (*Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.responses) == 0 {
		return nil, fmt.Errorf("no response queued for %s", externalID)
	}
	idx := f.calls - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	r := f.responses[idx]
	if r.snap == nil {
		return nil, r.err
	}
	cp := *r.snap
	return &cp, r.err
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	pipeline *Pipeline
	proc     *Processor
	machine  *journey.Machine
	repos    *repository.Repositories
	source   *fakeSource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos := repository.NewRepositories(testutil.NewTestDB(t))
	machine := journey.NewMachine(repos.Journey, repos.TrialGrant, repos.AuditLog)

	verifier, err := NewStripeVerifier(testWebhookSecret)
	require.NoError(t, err)
	source := &fakeSource{}
	proc := NewProcessor(machine, NewMirror(repos.Subscription), NewRemoteReader(source), 3, time.Millisecond)
	pipeline := NewPipeline(verifier, ledger.New(repos.IngestedEvent))
	proc.Register(pipeline)

	return &fixture{pipeline: pipeline, proc: proc, machine: machine, repos: repos, source: source}
}

func (f *fixture) newJourney(t *testing.T, identity string) *models.CustomerJourney {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	_, grant, err := f.repos.TrialGrant.CreateIfNotExists(ctx, &models.TrialGrant{
		IdentityRef: identity,
		TenantID:    "demo-tenant",
		StartAt:     now,
		EndAt:       now.Add(72 * time.Hour),
	})
	require.NoError(t, err)
	j, _, err := f.machine.FindOrCreateForGrant(ctx, grant, identity)
	require.NoError(t, err)
	return j
}

func (f *fixture) newSubscription(t *testing.T, identity, externalID string) {
	t.Helper()
	_, _, err := NewMirror(f.repos.Subscription).Provision(context.Background(), identity, externalID)
	require.NoError(t, err)
}

func sign(t *testing.T, payload string) ([]byte, string) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return signed.Payload, signed.Header
}

func stripeEvent(id, eventType, object string) string {
	return fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"data":{"object":%s}}`, id, eventType, object)
}

func paidCheckout(journeyID string) string {
	return fmt.Sprintf(`{"id":"cs_test_1","object":"checkout.session","mode":"payment","payment_status":"paid","metadata":{"journeyId":%q}}`, journeyID)
}
