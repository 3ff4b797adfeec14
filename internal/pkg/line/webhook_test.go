package line

import (
	"context"
	"errors"
	"testing"

	"github.com/ManuelReschke/TrialFunnel/app/models"
	"github.com/ManuelReschke/TrialFunnel/app/repository"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/apperror"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/jobqueue"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/ledger"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const channelSecret = "line-channel-secret"

const followBody = `{"destination":"Uabc","events":[
 {"type":"follow","webhookEventId":"01H-follow-1","timestamp":1700000000000,"source":{"type":"user","userId":"U111"},"deliveryContext":{"isRedelivery":false}},
 {"type":"message","webhookEventId":"01H-msg-1","timestamp":1700000000001,"source":{"type":"user","userId":"U111"},"deliveryContext":{"isRedelivery":false}}
]}`

type dispatchFixture struct {
	dispatcher *WebhookDispatcher
	queue      *jobqueue.Queue
	repos      *repository.Repositories
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	repos := repository.NewRepositories(testutil.NewTestDB(t))
	_, client := testutil.NewTestRedis(t)
	q := jobqueue.NewQueue(client, 1)
	d := NewWebhookDispatcher(channelSecret, ledger.New(repos.IngestedEvent), q, "demo-tenant")
	return &dispatchFixture{dispatcher: d, queue: q, repos: repos}
}

func TestParseWebhook(t *testing.T) {
	events, err := ParseWebhook([]byte(followBody))
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, EventTypeFollow, events[0].Type)
	assert.Equal(t, "01H-follow-1", events[0].WebhookEventID)
	assert.Equal(t, "U111", events[0].Source.UserID)
	assert.False(t, events[0].DeliveryContext.IsRedelivery)
	assert.Contains(t, string(events[0].Raw), `"01H-follow-1"`)

	_, err = ParseWebhook([]byte(`not json`))
	assert.Error(t, err)
}

func TestDispatchEnqueuesFollowOnce(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()
	body := []byte(followBody)

	res, err := f.dispatcher.Dispatch(ctx, body, Sign(body, channelSecret))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Events)
	assert.Equal(t, 1, res.Enqueued)
	assert.Zero(t, res.Duplicates)

	// Redelivery of the same events is deduplicated.
	res, err = f.dispatcher.Dispatch(ctx, body, Sign(body, channelSecret))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Duplicates)
	assert.Zero(t, res.Enqueued)

	size, err := f.queue.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)

	stored, err := f.repos.IngestedEvent.GetByProviderEventID(ctx, Provider, "01H-follow-1")
	require.NoError(t, err)
	assert.Equal(t, EventTypeFollow, stored.Type)
}

func TestDispatchRejectsBadSignature(t *testing.T) {
	f := newDispatchFixture(t)
	body := []byte(followBody)

	_, err := f.dispatcher.Dispatch(context.Background(), body, Sign(body, "wrong"))
	assert.ErrorIs(t, err, apperror.ErrAuthentication)

	_, err = f.repos.IngestedEvent.GetByProviderEventID(context.Background(), Provider, "01H-follow-1")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

type failingRecorder struct{}

func (failingRecorder) RecordOnce(context.Context, string, string, string, []byte) (ledger.Result, error) {
	return ledger.Result{}, errors.New("db down")
}

func TestDispatchLedgerFailure(t *testing.T) {
	_, client := testutil.NewTestRedis(t)
	d := NewWebhookDispatcher(channelSecret, failingRecorder{}, jobqueue.NewQueue(client, 1), "demo-tenant")
	body := []byte(followBody)

	_, err := d.Dispatch(context.Background(), body, Sign(body, channelSecret))
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperror.ErrAuthentication)
}

type fakeEnroller struct {
	calls []string
	err   error
}

func (e *fakeEnroller) Bind(_ context.Context, identityRef string) (*models.TrialGrant, *models.CustomerJourney, error) {
	e.calls = append(e.calls, identityRef)
	if e.err != nil {
		return nil, nil, e.err
	}
	return &models.TrialGrant{ID: "g1"}, &models.CustomerJourney{ID: "j1", Status: models.JourneyStatusTrialActive}, nil
}

func TestFollowJobEnrolsFollower(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()
	enroller := &fakeEnroller{}
	f.queue.RegisterHandler(jobqueue.JobTypeChatFollow, FollowJobHandler(enroller))

	body := []byte(followBody)
	_, err := f.dispatcher.Dispatch(ctx, body, Sign(body, channelSecret))
	require.NoError(t, err)

	ok, err := f.queue.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"U111"}, enroller.calls)
}

func TestFollowJobHandlerErrors(t *testing.T) {
	h := FollowJobHandler(&fakeEnroller{err: errors.New("db down")})

	err := h(context.Background(), &jobqueue.Job{Payload: jobqueue.ChatFollowPayload{UserID: "U1"}.ToMap()})
	assert.EqualError(t, err, "db down")

	err = h(context.Background(), &jobqueue.Job{Payload: map[string]interface{}{}})
	assert.Error(t, err)
}
