package funnel

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/ManuelReschke/TrialFunnel/app/models"
	"github.com/ManuelReschke/TrialFunnel/app/repository"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/apperror"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/journey"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/security"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/testutil"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/trial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	svc     *Service
	machine *journey.Machine
	repos   *repository.Repositories
	clock   *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos := repository.NewRepositories(testutil.NewTestDB(t))
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	machine := journey.NewMachine(repos.Journey, repos.TrialGrant, repos.AuditLog).WithClock(clock.Now)
	manager := trial.NewManager(repos.TrialGrant, machine, security.NewOperatorGuard("operator-key"), "demo-tenant").WithClock(clock.Now)
	codec, err := security.NewTokenCodec("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	codec.WithClock(clock.Now)

	svc := NewService(manager, machine, codec, Options{
		TenantID:     "demo-tenant",
		TrialDays:    3,
		TokenTTL:     time.Hour,
		PublicDomain: "https://funnel.example.com/",
	})
	return &fixture{svc: svc, machine: machine, repos: repos, clock: clock}
}

func TestEnterIssuesTokenAndRedirect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry, err := f.svc.Enter(ctx, "U-line-1")
	require.NoError(t, err)

	assert.Equal(t, models.JourneyStatusTrialActive, entry.Journey.Status)
	assert.WithinDuration(t, f.clock.Now().Add(72*time.Hour), entry.Grant.EndAt, time.Second)
	assert.NotEmpty(t, entry.Token)

	u, err := url.Parse(entry.RedirectURL)
	require.NoError(t, err)
	assert.Equal(t, "funnel.example.com", u.Host)
	assert.Equal(t, "/trial", u.Path)
	assert.Equal(t, entry.Token, u.Query().Get("token"))

	// Re-entry reuses the grant and journey.
	again, err := f.svc.Enter(ctx, "U-line-1")
	require.NoError(t, err)
	assert.Equal(t, entry.Grant.ID, again.Grant.ID)
	assert.Equal(t, entry.Journey.ID, again.Journey.ID)
}

func TestResolveToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry, err := f.svc.Enter(ctx, "U-line-2")
	require.NoError(t, err)

	snap, err := f.svc.ResolveToken(ctx, entry.Token)
	require.NoError(t, err)
	assert.Equal(t, entry.Journey.ID, snap.JourneyID)
	assert.Equal(t, models.JourneyStatusTrialActive, snap.Status)
	require.NotNil(t, snap.TrialEndAt)
}

func TestResolveTokenErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry, err := f.svc.Enter(ctx, "U-line-3")
	require.NoError(t, err)

	t.Run("corrupted", func(t *testing.T) {
		_, err := f.svc.ResolveToken(ctx, entry.Token[:len(entry.Token)-3]+"xyz")
		assert.ErrorIs(t, err, apperror.ErrTokenInvalid)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := f.svc.ResolveToken(ctx, "")
		assert.ErrorIs(t, err, apperror.ErrTokenInvalid)
	})

	t.Run("expired", func(t *testing.T) {
		f.clock.Advance(2 * time.Hour)
		_, err := f.svc.ResolveToken(ctx, entry.Token)
		assert.ErrorIs(t, err, apperror.ErrTokenExpired)
	})
}

func TestResolveIdentityEnrolsAndExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap, err := f.svc.ResolveIdentity(ctx, "user-42")
	require.NoError(t, err)
	assert.Equal(t, models.JourneyStatusTrialActive, snap.Status)

	f.clock.Advance(4 * 24 * time.Hour)

	snap2, err := f.svc.ResolveIdentity(ctx, "user-42")
	require.NoError(t, err)
	assert.Equal(t, snap.JourneyID, snap2.JourneyID)
	assert.Equal(t, models.JourneyStatusTrialExpired, snap2.Status)
}

func TestBindRejectsEmptyIdentity(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.Bind(context.Background(), "  ")
	assert.Error(t, err)
}
