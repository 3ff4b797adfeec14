package journey

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ManuelReschke/TrialFunnel/app/models"
	"github.com/ManuelReschke/TrialFunnel/app/repository"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/apperror"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/testutil"
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
	machine *Machine
	repos   *repository.Repositories
	clock   *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos := repository.NewRepositories(testutil.NewTestDB(t))
	clock := &testClock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	m := NewMachine(repos.Journey, repos.TrialGrant, repos.AuditLog).WithClock(clock.Now)
	return &fixture{machine: m, repos: repos, clock: clock}
}

func (f *fixture) newGrant(t *testing.T, identity string, days int) *models.TrialGrant {
	t.Helper()
	now := f.clock.Now()
	_, grant, err := f.repos.TrialGrant.CreateIfNotExists(context.Background(), &models.TrialGrant{
		IdentityRef: identity,
		TenantID:    "demo-tenant",
		StartAt:     now,
		EndAt:       now.Add(time.Duration(days) * 24 * time.Hour),
	})
	require.NoError(t, err)
	return grant
}

func (f *fixture) newJourney(t *testing.T, identity string) *models.CustomerJourney {
	t.Helper()
	grant := f.newGrant(t, identity, 3)
	j, created, err := f.machine.FindOrCreateForGrant(context.Background(), grant, identity)
	require.NoError(t, err)
	require.True(t, created)
	return j
}

func countAudit(t *testing.T, f *fixture, journeyID string, action models.AuditAction, to models.JourneyStatus) int {
	t.Helper()
	rows, err := f.repos.AuditLog.ListByJourney(context.Background(), journeyID)
	require.NoError(t, err)
	n := 0
	for _, r := range rows {
		if r.Action == action && (to == "" || r.ToStatus == to) {
			n++
		}
	}
	return n
}

func TestFindOrCreateForGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	grant := f.newGrant(t, "U-alice", 3)

	j, created, err := f.machine.FindOrCreateForGrant(ctx, grant, "U-alice")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.JourneyStatusTrialActive, j.Status)
	require.NotNil(t, j.TrialGrantID)
	assert.Equal(t, grant.ID, *j.TrialGrantID)

	again, created, err := f.machine.FindOrCreateForGrant(ctx, grant, "U-alice")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, j.ID, again.ID)
	assert.Equal(t, 1, countAudit(t, f, j.ID, models.AuditActionStateChange, models.JourneyStatusTrialActive))
}

func TestFindOrCreateForGrantConcurrent(t *testing.T) {
	f := newFixture(t)
	grant := f.newGrant(t, "U-race", 3)

	const callers = 8
	ids := make(chan string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j, _, err := f.machine.FindOrCreateForGrant(context.Background(), grant, "U-race")
			if assert.NoError(t, err) {
				ids <- j.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		seen[id] = true
	}
	assert.Len(t, seen, 1)
}

func TestTransitionAppendsOneAuditRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.newJourney(t, "U-bob")

	got, err := f.machine.Transition(ctx, j.ID, models.JourneyStatusInitialPaid, "init fee paid")
	require.NoError(t, err)
	assert.Equal(t, models.JourneyStatusInitialPaid, got.Status)

	// same target again is a no-op
	got, err = f.machine.Transition(ctx, j.ID, models.JourneyStatusInitialPaid, "init fee paid")
	require.NoError(t, err)
	assert.Equal(t, models.JourneyStatusInitialPaid, got.Status)

	assert.Equal(t, 1, countAudit(t, f, j.ID, models.AuditActionStateChange, models.JourneyStatusInitialPaid))
}

func TestTransitionExpiredCanStillConvert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.newJourney(t, "U-late")

	_, err := f.machine.Transition(ctx, j.ID, models.JourneyStatusTrialExpired, "trial window elapsed")
	require.NoError(t, err)
	got, err := f.machine.Transition(ctx, j.ID, models.JourneyStatusInitialPaid, "init fee paid")
	require.NoError(t, err)
	assert.Equal(t, models.JourneyStatusInitialPaid, got.Status)
}

func TestTransitionRejectsIllegalMoves(t *testing.T) {
	tests := []struct {
		name   string
		from   []models.JourneyStatus
		target models.JourneyStatus
	}{
		{"paid to active", []models.JourneyStatus{models.JourneyStatusInitialPaid}, models.JourneyStatusTrialActive},
		{"paid to expired", []models.JourneyStatus{models.JourneyStatusInitialPaid}, models.JourneyStatusTrialExpired},
		{"expired to active", []models.JourneyStatus{models.JourneyStatusTrialExpired}, models.JourneyStatusTrialActive},
		{"unknown target", nil, models.JourneyStatus("CHURNED")},
		{"empty target", nil, models.JourneyStatus("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			j := f.newJourney(t, "U-"+tt.name)
			for _, step := range tt.from {
				_, err := f.machine.Transition(ctx, j.ID, step, "setup")
				require.NoError(t, err)
			}
			before, err := f.repos.Journey.GetByID(ctx, j.ID)
			require.NoError(t, err)
			auditBefore, err := f.repos.AuditLog.ListByJourney(ctx, j.ID)
			require.NoError(t, err)

			_, err = f.machine.Transition(ctx, j.ID, tt.target, "should fail")
			assert.ErrorIs(t, err, apperror.ErrIllegalTransition)

			after, err := f.repos.Journey.GetByID(ctx, j.ID)
			require.NoError(t, err)
			assert.Equal(t, before.Status, after.Status)
			auditAfter, err := f.repos.AuditLog.ListByJourney(ctx, j.ID)
			require.NoError(t, err)
			assert.Len(t, auditAfter, len(auditBefore))
		})
	}
}

func TestTransitionMissingJourney(t *testing.T) {
	f := newFixture(t)
	_, err := f.machine.Transition(context.Background(), "does-not-exist", models.JourneyStatusInitialPaid, "x")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestTransitionConcurrentSameTarget(t *testing.T) {
	f := newFixture(t)
	j := f.newJourney(t, "U-concurrent")

	const writers = 10
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.machine.Transition(context.Background(), j.ID, models.JourneyStatusInitialPaid, "init fee paid")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, countAudit(t, f, j.ID, models.AuditActionStateChange, models.JourneyStatusInitialPaid))
}

func TestReactivate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("expired journey becomes active", func(t *testing.T) {
		j := f.newJourney(t, "U-expired")
		_, err := f.machine.Transition(ctx, j.ID, models.JourneyStatusTrialExpired, "trial window elapsed")
		require.NoError(t, err)

		got, err := f.machine.Reactivate(ctx, j.ID, "grant re-issued")
		require.NoError(t, err)
		assert.Equal(t, models.JourneyStatusTrialActive, got.Status)
	})

	t.Run("active journey is untouched", func(t *testing.T) {
		j := f.newJourney(t, "U-active")
		got, err := f.machine.Reactivate(ctx, j.ID, "grant re-issued")
		require.NoError(t, err)
		assert.Equal(t, models.JourneyStatusTrialActive, got.Status)
		assert.Equal(t, 1, countAudit(t, f, j.ID, models.AuditActionStateChange, ""))
	})

	t.Run("paid journey is never downgraded", func(t *testing.T) {
		j := f.newJourney(t, "U-paid")
		_, err := f.machine.Transition(ctx, j.ID, models.JourneyStatusInitialPaid, "init fee paid")
		require.NoError(t, err)

		_, err = f.machine.Reactivate(ctx, j.ID, "grant re-issued")
		assert.ErrorIs(t, err, apperror.ErrIllegalTransition)

		stored, err := f.repos.Journey.GetByID(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JourneyStatusInitialPaid, stored.Status)
	})
}

func TestRecordGrantReissueAndAuditTrail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.newJourney(t, "U-audit")

	require.NoError(t, f.machine.RecordGrantReissue(ctx, j.ID, "extended by 3 days"))

	rows, err := f.machine.AuditTrail(ctx, j.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, countAudit(t, f, j.ID, models.AuditActionGrantReissued, ""))

	_, err = f.machine.AuditTrail(ctx, "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(models.JourneyStatusTrialActive, models.JourneyStatusTrialExpired))
	assert.True(t, CanTransition(models.JourneyStatusTrialActive, models.JourneyStatusInitialPaid))
	assert.True(t, CanTransition(models.JourneyStatusTrialExpired, models.JourneyStatusInitialPaid))
	assert.False(t, CanTransition(models.JourneyStatusTrialExpired, models.JourneyStatusTrialActive))
	assert.False(t, CanTransition(models.JourneyStatusInitialPaid, models.JourneyStatusTrialActive))
}
