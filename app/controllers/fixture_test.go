package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/ManuelReschke/TrialFunnel/app/repository"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/billing"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/funnel"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/jobqueue"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/journey"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/ledger"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/line"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/middleware"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/security"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/testutil"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/trial"
)

const (
	operatorKey       = "operator-key-123"
	webhookSecret     = "whsec_controller_test"
	lineChannelSecret = "line-channel-secret"
	tokenSecret       = "0123456789abcdef0123456789abcdef"
	proxySecret       = "identity-proxy-secret-1"
)

type fakeVerifier struct {
	subject string
	err     error
}

func (v *fakeVerifier) VerifyIDToken(_ context.Context, idToken string) (*line.Identity, error) {
	if v.err != nil {
		return nil, v.err
	}
	return &line.Identity{Subject: v.subject, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

type fakeCheckout struct {
	last billing.CheckoutRequest
	err  error
}

func (f *fakeCheckout) CreateSession(_ context.Context, req billing.CheckoutRequest) (string, error) {
	f.last = req
	if f.err != nil {
		return "", f.err
	}
	return "https://checkout.stripe.test/c/pay/cs_test_1", nil
}

type staticSource struct {
	snap *billing.Snapshot
}

func (s *staticSource) FetchSubscription(_ context.Context, externalID string) (*billing.Snapshot, error) {
	cp := *s.snap
	cp.ExternalID = externalID
	return &cp, nil
}

type fixture struct {
	app      *fiber.App
	repos    *repository.Repositories
	funnel   *funnel.Service
	machine  *journey.Machine
	verifier *fakeVerifier
	checkout *fakeCheckout
	source   *staticSource
	queue    *jobqueue.Queue
	trial    *TrialController
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos := repository.NewRepositories(testutil.NewTestDB(t))
	_, client := testutil.NewTestRedis(t)

	guard := security.NewOperatorGuard(operatorKey)
	machine := journey.NewMachine(repos.Journey, repos.TrialGrant, repos.AuditLog)
	manager := trial.NewManager(repos.TrialGrant, machine, guard, "demo-tenant")
	codec, err := security.NewTokenCodec(tokenSecret)
	require.NoError(t, err)
	svc := funnel.NewService(manager, machine, codec, funnel.Options{
		TenantID:     "demo-tenant",
		TrialDays:    3,
		TokenTTL:     time.Hour,
		PublicDomain: "https://funnel.example.com",
	})

	ldg := ledger.New(repos.IngestedEvent)
	stripeVerifier, err := billing.NewStripeVerifier(webhookSecret)
	require.NoError(t, err)
	periodEnd := time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Second)
	source := &staticSource{snap: &billing.Snapshot{Status: "active", CurrentPeriodEnd: &periodEnd}}
	processor := billing.NewProcessor(machine, billing.NewMirror(repos.Subscription), billing.NewRemoteReader(source), 2, time.Millisecond)
	pipeline := billing.NewPipeline(stripeVerifier, ldg)
	processor.Register(pipeline)

	queue := jobqueue.NewQueue(client, 1)
	queue.RegisterHandler(jobqueue.JobTypeChatFollow, line.FollowJobHandler(svc))

	verifier := &fakeVerifier{subject: "U-liff-1"}
	checkout := &fakeCheckout{}

	trialCtl := NewTrialController(svc, verifier)
	adminCtl := NewAdminController(manager, machine, processor, queue)
	stripeCtl := NewStripeController(pipeline, checkout, svc, "price_init", "https://funnel.example.com")
	lineCtl := NewLineController(line.NewWebhookDispatcher(lineChannelSecret, ldg, queue, "demo-tenant"))

	app := fiber.New()
	app.Get("/auth/line/callback", trialCtl.HandleLineLoginCallback)
	app.Post("/api/liff/trial-entry", trialCtl.HandleLIFFTrialEntry)
	app.Get("/api/trial/resolve", trialCtl.HandleTrialResolve)
	app.Get("/api/resolve", middleware.RequireIdentity(security.NewOperatorGuard(proxySecret)), trialCtl.HandleIdentityResolve)
	app.Post("/api/stripe/webhook", stripeCtl.HandleStripeWebhook)
	app.Post("/api/stripe/checkout", stripeCtl.HandleCheckout)
	app.Get("/api/line/webhook", lineCtl.HandleLineWebhookProbe)
	app.Post("/api/line/webhook", lineCtl.HandleLineWebhook)
	admin := app.Group("/api/admin", middleware.RequireOperatorKey(guard))
	admin.Post("/trial/reissue", adminCtl.HandleTrialReissue)
	admin.Get("/journeys/:id/audit", adminCtl.HandleJourneyAudit)
	admin.Get("/queue/stats", adminCtl.HandleQueueStats)
	app.Post("/api/stripe/refresh", middleware.RequireOperatorKey(guard), adminCtl.HandleSubscriptionRefresh)

	return &fixture{
		app:      app,
		repos:    repos,
		funnel:   svc,
		machine:  machine,
		verifier: verifier,
		checkout: checkout,
		source:   source,
		queue:    queue,
		trial:    trialCtl,
	}
}

func (f *fixture) do(t *testing.T, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func jsonRequest(method, target string, body interface{}) *http.Request {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(method, target, bytes.NewReader(payload))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return req
}

func signedStripeRequest(payload string) *http.Request {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    webhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return req
}
