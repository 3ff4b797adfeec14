package router

import (
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/TrialFunnel/app/controllers"
	"github.com/ManuelReschke/TrialFunnel/app/repository"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/billing"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/config"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/funnel"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/jobqueue"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/journey"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/ledger"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/line"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/security"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/trial"
)

// Providers are the outbound clients. Nil fields get the real Stripe and LINE clients.
type Providers struct {
	Subscriptions billing.SubscriptionSource
	Checkout      controllers.CheckoutCreator
	IDTokens      controllers.IDTokenVerifier
}

// Wiring is everything NewDependencies built, including the chat queue the
// caller has to start.
type Wiring struct {
	*Dependencies
	Queue *jobqueue.Queue
}

// NewDependencies builds every component from cfg on top of repos and client.
func NewDependencies(cfg *config.Config, repos *repository.Repositories, client *redis.Client, providers Providers) (*Wiring, error) {
	if providers.Subscriptions == nil {
		providers.Subscriptions = billing.NewStripeSubscriptionSource(cfg.StripeSecretKey)
	}
	if providers.Checkout == nil {
		providers.Checkout = billing.NewStripeCheckout(cfg.StripeSecretKey)
	}
	if providers.IDTokens == nil {
		providers.IDTokens = line.NewVerifier(cfg.LineChannelID)
	}

	guard := security.NewOperatorGuard(cfg.AdminKey)

	codec, err := security.NewTokenCodec(cfg.TrialTokenSecret)
	if err != nil {
		return nil, err
	}
	machine := journey.NewMachine(repos.Journey, repos.TrialGrant, repos.AuditLog)
	manager := trial.NewManager(repos.TrialGrant, machine, guard, cfg.DefaultTenantID)
	svc := funnel.NewService(manager, machine, codec, funnel.Options{
		TenantID:     cfg.DefaultTenantID,
		TrialDays:    cfg.TrialDays,
		TokenTTL:     cfg.TrialTokenTTL,
		PublicDomain: cfg.PublicDomain,
	})

	ldg := ledger.New(repos.IngestedEvent)
	verifier, err := billing.NewStripeVerifier(cfg.StripeWebhookSecret)
	if err != nil {
		return nil, err
	}
	processor := billing.NewProcessor(
		machine,
		billing.NewMirror(repos.Subscription),
		billing.NewRemoteReader(providers.Subscriptions),
		cfg.RemoteReadAttempts,
		cfg.RemoteReadDelay,
	)
	pipeline := billing.NewPipeline(verifier, ldg)
	processor.Register(pipeline)

	queue := jobqueue.NewQueue(client, cfg.ChatQueueWorkers)
	queue.RegisterHandler(jobqueue.JobTypeChatFollow, line.FollowJobHandler(svc))
	dispatcher := line.NewWebhookDispatcher(cfg.LineMessagingSecret, ldg, queue, cfg.DefaultTenantID)

	return &Wiring{
		Dependencies: &Dependencies{
			Config:        cfg,
			Redis:         client,
			Operator:      guard,
			IdentityProxy: security.NewOperatorGuard(cfg.IdentityProxySecret),
			Trial:         controllers.NewTrialController(svc, providers.IDTokens),
			Admin:         controllers.NewAdminController(manager, machine, processor, queue),
			Stripe:        controllers.NewStripeController(pipeline, providers.Checkout, svc, cfg.StripeInitPriceID, cfg.PublicDomain),
			Line:          controllers.NewLineController(dispatcher),
		},
		Queue: queue,
	}, nil
}
