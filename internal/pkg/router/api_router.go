package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/TrialFunnel/internal/pkg/cache"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/middleware"
)

// limiterDatabase is the Redis database holding rate-limit counters.
const limiterDatabase = 3

type ApiRouter struct {
	deps *Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	limited := limiter.New(limiter.Config{
		Max:        30,
		Expiration: time.Minute,
		Storage:    cache.NewStorage(h.deps.Redis, limiterDatabase),
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"ok": false, "error": "rate_limited"})
		},
	})

	api := app.Group("/api")

	// Trial entry and resolution
	api.Post("/liff/trial-entry", limited, h.deps.Trial.HandleLIFFTrialEntry)
	api.Get("/trial/resolve", limited, h.deps.Trial.HandleTrialResolve)
	api.Get("/resolve", limited, middleware.RequireIdentity(h.deps.IdentityProxy), h.deps.Trial.HandleIdentityResolve)

	// Payment
	api.Post("/stripe/checkout", limited, h.deps.Stripe.HandleCheckout)
	api.Post("/stripe/refresh", middleware.RequireOperatorKey(h.deps.Operator), h.deps.Admin.HandleSubscriptionRefresh)

	// Provider webhooks (signature-verified in controller, never rate limited)
	api.Post("/stripe/webhook", h.deps.Stripe.HandleStripeWebhook)
	api.Get("/line/webhook", h.deps.Line.HandleLineWebhookProbe)
	api.Post("/line/webhook", h.deps.Line.HandleLineWebhook)

	h.registerAdminRoutes(api)
}

func NewApiRouter(deps *Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
