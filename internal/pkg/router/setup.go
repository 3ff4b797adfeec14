package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/TrialFunnel/app/controllers"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/config"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/security"
)

// Router installs a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the built controllers and shared clients the routes need.
type Dependencies struct {
	Config   *config.Config
	Redis    *redis.Client
	Operator *security.OperatorGuard

	// IdentityProxy checks the shared secret of the authenticating proxy.
	IdentityProxy *security.OperatorGuard

	Trial  *controllers.TrialController
	Admin  *controllers.AdminController
	Stripe *controllers.StripeController
	Line   *controllers.LineController
}

// AppConfig is the fiber configuration of the service. With trusted proxies
// configured, c.IP() and therefore the rate limiter see the forwarded client IP.
func AppConfig(cfg *config.Config) fiber.Config {
	fc := fiber.Config{
		AppName:   "trialfunnel",
		BodyLimit: 1 << 20,
	}
	if len(cfg.TrustedProxies) > 0 {
		fc.EnableTrustedProxyCheck = true
		fc.TrustedProxies = cfg.TrustedProxies
		fc.ProxyHeader = cfg.ProxyHeader
		fc.EnableIPValidation = true
	}
	return fc
}

func InstallRouter(app *fiber.App, deps *Dependencies) {
	// HttpRouter first: it registers the OAuth providers the /auth routes use.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
