package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	gothfiber "github.com/shareed2k/goth_fiber"

	"github.com/ManuelReschke/TrialFunnel/internal/pkg/constants"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/middleware"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/oauth"
)

type HttpRouter struct {
	deps *Dependencies
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init oauth providers
	oauth.Setup(h.deps.Config, h.deps.Redis)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})

	app.Get("/metrics", middleware.RequireOperatorKey(h.deps.Operator), adaptor.HTTPHandler(promhttp.Handler()))

	// LINE Login
	app.Get(constants.AuthRoute+"/:provider", gothfiber.BeginAuthHandler)
	app.Get(constants.AuthRoute+"/:provider/callback", h.deps.Trial.HandleLineLoginCallback)
}

func NewHttpRouter(deps *Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}
