package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/TrialFunnel/internal/pkg/middleware"
)

func (h ApiRouter) registerAdminRoutes(api fiber.Router) {
	admin := api.Group("/admin", middleware.RequireOperatorKey(h.deps.Operator))

	admin.Post("/trial/reissue", h.deps.Admin.HandleTrialReissue)
	admin.Get("/journeys/:id/audit", h.deps.Admin.HandleJourneyAudit)
	admin.Get("/queue/stats", h.deps.Admin.HandleQueueStats)
}
