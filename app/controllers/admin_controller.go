package controllers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TrialFunnel/internal/pkg/billing"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/jobqueue"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/journey"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/middleware"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/trial"
)

// QueueInspector reads the chat job queue counters.
type QueueInspector interface {
	GetQueueSize(ctx context.Context) (int64, error)
	GetProcessingSize(ctx context.Context) (int64, error)
	GetJobStats(ctx context.Context) (map[jobqueue.JobStatus]int64, error)
}

// AdminController serves the operator endpoints. Routes sit behind
// middleware.RequireOperatorKey.
type AdminController struct {
	trials    *trial.Manager
	machine   *journey.Machine
	processor *billing.Processor
	queue     QueueInspector
}

func NewAdminController(trials *trial.Manager, machine *journey.Machine, processor *billing.Processor, queue QueueInspector) *AdminController {
	return &AdminController{trials: trials, machine: machine, processor: processor, queue: queue}
}

type reissueRequest struct {
	IdentityRef   string `json:"identityRef" validate:"required,max=191"`
	ExtensionDays int    `json:"extensionDays" validate:"gte=0,lte=90"`
}

// HandleTrialReissue extends an identity's trial and reactivates its journey.
func (ac *AdminController) HandleTrialReissue(c *fiber.Ctx) error {
	var req reissueRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, "invalid_request")
	}

	res, err := ac.trials.Reissue(c.UserContext(), middleware.ExtractOperatorKey(c), strings.TrimSpace(req.IdentityRef), req.ExtensionDays)
	if err != nil {
		log.Errorf("[Admin] Trial reissue failed: %v", err)
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"ok":        true,
		"trialId":   res.Grant.ID,
		"journeyId": res.Journey.ID,
		"status":    res.Journey.Status,
		"endAt":     res.Grant.EndAt,
	})
}

// HandleJourneyAudit lists a journey's audit rows oldest first.
func (ac *AdminController) HandleJourneyAudit(c *fiber.Ctx) error {
	id := c.Params("id")
	entries, err := ac.machine.AuditTrail(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "journeyId": id, "entries": entries})
}

type refreshRequest struct {
	SubscriptionID string `json:"subscriptionId" validate:"required"`
}

// HandleSubscriptionRefresh re-reads one subscription from the payment provider.
func (ac *AdminController) HandleSubscriptionRefresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, "subscription_id_required")
	}

	sub, err := ac.processor.Refresh(c.UserContext(), strings.TrimSpace(req.SubscriptionID))
	if err != nil {
		log.Errorf("[Admin] Subscription refresh failed: %v", err)
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "subscription": sub})
}

// HandleQueueStats reports pending, in-flight and per-status job counts of the chat queue.
func (ac *AdminController) HandleQueueStats(c *fiber.Ctx) error {
	ctx := c.UserContext()

	pending, err := ac.queue.GetQueueSize(ctx)
	if err != nil {
		log.Errorf("[Admin] Queue size failed: %v", err)
		return respondError(c, err)
	}
	processing, err := ac.queue.GetProcessingSize(ctx)
	if err != nil {
		log.Errorf("[Admin] Processing size failed: %v", err)
		return respondError(c, err)
	}
	stats, err := ac.queue.GetJobStats(ctx)
	if err != nil {
		log.Errorf("[Admin] Job stats failed: %v", err)
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"ok": true, "pending": pending, "processing": processing, "jobs": stats})
}
