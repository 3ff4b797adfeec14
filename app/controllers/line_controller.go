package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TrialFunnel/internal/pkg/apperror"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/line"
)

type LineController struct {
	dispatcher *line.WebhookDispatcher
}

func NewLineController(dispatcher *line.WebhookDispatcher) *LineController {
	return &LineController{dispatcher: dispatcher}
}

// HandleLineWebhookProbe answers the console's endpoint check.
func (lc *LineController) HandleLineWebhookProbe(c *fiber.Ctx) error {
	return c.SendString("ok")
}

// HandleLineWebhook records the delivery and queues follow-up work; it does not
// wait for enrolment.
func (lc *LineController) HandleLineWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)

	res, err := lc.dispatcher.Dispatch(c.UserContext(), rawBody, c.Get(line.SignatureHeader))
	if err != nil {
		if errors.Is(err, apperror.ErrAuthentication) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false, "error": "invalid_signature"})
		}
		log.Errorf("[LINE] Webhook not recorded: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"ok": false, "error": "webhook_persist_failed"})
	}

	return c.JSON(fiber.Map{"ok": true, "events": res.Events, "duplicates": res.Duplicates})
}
