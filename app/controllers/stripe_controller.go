package controllers

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TrialFunnel/internal/pkg/apperror"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/billing"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/constants"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/entitlements"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/funnel"
)

// CheckoutCreator opens a hosted checkout session and returns its URL.
type CheckoutCreator interface {
	CreateSession(ctx context.Context, req billing.CheckoutRequest) (string, error)
}

type StripeController struct {
	pipeline     *billing.Pipeline
	checkout     CheckoutCreator
	funnel       *funnel.Service
	priceID      string
	publicDomain string
}

func NewStripeController(pipeline *billing.Pipeline, checkout CheckoutCreator, svc *funnel.Service, priceID, publicDomain string) *StripeController {
	return &StripeController{
		pipeline:     pipeline,
		checkout:     checkout,
		funnel:       svc,
		priceID:      priceID,
		publicDomain: strings.TrimRight(publicDomain, "/"),
	}
}

// HandleStripeWebhook answers 400 for a bad signature, 503 when the delivery
// could not be recorded and 200 otherwise, including when a handler failed.
func (sc *StripeController) HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)

	out, err := sc.pipeline.Ingest(c.UserContext(), rawBody, c.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, apperror.ErrAuthentication) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false, "error": "invalid_signature"})
		}
		log.Errorf("[Billing] Webhook not recorded: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"ok": false, "error": "webhook_persist_failed"})
	}

	return c.JSON(fiber.Map{"ok": true, "duplicate": out.Duplicate})
}

type checkoutRequest struct {
	Token string `json:"token" validate:"required"`
}

// HandleCheckout opens the init-fee checkout for the journey behind a capability token.
func (sc *StripeController) HandleCheckout(c *fiber.Ctx) error {
	var req checkoutRequest
	if err := parseBody(c, &req); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"ok": false, "error": apperror.Code(apperror.ErrTokenInvalid)})
	}

	snap, err := sc.funnel.ResolveToken(c.UserContext(), req.Token)
	if err != nil {
		return respondError(c, err)
	}
	if !entitlements.CanCheckout(snap.Status) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"ok": false, "error": "already_paid"})
	}

	checkoutURL, err := sc.checkout.CreateSession(c.UserContext(), billing.CheckoutRequest{
		JourneyID:  snap.JourneyID,
		PriceID:    sc.priceID,
		SuccessURL: sc.publicDomain + constants.PurchaseSuccessRoute + "?jid=" + url.QueryEscape(snap.JourneyID),
		CancelURL:  sc.publicDomain + constants.TrialPageRoute,
	})
	if err != nil {
		log.Errorf("[Billing] Checkout for journey %s failed: %v", snap.JourneyID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"ok": false, "error": "checkout_failed"})
	}

	return c.JSON(fiber.Map{"ok": true, "url": checkoutURL})
}
