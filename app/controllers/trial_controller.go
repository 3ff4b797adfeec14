package controllers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/markbates/goth"
	gothfiber "github.com/shareed2k/goth_fiber"

	"github.com/ManuelReschke/TrialFunnel/internal/pkg/apperror"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/entitlements"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/funnel"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/journey"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/line"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/middleware"
)

// IDTokenVerifier checks a LIFF id token with LINE.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*line.Identity, error)
}

// TrialController serves trial entry and journey resolution.
type TrialController struct {
	funnel       *funnel.Service
	verifier     IDTokenVerifier
	completeAuth func(c *fiber.Ctx) (goth.User, error)
}

func NewTrialController(svc *funnel.Service, verifier IDTokenVerifier) *TrialController {
	return &TrialController{
		funnel:   svc,
		verifier: verifier,
		completeAuth: func(c *fiber.Ctx) (goth.User, error) {
			return gothfiber.CompleteUserAuth(c)
		},
	}
}

type liffEntryRequest struct {
	IDToken string `json:"idToken" validate:"required"`
}

// HandleLIFFTrialEntry exchanges a LIFF id token for a trial capability link.
func (tc *TrialController) HandleLIFFTrialEntry(c *fiber.Ctx) error {
	var req liffEntryRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, "id_token_required")
	}

	identity, err := tc.verifier.VerifyIDToken(c.UserContext(), req.IDToken)
	if err != nil {
		if errors.Is(err, line.ErrIDTokenRejected) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"ok": false, "error": "reauthenticate"})
		}
		log.Errorf("[Trial] LIFF id token verification failed: %v", err)
		return respondError(c, err)
	}

	entry, err := tc.funnel.Enter(c.UserContext(), identity.Subject)
	if err != nil {
		log.Errorf("[Trial] LIFF entry failed: %v", err)
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"ok": true, "redirectUrl": entry.RedirectURL})
}

// HandleLineLoginCallback completes LINE Login and sends the browser to its trial page.
func (tc *TrialController) HandleLineLoginCallback(c *fiber.Ctx) error {
	u, err := tc.completeAuth(c)
	if err != nil {
		log.Warnf("[Trial] LINE login failed: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false, "error": "reauthenticate"})
	}
	if strings.TrimSpace(u.UserID) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false, "error": "reauthenticate"})
	}

	entry, err := tc.funnel.Enter(c.UserContext(), u.UserID)
	if err != nil {
		log.Errorf("[Trial] LINE login entry failed: %v", err)
		return respondError(c, err)
	}
	return c.Redirect(entry.RedirectURL, fiber.StatusSeeOther)
}

// HandleTrialResolve resolves the journey behind ?token=.
func (tc *TrialController) HandleTrialResolve(c *fiber.Ctx) error {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"ok": false, "error": apperror.Code(apperror.ErrTokenInvalid)})
	}

	snap, err := tc.funnel.ResolveToken(c.UserContext(), token)
	if err != nil {
		if statusFor(err) == fiber.StatusInternalServerError {
			log.Errorf("[Trial] Resolve failed: %v", err)
		}
		return respondError(c, err)
	}
	return c.JSON(resolveResponse(snap))
}

// HandleIdentityResolve resolves, and on first sight enrols, the proxy-authenticated identity.
func (tc *TrialController) HandleIdentityResolve(c *fiber.Ctx) error {
	snap, err := tc.funnel.ResolveIdentity(c.UserContext(), middleware.IdentityRef(c))
	if err != nil {
		log.Errorf("[Trial] Identity resolve failed: %v", err)
		return respondError(c, err)
	}
	return c.JSON(resolveResponse(snap))
}

func resolveResponse(snap *journey.Snapshot) fiber.Map {
	plan := entitlements.ForStatus(snap.Status)
	return fiber.Map{
		"ok":         true,
		"journeyId":  snap.JourneyID,
		"status":     snap.Status,
		"trialEndAt": snap.TrialEndAt,
		"plan":       plan,
		"access":     entitlements.HasAccess(plan),
	}
}
