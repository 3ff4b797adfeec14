package controllers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/TrialFunnel/app/models"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/apperror"
)

var validate = validator.New()

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperror.ErrTokenExpired), errors.Is(err, apperror.ErrTokenInvalid):
		return fiber.StatusUnauthorized
	case errors.Is(err, apperror.ErrAuthentication):
		return fiber.StatusBadRequest
	case errors.Is(err, apperror.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, apperror.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, apperror.ErrIllegalTransition), errors.Is(err, models.ErrInvalidTrialWindow):
		return fiber.StatusConflict
	case errors.Is(err, apperror.ErrUpstreamUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{"ok": false, "error": apperror.Code(err)})
}

func badRequest(c *fiber.Ctx, code string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false, "error": code})
}

// parseBody decodes and validates a JSON request body into out.
func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return err
	}
	return validate.Struct(out)
}
