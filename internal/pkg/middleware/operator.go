package middleware

import (
	"strings"

	"github.com/ManuelReschke/TrialFunnel/internal/pkg/security"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// OperatorKeyHeader carries the operator credential on admin routes.
const OperatorKeyHeader = "X-Admin-Key"

// KeyOperatorKey is the Locals key holding the presented operator credential.
const KeyOperatorKey = "OPERATOR_KEY"

// RequireOperatorKey rejects requests that do not present the operator credential.
func RequireOperatorKey(guard *security.OperatorGuard) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := ExtractOperatorKey(c)
		if key == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"ok": false, "error": "unauthorized", "message": "Missing operator key"})
		}
		if !guard.Allows(key) {
			log.Warnf("[Admin] Rejected operator key on %s %s from %s", c.Method(), c.Path(), c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"ok": false, "error": "unauthorized", "message": "Invalid operator key"})
		}
		c.Locals(KeyOperatorKey, key)
		return c.Next()
	}
}

// ExtractOperatorKey reads the operator credential from X-Admin-Key or a bearer token.
func ExtractOperatorKey(c *fiber.Ctx) string {
	key := strings.TrimSpace(c.Get(OperatorKeyHeader))
	if key != "" {
		return key
	}
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
