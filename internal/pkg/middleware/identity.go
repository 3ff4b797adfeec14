package middleware

import (
	"strings"

	"github.com/ManuelReschke/TrialFunnel/internal/pkg/security"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// IdentityHeader is set by the authenticating proxy in front of the service.
const IdentityHeader = "X-Identity-Ref"

// IdentityProxyKeyHeader carries the shared secret proving the request passed the proxy.
const IdentityProxyKeyHeader = "X-Identity-Proxy-Key"

const KeyIdentityRef = "IDENTITY_REF"

// RequireIdentity accepts the identity header only from a caller holding the
// proxy secret. A guard without a configured secret rejects every request.
func RequireIdentity(proxy *security.OperatorGuard) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !proxy.Allows(c.Get(IdentityProxyKeyHeader)) {
			log.Warnf("[Trial] Identity request without valid proxy credential on %s from %s", c.Path(), c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"ok": false, "error": "unauthorized"})
		}

		ref := strings.TrimSpace(c.Get(IdentityHeader))
		if ref == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"ok": false, "error": "login_required"})
		}
		c.Locals(KeyIdentityRef, ref)
		return c.Next()
	}
}

// IdentityRef returns the identity stored by RequireIdentity.
func IdentityRef(c *fiber.Ctx) string {
	if v, ok := c.Locals(KeyIdentityRef).(string); ok {
		return v
	}
	return ""
}
