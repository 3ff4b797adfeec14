package oauth

import (
	"time"

	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/line"
	"github.com/redis/go-redis/v9"
	gothfiber "github.com/shareed2k/goth_fiber"

	"github.com/ManuelReschke/TrialFunnel/internal/pkg/cache"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/config"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/constants"
)

// ProviderLine is the goth provider name for LINE Login.
const ProviderLine = "line"

// sessionDatabase keeps OAuth state apart from the job queue (DB 0) and the rate limiter.
const sessionDatabase = 2

// CallbackURL is where LINE Login sends the browser back to.
func CallbackURL(cfg *config.Config) string {
	return cfg.PublicDomain + constants.AuthRoute + "/" + ProviderLine + "/callback"
}

// Setup registers the LINE Login provider and keeps OAuth state in Redis.
// It is safe to call multiple times; providers will just be re-registered.
func Setup(cfg *config.Config, client *redis.Client) {
	goth.UseProviders(
		line.New(cfg.LineChannelID, cfg.LineChannelSecret, CallbackURL(cfg), "profile", "openid"),
	)

	gothfiber.SessionStore = session.New(session.Config{
		Storage:        cache.NewStorage(client, sessionDatabase),
		KeyLookup:      "cookie:" + gothic.SessionName,
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
		CookieSecure:   !cfg.IsDev(),
		Expiration:     time.Hour,
	})
}
