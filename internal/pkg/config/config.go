// Package config collects every setting the service needs into one struct that
// is built once at startup and handed to component constructors.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/TrialFunnel/internal/pkg/env"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	AppEnv  string
	AppHost string `validate:"required"`
	AppPort string `validate:"required,numeric"`

	// PublicDomain is the browser-facing base URL used in redirects.
	PublicDomain    string `validate:"required,url"`
	DefaultTenantID string `validate:"required,max=64"`

	TrialTokenSecret string `validate:"required,min=16"`
	TrialTokenTTL    time.Duration
	TrialDays        int `validate:"gte=1,lte=90"`

	AdminKey string `validate:"required,min=8"`

	// IdentityProxySecret is presented by the authenticating proxy on /api/resolve.
	// Empty disables the identity resolve path.
	IdentityProxySecret string `validate:"omitempty,min=16"`

	// TrustedProxies lists proxy IPs or CIDRs whose ProxyHeader carries the client IP.
	TrustedProxies []string `validate:"dive,ip|cidr"`
	ProxyHeader    string

	StripeSecretKey     string `validate:"required"`
	StripeWebhookSecret string `validate:"required"`
	StripeInitPriceID   string
	RemoteReadAttempts  int `validate:"gte=1,lte=20"`
	RemoteReadDelay     time.Duration

	// LINE Login channel, used for LIFF id tokens and the browser login.
	LineChannelID     string `validate:"required"`
	LineChannelSecret string `validate:"required"`
	// Messaging API channel secret for webhook signatures. Defaults to LineChannelSecret.
	LineMessagingSecret string

	ChatQueueWorkers int `validate:"gte=1,lte=32"`

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	CacheHost     string
	CachePort     string
	CachePassword string
}

// Load reads the environment into a Config and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:  env.GetEnv("APP_ENV", "prod"),
		AppHost: env.GetEnv("APP_HOST", "0.0.0.0"),
		AppPort: env.GetEnv("APP_PORT", "4000"),

		PublicDomain:    strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", "http://localhost:4000"), "/"),
		DefaultTenantID: env.GetEnv("DEFAULT_TENANT_ID", "demo-tenant"),

		TrialTokenSecret: env.GetEnv("TRIAL_TOKEN_SECRET", ""),
		TrialTokenTTL:    time.Duration(env.GetEnvInt("TRIAL_TOKEN_TTL_MINUTES", 60)) * time.Minute,
		TrialDays:        env.GetEnvInt("TRIAL_DAYS", 3),

		AdminKey:            env.GetEnv("ADMIN_KEY", ""),
		IdentityProxySecret: env.GetEnv("IDENTITY_PROXY_SECRET", ""),

		TrustedProxies: splitList(env.GetEnv("TRUSTED_PROXIES", "")),
		ProxyHeader:    env.GetEnv("PROXY_HEADER", "X-Forwarded-For"),

		StripeSecretKey:     env.GetEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeInitPriceID:   env.GetEnv("STRIPE_INIT_PRICE_ID", ""),
		RemoteReadAttempts:  env.GetEnvInt("REMOTE_READ_ATTEMPTS", 5),
		RemoteReadDelay:     time.Duration(env.GetEnvInt("REMOTE_READ_DELAY_MS", 800)) * time.Millisecond,

		LineChannelID:     env.GetEnv("LINE_CHANNEL_ID", ""),
		LineChannelSecret: env.GetEnv("LINE_CHANNEL_SECRET", ""),

		LineMessagingSecret: env.GetEnv("LINE_MESSAGING_CHANNEL_SECRET", ""),

		ChatQueueWorkers: env.GetEnvInt("CHAT_QUEUE_WORKERS", 2),

		DBHost:     env.GetEnv("DB_HOST", "127.0.0.1"),
		DBPort:     env.GetEnv("DB_PORT", "3306"),
		DBUser:     env.GetEnv("DB_USER", ""),
		DBPassword: env.GetEnv("DB_PASSWORD", ""),
		DBName:     env.GetEnv("DB_NAME", ""),

		CacheHost:     env.GetEnv("CACHE_HOST", "localhost"),
		CachePort:     env.GetEnv("CACHE_PORT", "6379"),
		CachePassword: env.GetEnv("CACHE_PASSWORD", ""),
	}

	if cfg.LineMessagingSecret == "" {
		cfg.LineMessagingSecret = cfg.LineChannelSecret
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// MustLoad is Load for process start: a missing secret is fatal.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) Validate() error {
	if c.TrialTokenTTL <= 0 {
		return errors.New("config: TRIAL_TOKEN_TTL_MINUTES must be positive")
	}
	if c.RemoteReadDelay < 0 {
		return errors.New("config: REMOTE_READ_DELAY_MS must not be negative")
	}

	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s(%s)", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("config: invalid settings: %s", strings.Join(fields, ", "))
}

func (c *Config) IsDev() bool {
	return c.AppEnv == "dev"
}

// ListenAddr is the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%s", c.AppHost, c.AppPort)
}
