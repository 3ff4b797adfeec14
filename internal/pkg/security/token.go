package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/TrialFunnel/internal/pkg/apperror"
	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer is stamped into every capability token and required on verify.
const TokenIssuer = "trialfunnel"

// ErrTokenSecretMissing is returned by NewTokenCodec when no signing secret is configured.
var ErrTokenSecretMissing = errors.New("capability token secret is required")

// JourneyClaims are the application claims a capability token carries.
type JourneyClaims struct {
	JourneyID string `json:"journeyId"`
	TenantID  string `json:"tenantId"`
}

type capabilityClaims struct {
	JourneyClaims
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies short-lived capability tokens for a journey.
// Possession of a valid token authorizes reading and advancing that journey,
// so tokens must never be logged.
type TokenCodec struct {
	secret []byte
	now    func() time.Time
}

// NewTokenCodec builds a codec for the given HS256 secret.
func NewTokenCodec(secret string) (*TokenCodec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrTokenSecretMissing
	}
	return &TokenCodec{secret: []byte(secret), now: time.Now}, nil
}

// WithClock replaces the codec's time source.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	c.now = now
	return c
}

// Issue returns a compact signed token for claims that expires after ttl.
func (c *TokenCodec) Issue(claims JourneyClaims, ttl time.Duration) (string, error) {
	if claims.JourneyID == "" {
		return "", errors.New("capability token needs a journey id")
	}
	if ttl <= 0 {
		return "", errors.New("capability token ttl must be positive")
	}

	now := c.now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, capabilityClaims{
		JourneyClaims: claims,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign capability token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the embedded claims.
// Failures wrap apperror.ErrTokenExpired or apperror.ErrTokenInvalid.
func (c *TokenCodec) Verify(raw string) (*JourneyClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty token: %w", apperror.ErrTokenInvalid)
	}

	claims := &capabilityClaims{}
	parsed, err := jwt.ParseWithClaims(
		raw,
		claims,
		func(t *jwt.Token) (any, error) {
			return c.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperror.ErrTokenExpired
		}
		return nil, fmt.Errorf("%v: %w", err, apperror.ErrTokenInvalid)
	}
	if !parsed.Valid || claims.JourneyID == "" {
		return nil, fmt.Errorf("missing journey claim: %w", apperror.ErrTokenInvalid)
	}

	out := claims.JourneyClaims
	return &out, nil
}
