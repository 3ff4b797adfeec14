// Package line talks to the LINE platform: LIFF id-token verification and the
// Messaging API webhook.
package line

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuelReschke/TrialFunnel/internal/pkg/apperror"
)

const DefaultVerifyURL = "https://api.line.me/oauth2/v2.1/verify"

// ErrIDTokenRejected means LINE refused the id token (expired, wrong channel, forged).
var ErrIDTokenRejected = errors.New("line: id token rejected")

// Identity is the verified subject behind a LIFF id token.
type Identity struct {
	Subject   string
	Name      string
	ExpiresAt time.Time
}

type verifyResponse struct {
	Issuer   string `json:"iss"`
	Subject  string `json:"sub"`
	Audience string `json:"aud"`
	Expires  int64  `json:"exp"`
	IssuedAt int64  `json:"iat"`
	Name     string `json:"name"`
}

// Verifier checks LIFF id tokens against LINE's verify endpoint.
type Verifier struct {
	ChannelID  string
	VerifyURL  string
	HTTPClient *http.Client
}

func NewVerifier(channelID string) *Verifier {
	return &Verifier{
		ChannelID: strings.TrimSpace(channelID),
		VerifyURL: DefaultVerifyURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// VerifyIDToken returns the identity the token was issued to. Rejections by
// LINE wrap ErrIDTokenRejected; transport failures and 5xx responses wrap
// apperror.ErrUpstreamUnavailable.
func (v *Verifier) VerifyIDToken(ctx context.Context, idToken string) (*Identity, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return nil, fmt.Errorf("empty id token: %w", ErrIDTokenRejected)
	}
	if v.ChannelID == "" {
		return nil, errors.New("LINE_CHANNEL_ID is not configured")
	}

	form := url.Values{}
	form.Set("id_token", idToken)
	form.Set("client_id", v.ChannelID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.VerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := v.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("line verify: %v: %w", err, apperror.ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("line verify: status=%d: %w", resp.StatusCode, apperror.ErrUpstreamUnavailable)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("line verify: status=%d: %w", resp.StatusCode, ErrIDTokenRejected)
	}

	var out verifyResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("line verify: decode response: %w", err)
	}
	if strings.TrimSpace(out.Subject) == "" {
		return nil, fmt.Errorf("line verify: no subject: %w", ErrIDTokenRejected)
	}
	if out.Audience != "" && out.Audience != v.ChannelID {
		return nil, fmt.Errorf("line verify: audience mismatch: %w", ErrIDTokenRejected)
	}

	return &Identity{
		Subject:   out.Subject,
		Name:      out.Name,
		ExpiresAt: time.Unix(out.Expires, 0).UTC(),
	}, nil
}
