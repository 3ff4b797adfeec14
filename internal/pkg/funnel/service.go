// Package funnel ties trial grants, journeys and capability tokens into the
// entry and resolve flows used by the HTTP layer and the chat queue.
package funnel

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ManuelReschke/TrialFunnel/app/models"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/apperror"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/constants"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/journey"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/security"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/trial"
)

type Options struct {
	TenantID     string
	TrialDays    int
	TokenTTL     time.Duration
	PublicDomain string
}

// Entry is the result of a successful trial entry.
type Entry struct {
	Grant       *models.TrialGrant
	Journey     *models.CustomerJourney
	Token       string
	RedirectURL string
}

type Service struct {
	grants  *trial.Manager
	machine *journey.Machine
	codec   *security.TokenCodec
	opts    Options
}

func NewService(grants *trial.Manager, machine *journey.Machine, codec *security.TokenCodec, opts Options) *Service {
	opts.PublicDomain = strings.TrimRight(opts.PublicDomain, "/")
	return &Service{grants: grants, machine: machine, codec: codec, opts: opts}
}

// Bind finds or creates the grant and journey of identityRef.
func (s *Service) Bind(ctx context.Context, identityRef string) (*models.TrialGrant, *models.CustomerJourney, error) {
	identityRef = strings.TrimSpace(identityRef)
	grant, _, err := s.grants.FindOrCreate(ctx, identityRef, s.opts.TenantID, s.opts.TrialDays)
	if err != nil {
		return nil, nil, err
	}

	j, _, err := s.machine.FindOrCreateForGrant(ctx, grant, identityRef)
	if err != nil {
		return nil, nil, err
	}
	return grant, j, nil
}

// Enter binds identityRef and issues a capability token for its journey.
func (s *Service) Enter(ctx context.Context, identityRef string) (*Entry, error) {
	grant, j, err := s.Bind(ctx, identityRef)
	if err != nil {
		return nil, err
	}

	token, err := s.codec.Issue(security.JourneyClaims{JourneyID: j.ID, TenantID: j.TenantID}, s.opts.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issue token for journey %s: %w", j.ID, err)
	}

	return &Entry{
		Grant:       grant,
		Journey:     j,
		Token:       token,
		RedirectURL: s.TrialURL(token),
	}, nil
}

// TrialURL is the trial page link carrying token.
func (s *Service) TrialURL(token string) string {
	return s.opts.PublicDomain + constants.TrialPageRoute + "?token=" + url.QueryEscape(token)
}

// ResolveToken resolves the journey a capability token points at. Token
// failures carry apperror.ErrTokenExpired or apperror.ErrTokenInvalid.
func (s *Service) ResolveToken(ctx context.Context, token string) (*journey.Snapshot, error) {
	claims, err := s.codec.Verify(token)
	if err != nil {
		return nil, err
	}
	if s.opts.TenantID != "" && claims.TenantID != "" && claims.TenantID != s.opts.TenantID {
		return nil, fmt.Errorf("token tenant mismatch: %w", apperror.ErrTokenInvalid)
	}
	return s.machine.Resolve(ctx, journey.ResolveInput{JourneyID: claims.JourneyID})
}

// ResolveIdentity resolves the journey of an authenticated identity, enrolling
// it on first sight.
func (s *Service) ResolveIdentity(ctx context.Context, identityRef string) (*journey.Snapshot, error) {
	_, j, err := s.Bind(ctx, identityRef)
	if err != nil {
		return nil, err
	}
	return s.machine.Resolve(ctx, journey.ResolveInput{JourneyID: j.ID})
}
