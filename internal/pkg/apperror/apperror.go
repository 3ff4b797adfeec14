// Package apperror holds the error taxonomy shared by the trial funnel components.
// Components wrap these sentinels with context; callers match them with errors.Is.
package apperror

import "errors"

var (
	// ErrAuthentication means an inbound webhook carried a missing or bad signature.
	ErrAuthentication = errors.New("webhook authentication failed")
	// ErrUnauthorized means a privileged operation was called without the operator credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound means a referenced journey, grant or subscription does not exist.
	ErrNotFound = errors.New("not found")
	// ErrIllegalTransition means the state machine rejected a move outside its table.
	ErrIllegalTransition = errors.New("illegal journey transition")
	// ErrTokenExpired means a capability token was well-formed and signed but past expiry.
	ErrTokenExpired = errors.New("capability token expired")
	// ErrTokenInvalid means a capability token failed parsing or signature checks.
	ErrTokenInvalid = errors.New("capability token invalid")
	// ErrUpstreamUnavailable means a remote read exhausted its retries.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Code returns the stable error code sent to clients for err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTokenExpired), errors.Is(err, ErrTokenInvalid):
		return "reauthenticate"
	case errors.Is(err, ErrAuthentication):
		return "invalid_signature"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrIllegalTransition):
		return "illegal_transition"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "upstream_unavailable"
	default:
		return "internal_error"
	}
}
