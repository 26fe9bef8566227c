// Package identity is the portal's client for the external OpenID Connect
// provider. It runs the authorization code flow with PKCE on behalf of the
// browser, keeps the resulting tokens server side and reacquires access
// tokens silently with the refresh token.
package identity

import (
	"fmt"

	"github.com/jrsteele09/helpdesk-portal/identity/sessionstore"
)

type (
	Session  = sessionstore.Session
	Identity = sessionstore.Identity
)

// Provider error codes the portal treats as the user backing out of the
// login rather than a fault.
var cancellationCodes = map[string]struct{}{
	"access_denied":        {},
	"consent_required":     {},
	"interaction_required": {},
	"login_required":       {},
}

// Local AuthError codes
const (
	CodeInvalidState        = "invalid_state"
	CodeInvalidRequest      = "invalid_request"
	CodeProviderUnavailable = "provider_unavailable"
	CodeTokenExchange       = "token_exchange_failed"
	CodeInvalidIDToken      = "invalid_id_token"
	CodeSessionStore        = "session_store_failed"
)

// AuthError is the only structured error the identity client hands back to
// its caller: login is user triggered and the user expects feedback.
type AuthError struct {
	Code        string
	Description string
	Cause       error
}

func (e *AuthError) Error() string {
	msg := "authentication failed: " + e.Code
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *AuthError) Unwrap() error {
	return e.Cause
}

// Cancelled reports whether the user (or the provider on the user's behalf)
// abandoned the interactive login.
func (e *AuthError) Cancelled() bool {
	_, ok := cancellationCodes[e.Code]
	return ok
}

// CallbackParams carries the provider's redirect back to the portal.
type CallbackParams struct {
	State            string
	Code             string
	Error            string
	ErrorDescription string
}

// LoginResult is a completed interactive login.
type LoginResult struct {
	Session   Session
	ReturnURL string
}
