package server

import (
	"errors"
	"net/http"

	"github.com/jrsteele09/helpdesk-portal/identity"
	"github.com/jrsteele09/helpdesk-portal/role"
	"github.com/rs/zerolog/log"
)

// OAuthCallbackHandler completes the login started by LoginHandler, then
// resolves the role so the first page load already reflects it.
func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// r.FormValue works for both query params and POST form data
		params := identity.CallbackParams{
			State:            r.FormValue("state"),
			Code:             r.FormValue("code"),
			Error:            r.FormValue("error"),
			ErrorDescription: r.FormValue("error_description"),
		}

		result, err := s.identity.CompleteLogin(r.Context(), params)
		if err != nil {
			outcome, code := loginFailure(err)
			s.metrics.LoginAttemptsTotal.WithLabelValues(outcome).Inc()
			log.Err(err).Str("outcome", outcome).Msg("[OAuthCallbackHandler] login failed")
			// Role is left as it was: no session means none.
			redirectWithNotice(w, r, "/", code)
			return
		}

		s.metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
		if previous := sessionIDFromRequest(r); previous != "" && previous != result.Session.ID {
			// The provider end-session URL is not needed: the browser is signed in again.
			_ = s.identity.Logout(r.Context(), previous)
		}
		s.SetSessionCookie(w, result.Session.ID, r, int(s.config.GetMaxSessionAge().Seconds()))

		resolved := s.resolver.Resolve(r.Context(), result.Session.ID)
		log.Info().
			Str("subject", result.Session.Identity.Subject).
			Str("role", resolved.String()).
			Msg("[OAuthCallbackHandler] signed in")

		switch resolved {
		case role.Admin, role.User:
			redirectWithNotice(w, r, result.ReturnURL, noticeSignedIn)
		case role.Unauthorized:
			// The index page renders the blocking notice from the role itself.
			redirectWithNotice(w, r, "/", "")
		default:
			redirectWithNotice(w, r, "/", noticeAccessCheckFailed)
		}
	}
}

func loginFailure(err error) (string, noticeCode) {
	var authErr *identity.AuthError
	if !errors.As(err, &authErr) {
		return "error", noticeLoginFailed
	}
	switch {
	case authErr.Cancelled():
		return "cancelled", noticeLoginCancelled
	case authErr.Code == identity.CodeProviderUnavailable:
		return "provider_unavailable", noticeProviderUnavailable
	default:
		return "failed", noticeLoginFailed
	}
}
