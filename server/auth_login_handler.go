package server

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// LoginHandler starts the interactive login and sends the browser to the
// provider. Every click starts an independent flow.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		returnURL := safeReturnURL(r.URL.Query().Get("return"))

		authURL, err := s.identity.BeginLogin(r.Context(), returnURL)
		if err != nil {
			log.Err(err).Msg("[LoginHandler] failed to begin login")
			s.metrics.LoginAttemptsTotal.WithLabelValues("provider_unavailable").Inc()
			redirectWithNotice(w, r, "/", noticeProviderUnavailable)
			return
		}

		s.metrics.LoginAttemptsTotal.WithLabelValues("started").Inc()
		http.Redirect(w, r, authURL, http.StatusSeeOther)
	}
}

// LogoutHandler ends the local session and hands the browser to the
// provider's end-session endpoint when it has one. It never fails.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := sessionIDFromRequest(r)
		endSessionURL := s.identity.Logout(r.Context(), sessionID)
		s.ClearSessionCookie(w, r)

		if endSessionURL != "" {
			http.Redirect(w, r, endSessionURL, http.StatusSeeOther)
			return
		}
		redirectWithNotice(w, r, "/", noticeSignedOut)
	}
}
