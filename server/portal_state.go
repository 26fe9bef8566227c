package server

import (
	"context"
	"net/http"

	"github.com/jrsteele09/helpdesk-portal/directory"
	"github.com/jrsteele09/helpdesk-portal/identity"
	"github.com/jrsteele09/helpdesk-portal/role"
	"github.com/jrsteele09/helpdesk-portal/services"
	"github.com/rs/zerolog/log"
)

// portalState is the per-request view of the visitor: who they are, the
// role resolved for them and what they may see.
type portalState struct {
	Authenticated bool
	User          identity.Identity
	Profile       *directory.Profile
	Role          role.Role
	Demo          bool
	Notice        *Notice
	Services      []services.Entry
}

// resolveState runs the page load sequence: restore the session, resolve
// the role against the directory and gate the catalog. It never fails;
// every problem degrades to role none.
func (s *Server) resolveState(w http.ResponseWriter, r *http.Request) portalState {
	sessionID := sessionIDFromRequest(r)
	noticeCode := r.URL.Query().Get(noticeParam)
	state := portalState{Role: role.None}

	if session, ok := s.identity.Initialize(sessionID); ok {
		state.Authenticated = true
		state.User = session.Identity
		state.Role = s.resolver.Resolve(r.Context(), sessionID)

		if state.Role == role.None {
			if s.identity.IsAuthenticated(sessionID) {
				noticeCode = string(noticeAccessCheckFailed)
			} else {
				// Silent reacquisition failed and the session is gone.
				log.Info().Str("subject", session.Identity.Subject).Msg("[resolveState] session ended, signing out")
				state.Authenticated = false
				state.User = identity.Identity{}
				s.ClearSessionCookie(w, r)
				noticeCode = ""
			}
		}
	} else {
		if sessionID != "" {
			s.ClearSessionCookie(w, r)
		}
		if s.config.GetDemoMode() {
			if demoRole, ok := role.Parse(r.URL.Query().Get("role")); ok && demoRole != role.None {
				state.Role = demoRole
				state.Demo = true
			}
		}
	}

	if state.Role.IsAuthorized() {
		state.Profile = s.profile(r.Context(), sessionID)
	}

	state.Notice = noticeFor(state.Role, noticeCode)
	state.Services = s.catalog.Visible(state.Role)
	return state
}

// DisplayName prefers the directory's display name over the ID token's.
func (p portalState) DisplayName() string {
	if p.Profile != nil && p.Profile.DisplayName != "" {
		return p.Profile.DisplayName
	}
	return p.User.DisplayName()
}

// JobTitle is empty when the directory profile is unavailable.
func (p portalState) JobTitle() string {
	if p.Profile == nil {
		return ""
	}
	return p.Profile.JobTitle
}

// profile fetches the directory profile for the banner. Failure only loses
// the extra detail.
func (s *Server) profile(ctx context.Context, sessionID string) *directory.Profile {
	token, ok := s.identity.AccessToken(ctx, sessionID)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.GetDirectoryTimeout())
	defer cancel()

	p, err := s.directory.Me(ctx, token)
	if err != nil {
		log.Err(err).Msg("[profile] directory profile unavailable")
		return nil
	}
	return p
}
