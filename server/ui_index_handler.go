package server

import (
	"net/http"

	"github.com/jrsteele09/helpdesk-portal/role"
	"github.com/rs/zerolog/log"
)

type indexPageData struct {
	AppName   string
	State     portalState
	LoginURL  string
	LogoutURL string
	DemoMode  bool
	DemoRoles []role.Role
}

// IndexHandler renders the portal page
func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := s.resolveState(w, r)

		data := indexPageData{
			AppName:   s.config.GetAppName(),
			State:     state,
			LoginURL:  RouteAuthLogin,
			LogoutURL: RouteAuthLogout,
			DemoMode:  s.config.GetDemoMode() && !state.Authenticated,
			DemoRoles: []role.Role{role.Admin, role.User, role.Unauthorized},
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := s.indexTmpl.Execute(w, data); err != nil {
			log.Err(err).Msg("[IndexHandler] failed to render index")
		}
	}
}
