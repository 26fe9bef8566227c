package server

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/helpdesk-portal/role"
	"github.com/rs/zerolog/log"
)

type sessionUser struct {
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	JobTitle string `json:"jobTitle,omitempty"`
}

type sessionService struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	URL         string `json:"url"`
	LaunchURL   string `json:"launchUrl"`
}

type sessionResponse struct {
	Authenticated bool             `json:"authenticated"`
	User          *sessionUser     `json:"user,omitempty"`
	Role          role.Role        `json:"role"`
	Demo          bool             `json:"demo,omitempty"`
	Notice        *Notice          `json:"notice,omitempty"`
	Services      []sessionService `json:"services"`
}

// SessionAPIHandler reports the visitor's session, role and visible
// services as JSON for script clients.
func (s *Server) SessionAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := s.resolveState(w, r)

		resp := sessionResponse{
			Authenticated: state.Authenticated,
			Role:          state.Role,
			Demo:          state.Demo,
			Notice:        state.Notice,
			Services:      make([]sessionService, 0, len(state.Services)),
		}
		if state.Authenticated {
			resp.User = &sessionUser{
				Name:     state.DisplayName(),
				Username: state.User.Username,
				Email:    state.User.Email,
				JobTitle: state.JobTitle(),
			}
		}
		for _, e := range state.Services {
			resp.Services = append(resp.Services, sessionService{
				ID:          e.ID,
				Name:        e.Name,
				Description: e.Description,
				Icon:        e.Icon,
				URL:         e.URL,
				LaunchURL:   launchPath(e.ID),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Err(err).Msg("[SessionAPIHandler] failed to encode response")
		}
	}
}
