package server

import (
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"
)

func launchPath(id string) string {
	return "/go/" + url.PathEscape(id)
}

// LaunchHandler records a click on a service entry and forwards the browser
// to the entry's form. It does not check the role: hiding entries is the
// only access control the portal offers.
func (s *Server) LaunchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		entry, ok := s.catalog.Lookup(id)
		if !ok {
			http.Error(w, "404 - Service Not Found", http.StatusNotFound)
			return
		}

		evt := log.Info().Str("service", entry.ID).Str("name", entry.Name)
		if user, ok := s.identity.CurrentUser(sessionIDFromRequest(r)); ok {
			evt = evt.Str("subject", user.Subject)
		}
		evt.Msg("[LaunchHandler] service opened")
		s.metrics.ServiceClicksTotal.WithLabelValues(entry.ID).Inc()

		http.Redirect(w, r, entry.URL, http.StatusSeeOther)
	}
}
