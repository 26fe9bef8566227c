package server

import (
	"net/http"
	"net/url"
	"strings"
)

// sessionCookieName holds the opaque portal session id. Tokens never leave
// the server.
const sessionCookieName = "portal_session"

func (s *Server) SetSessionCookie(w http.ResponseWriter, sessionID string, r *http.Request, maxAge int) {
	isSecure := getScheme(r) == "https"

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func (s *Server) ClearSessionCookie(w http.ResponseWriter, r *http.Request) {
	s.SetSessionCookie(w, "", r, -1)
}

func sessionIDFromRequest(r *http.Request) string {
	c, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// safeReturnURL only accepts local absolute paths.
func safeReturnURL(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return "/"
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" {
		return "/"
	}
	return raw
}

// redirectWithNotice sends the browser to target with a notice code the
// index page knows how to render.
func redirectWithNotice(w http.ResponseWriter, r *http.Request, target string, code noticeCode) {
	u, err := url.Parse(safeReturnURL(target))
	if err != nil {
		u = &url.URL{Path: "/"}
	}
	if code != "" {
		q := u.Query()
		q.Set(noticeParam, string(code))
		u.RawQuery = q.Encode()
	}
	http.Redirect(w, r, u.String(), http.StatusSeeOther)
}
