package server_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/helpdesk-portal/identity/idptest"
	"github.com/jrsteele09/helpdesk-portal/internal/config"
	"github.com/jrsteele09/helpdesk-portal/server"
	"github.com/stretchr/testify/require"
)

const (
	testClientID = "helpdesk-portal"
	adminGroup   = "11111111-aaaa-4000-8000-000000000001"
	userGroup    = "22222222-bbbb-4000-8000-000000000002"
)

var (
	allNames   = []string{"Hardware Request", "Software Installation", "Access Request", "Password Reset", "Report an Issue"}
	adminNames = []string{"New Starter Onboarding", "Leaver Offboarding", "Asset Audit"}
)

type portal struct {
	idp    *idptest.Provider
	ts     *httptest.Server
	client *http.Client
}

func newPortal(t *testing.T, env map[string]string) *portal {
	t.Helper()

	idp := idptest.New(t, testClientID)

	var handler http.Handler
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)

	t.Setenv("ENV", "TEST")
	t.Setenv("BASE_URL", ts.URL)
	t.Setenv("PORTAL_CLIENT_ID", testClientID)
	t.Setenv("PORTAL_TENANT_ID", "tenant-1")
	t.Setenv("PORTAL_AUTHORITY_URL", idp.Issuer())
	t.Setenv("PORTAL_GRAPH_BASE_URL", idp.GraphBaseURL())
	t.Setenv("PORTAL_ADMIN_GROUP_ID", adminGroup)
	t.Setenv("PORTAL_USER_GROUP_ID", userGroup)
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg, err := config.New()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	srv, err := server.New(cfg)
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	handler = srv

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &portal{idp: idp, ts: ts, client: &http.Client{Jar: jar, Timeout: 10 * time.Second}}
}

// get follows redirects and returns the final response body.
func (p *portal) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := p.client.Get(p.ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (p *portal) login(t *testing.T) (*http.Response, string) {
	t.Helper()
	return p.get(t, server.RouteAuthLogin)
}

// noRedirect returns a client sharing the portal's cookies that stops at
// the first response.
func (p *portal) noRedirect() *http.Client {
	return &http.Client{
		Jar: p.client.Jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (p *portal) session(t *testing.T) sessionJSON {
	t.Helper()
	resp, body := p.get(t, server.RouteAPISession)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out sessionJSON
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	return out
}

type sessionJSON struct {
	Authenticated bool `json:"authenticated"`
	User          *struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		JobTitle string `json:"jobTitle"`
	} `json:"user"`
	Role   string `json:"role"`
	Notice *struct {
		Kind     string `json:"kind"`
		Blocking bool   `json:"blocking"`
	} `json:"notice"`
	Services []struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		URL       string `json:"url"`
		LaunchURL string `json:"launchUrl"`
	} `json:"services"`
}

func countServices(body string) int {
	return strings.Count(body, `class="service"`)
}

func TestIndex_Anonymous(t *testing.T) {
	p := newPortal(t, nil)

	resp, body := p.get(t, "/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, `id="login"`)
	require.Zero(t, countServices(body))
	require.Zero(t, p.idp.GraphCalls(), "no session means no directory call")
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
}

func TestLogin_RoleGatesServices(t *testing.T) {
	tests := []struct {
		name        string
		groups      []string
		wantEntries []string
		hidden      []string
	}{
		{name: "admin sees everything", groups: []string{adminGroup}, wantEntries: append(append([]string{}, allNames...), adminNames...)},
		{name: "admin wins ties", groups: []string{userGroup, adminGroup}, wantEntries: append(append([]string{}, allNames...), adminNames...)},
		{name: "user sees shared entries", groups: []string{"other", userGroup}, wantEntries: allNames, hidden: adminNames},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPortal(t, nil)
			p.idp.SetGroups(tt.groups...)

			resp, body := p.login(t)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			require.Equal(t, "signed-in", resp.Request.URL.Query().Get("notice"))
			require.Contains(t, body, "Signed in successfully.")
			require.Contains(t, body, "Ada Lovelace")
			require.Contains(t, body, "Service Desk Analyst")
			require.Contains(t, body, `id="logout"`)

			require.Equal(t, len(tt.wantEntries), countServices(body))
			for _, name := range tt.wantEntries {
				require.Contains(t, body, name)
			}
			for _, name := range tt.hidden {
				require.NotContains(t, body, name)
			}
		})
	}
}

func TestLogin_UnauthorizedShowsBlockingNotice(t *testing.T) {
	p := newPortal(t, nil)
	p.idp.SetGroups()

	resp, body := p.login(t)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, `id="unauthorized"`)
	require.Contains(t, body, "You are not authorized to use this portal.")
	require.Zero(t, countServices(body))

	s := p.session(t)
	require.True(t, s.Authenticated)
	require.Equal(t, "unauthorized", s.Role)
	require.NotNil(t, s.Notice)
	require.True(t, s.Notice.Blocking)
	require.Empty(t, s.Services)
}

func TestLogin_Cancelled(t *testing.T) {
	p := newPortal(t, nil)
	p.idp.SetGroups(adminGroup)
	p.idp.DenyLogin(true)

	resp, body := p.login(t)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "login-cancelled", resp.Request.URL.Query().Get("notice"))
	require.Contains(t, body, "Sign-in was cancelled.")
	require.Contains(t, body, `id="login"`)
	require.Zero(t, countServices(body))
	require.Zero(t, p.idp.GraphCalls())
}

func TestCallback_UnknownState(t *testing.T) {
	p := newPortal(t, nil)

	resp, body := p.get(t, server.RouteCallback+"?state=forged&code=abc")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "login-failed", resp.Request.URL.Query().Get("notice"))
	require.Contains(t, body, "Sign-in failed. Please try again.")
	require.Zero(t, countServices(body))
}

func TestIndex_DirectoryFailureDegradesToNone(t *testing.T) {
	p := newPortal(t, nil)
	p.idp.SetGroups(adminGroup)
	p.login(t)

	p.idp.FailGraph(http.StatusServiceUnavailable)
	resp, body := p.get(t, "/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "We could not check your access right now.")
	require.Contains(t, body, `id="logout"`, "session survives a directory outage")
	require.Zero(t, countServices(body))

	p.idp.FailGraph(0)
	_, body = p.get(t, "/")
	require.Equal(t, len(allNames)+len(adminNames), countServices(body))
}

func TestIndex_ProfileFromDirectory(t *testing.T) {
	p := newPortal(t, nil)
	p.idp.SetUser(idptest.User{
		Subject:  "subject-2",
		ObjectID: "object-2",
		Name:     "G. Hopper",
		Username: "grace@example.com",
		Email:    "grace@example.com",
		JobTitle: "Rear Admiral",
	})
	p.idp.SetGroups(adminGroup)

	_, body := p.login(t)
	require.Contains(t, body, `<span class="job-title">Rear Admiral</span>`)

	p.idp.SetUser(idptest.User{Subject: "subject-3", ObjectID: "object-3", Name: "No Title"})
	p.idp.SetGroups(adminGroup)
	_, body = p.login(t)
	require.Contains(t, body, "No Title")
	require.NotContains(t, body, `class="job-title"`)
}

func TestIndex_RefreshFailureSignsOut(t *testing.T) {
	p := newPortal(t, nil)
	p.idp.SetGroups(userGroup)
	p.idp.SetTokenTTL(5 * time.Second)
	p.login(t)

	p.idp.FailRefresh(true)
	_, body := p.get(t, "/")
	require.Contains(t, body, `id="login"`)
	require.Zero(t, countServices(body))

	s := p.session(t)
	require.False(t, s.Authenticated)
	require.Equal(t, "none", s.Role)
}

func TestIndex_SilentRefresh(t *testing.T) {
	p := newPortal(t, nil)
	p.idp.SetGroups(userGroup)
	p.idp.SetTokenTTL(5 * time.Second)
	p.login(t)
	before := p.idp.RefreshCalls()

	_, body := p.get(t, "/")
	require.Equal(t, len(allNames), countServices(body))
	require.Greater(t, p.idp.RefreshCalls(), before)
}

func TestSessionAPI_ConcurrentRefresh(t *testing.T) {
	p := newPortal(t, nil)
	p.idp.SetGroups(userGroup)
	p.idp.SetTokenTTL(5 * time.Second)
	p.login(t)

	const callers = 4
	roles := make([]string, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := p.client.Get(p.ts.URL + server.RouteAPISession)
			if err != nil {
				return
			}
			defer resp.Body.Close()
			var out sessionJSON
			if json.NewDecoder(resp.Body).Decode(&out) == nil {
				roles[i] = out.Role
			}
		}(i)
	}
	wg.Wait()

	for i, r := range roles {
		require.Equal(t, "user", r, "request %d", i)
	}

	s := p.session(t)
	require.True(t, s.Authenticated)
	require.Equal(t, "user", s.Role)
}

func TestLogout(t *testing.T) {
	p := newPortal(t, nil)
	p.idp.SetGroups(userGroup)
	p.login(t)

	resp, err := p.client.PostForm(p.ts.URL+server.RouteAuthLogout, url.Values{})
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, p.ts.URL+"/", resp.Request.URL.String())
	require.Contains(t, string(body), `id="login"`)
	require.Zero(t, countServices(string(body)))

	// A second logout without a session is a local no-op.
	resp2, err := p.client.PostForm(p.ts.URL+server.RouteAuthLogout, url.Values{})
	require.NoError(t, err)
	body2, err := io.ReadAll(resp2.Body)
	require.NoError(t, err)
	resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	require.Equal(t, "signed-out", resp2.Request.URL.Query().Get("notice"))
	require.Contains(t, string(body2), "You have been signed out.")
}

func TestLogout_GetNotAllowed(t *testing.T) {
	p := newPortal(t, nil)
	p.idp.SetGroups(userGroup)
	p.login(t)

	resp, err := p.noRedirect().Get(p.ts.URL + server.RouteAuthLogout)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	s := p.session(t)
	require.True(t, s.Authenticated, "a cross-site GET must not end the session")
}

func (p *portal) sessionCookie(t *testing.T) string {
	t.Helper()
	u, err := url.Parse(p.ts.URL)
	require.NoError(t, err)
	for _, c := range p.client.Jar.Cookies(u) {
		if c.Name == "portal_session" {
			return c.Value
		}
	}
	return ""
}

func TestLogin_ReplacesPreviousSession(t *testing.T) {
	p := newPortal(t, nil)
	p.idp.SetGroups(userGroup)
	p.login(t)
	previous := p.sessionCookie(t)
	require.NotEmpty(t, previous)

	p.login(t)
	current := p.sessionCookie(t)
	require.NotEmpty(t, current)
	require.NotEqual(t, previous, current)

	req, err := http.NewRequest(http.MethodGet, p.ts.URL+server.RouteAPISession, nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: "portal_session", Value: previous})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out sessionJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.False(t, out.Authenticated, "the replaced session is gone server side")
}

func TestLogin_ReturnURL(t *testing.T) {
	p := newPortal(t, nil)
	p.idp.SetGroups(userGroup)

	resp, _ := p.get(t, server.RouteAuthLogin+"?return="+url.QueryEscape("/?from=mail"))
	require.Equal(t, "/", resp.Request.URL.Path)
	require.Equal(t, "mail", resp.Request.URL.Query().Get("from"))

	resp, _ = p.get(t, server.RouteAuthLogin+"?return="+url.QueryEscape("https://evil.example.com/"))
	require.Equal(t, p.ts.URL+"/?notice=signed-in", resp.Request.URL.String())
}

func TestSessionAPI(t *testing.T) {
	p := newPortal(t, map[string]string{"PORTAL_ALLOWED_ORIGINS": "https://intranet.example.com"})

	s := p.session(t)
	require.False(t, s.Authenticated)
	require.Nil(t, s.User)
	require.Equal(t, "none", s.Role)
	require.Empty(t, s.Services)

	p.idp.SetGroups(userGroup)
	p.login(t)

	s = p.session(t)
	require.True(t, s.Authenticated)
	require.Equal(t, "Ada Lovelace", s.User.Name)
	require.Equal(t, "ada@example.com", s.User.Email)
	require.Equal(t, "Service Desk Analyst", s.User.JobTitle)
	require.Equal(t, "user", s.Role)
	require.Len(t, s.Services, len(allNames))
	require.Equal(t, "hardware-request", s.Services[0].ID)
	require.Equal(t, "/go/hardware-request", s.Services[0].LaunchURL)

	req, err := http.NewRequest(http.MethodGet, p.ts.URL+server.RouteAPISession, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://intranet.example.com")
	resp, err := p.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, "https://intranet.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))

	req.Header.Set("Origin", "https://elsewhere.example.com")
	resp, err = p.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestSessionAPI_Preflight(t *testing.T) {
	p := newPortal(t, map[string]string{"PORTAL_ALLOWED_ORIGINS": "https://intranet.example.com"})

	req, err := http.NewRequest(http.MethodOptions, p.ts.URL+server.RouteAPISession, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://intranet.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := p.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "GET, OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"))
}

func TestLaunch_TracksClick(t *testing.T) {
	p := newPortal(t, nil)

	resp, err := p.noRedirect().Get(p.ts.URL + "/go/password-reset")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "https://forms.office.com/r/password-reset", resp.Header.Get("Location"))

	resp, err = p.noRedirect().Get(p.ts.URL + "/go/unknown")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, metrics := p.get(t, server.RouteMetrics)
	require.Contains(t, metrics, `portal_service_clicks_total{service="password-reset"} 1`)
}

func TestMetrics_CountsLogins(t *testing.T) {
	p := newPortal(t, nil)
	p.idp.SetGroups(adminGroup)
	p.login(t)

	_, metrics := p.get(t, server.RouteMetrics)
	require.Contains(t, metrics, `portal_login_attempts_total{outcome="started"} 1`)
	require.Contains(t, metrics, `portal_login_attempts_total{outcome="success"} 1`)
	require.Contains(t, metrics, `portal_role_resolutions_total{role="admin"}`)
	require.Contains(t, metrics, `portal_http_requests_total{method="GET",route="GET /callback",status="303"} 1`)
}

func TestLogin_RateLimited(t *testing.T) {
	p := newPortal(t, map[string]string{
		"PORTAL_LOGIN_RATE":  "0.001",
		"PORTAL_LOGIN_BURST": "1",
	})

	resp, err := p.noRedirect().Get(p.ts.URL + server.RouteAuthLogin)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp, err = p.noRedirect().Get(p.ts.URL + server.RouteAuthLogin)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestLogin_ProviderUnavailable(t *testing.T) {
	p := newPortal(t, nil)
	p.idp.Server.Close()

	resp, body := p.login(t)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "provider-unavailable", resp.Request.URL.Query().Get("notice"))
	require.Contains(t, body, "The sign-in service is currently unavailable.")
}

func TestIndex_DemoMode(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		p := newPortal(t, map[string]string{"PORTAL_DEMO_MODE": "true"})

		_, body := p.get(t, "/?role=user")
		require.Equal(t, len(allNames), countServices(body))
		require.Contains(t, body, `class="demo"`)

		_, body = p.get(t, "/?role=admin")
		require.Equal(t, len(allNames)+len(adminNames), countServices(body))

		_, body = p.get(t, "/?role=unauthorized")
		require.Contains(t, body, `id="unauthorized"`)
		require.Zero(t, countServices(body))
	})

	t.Run("disabled ignores role", func(t *testing.T) {
		p := newPortal(t, nil)
		_, body := p.get(t, "/?role=admin")
		require.Zero(t, countServices(body))
		require.NotContains(t, body, `class="demo"`)
	})
}

func TestIndex_UnknownNoticeIgnored(t *testing.T) {
	p := newPortal(t, nil)
	_, body := p.get(t, "/?notice="+url.QueryEscape("<script>alert(1)</script>"))
	require.NotContains(t, body, "alert(1)")
	require.NotContains(t, body, `class="notice`)
}

func TestHealthAndStatic(t *testing.T) {
	p := newPortal(t, nil)

	resp, body := p.get(t, server.RouteHealth)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", body)

	resp, body = p.get(t, "/css/portal.css")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/css")
	require.Contains(t, body, ".services")

	resp, _ = p.get(t, "/css/missing.css")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
