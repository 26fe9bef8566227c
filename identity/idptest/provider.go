// Package idptest provides an in-process OpenID Connect provider and
// directory for tests. It serves discovery, JWKS, authorize, token,
// end-session and the Graph style /me and /me/memberOf endpoints, and
// signs ID tokens with a throwaway RSA key.
package idptest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	keyID     = "idptest-key-1"
	graphPath = "/v1.0"
)

// User is the identity the provider signs in.
type User struct {
	Subject  string
	ObjectID string
	TenantID string
	Name     string
	Username string
	Email    string
	JobTitle string
	Groups   []string
}

type grant struct {
	clientID      string
	redirectURI   string
	nonce         string
	codeChallenge string
}

// Provider is a fake identity provider plus directory.
type Provider struct {
	Server   *httptest.Server
	ClientID string

	key *rsa.PrivateKey

	mu           sync.Mutex
	user         User
	grants       map[string]grant     // authorization code -> grant
	refresh      map[string]struct{}  // live refresh tokens
	access       map[string]time.Time // access token -> expiry
	tokenTTL     time.Duration
	denyLogin    bool
	failRefresh  bool
	graphStatus  int
	graphCalls   int
	refreshCalls int
	wrongNonce   bool
}

// New starts a provider for clientID. The server is closed with the test.
func New(t testing.TB, clientID string) *Provider {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("idptest: generate key: %v", err)
	}

	p := &Provider{
		ClientID: clientID,
		key:      key,
		user: User{
			Subject:  "subject-1",
			ObjectID: "object-1",
			TenantID: "tenant-1",
			Name:     "Ada Lovelace",
			Username: "ada@example.com",
			Email:    "ada@example.com",
			JobTitle: "Service Desk Analyst",
		},
		grants:   make(map[string]grant),
		refresh:  make(map[string]struct{}),
		access:   make(map[string]time.Time),
		tokenTTL: time.Hour,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", p.discovery)
	mux.HandleFunc("GET /keys", p.jwks)
	mux.HandleFunc("GET /authorize", p.authorizeHandler)
	mux.HandleFunc("POST /token", p.token)
	mux.HandleFunc("GET /logout", p.logout)
	mux.HandleFunc("GET "+graphPath+"/me", p.me)
	mux.HandleFunc("GET "+graphPath+"/me/memberOf", p.memberOf)

	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)
	return p
}

// Issuer is the authority URL to configure the portal with.
func (p *Provider) Issuer() string { return p.Server.URL }

// GraphBaseURL is the directory base URL to configure the portal with.
func (p *Provider) GraphBaseURL() string { return p.Server.URL + graphPath }

// SetUser replaces the identity signed in by subsequent logins.
func (p *Provider) SetUser(u User) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.user = u
}

// SetGroups replaces the signed-in user's group memberships.
func (p *Provider) SetGroups(ids ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.user.Groups = ids
}

// SetTokenTTL sets the lifetime of issued access tokens.
func (p *Provider) SetTokenTTL(ttl time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenTTL = ttl
}

// DenyLogin makes the authorize endpoint answer as if the user cancelled.
func (p *Provider) DenyLogin(deny bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.denyLogin = deny
}

// FailRefresh makes refresh_token grants fail with invalid_grant.
func (p *Provider) FailRefresh(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failRefresh = fail
}

// FailGraph makes the directory answer with status; 0 restores success.
func (p *Provider) FailGraph(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.graphStatus = status
}

// SignWrongNonce makes issued ID tokens carry a nonce the client never sent.
func (p *Provider) SignWrongNonce(wrong bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wrongNonce = wrong
}

// GraphCalls reports how many directory requests were served.
func (p *Provider) GraphCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.graphCalls
}

// RefreshCalls reports how many refresh_token grants were attempted.
func (p *Provider) RefreshCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshCalls
}

// Authorize plays the user's part of the interactive login for an
// authorization URL produced by the client and returns the query the
// provider would redirect back with.
func (p *Provider) Authorize(authURL string) (url.Values, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return nil, err
	}
	return p.authorize(u.Query())
}

func (p *Provider) authorize(q url.Values) (url.Values, error) {
	if q.Get("client_id") != p.ClientID {
		return nil, fmt.Errorf("unknown client %q", q.Get("client_id"))
	}
	if q.Get("response_type") != "code" {
		return nil, fmt.Errorf("unsupported response_type %q", q.Get("response_type"))
	}
	if q.Get("code_challenge_method") != "S256" || q.Get("code_challenge") == "" {
		return nil, fmt.Errorf("missing PKCE challenge")
	}

	out := url.Values{}
	out.Set("state", q.Get("state"))

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.denyLogin {
		out.Set("error", "access_denied")
		out.Set("error_description", "AADSTS65004: User declined to consent to access the app.")
		return out, nil
	}

	code := uuid.NewString()
	p.grants[code] = grant{
		clientID:      q.Get("client_id"),
		redirectURI:   q.Get("redirect_uri"),
		nonce:         q.Get("nonce"),
		codeChallenge: q.Get("code_challenge"),
	}
	out.Set("code", code)
	return out, nil
}

func (p *Provider) discovery(w http.ResponseWriter, _ *http.Request) {
	base := p.Server.URL
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                base,
		"authorization_endpoint":                base + "/authorize",
		"token_endpoint":                        base + "/token",
		"jwks_uri":                              base + "/keys",
		"end_session_endpoint":                  base + "/logout",
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"pairwise"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"code_challenge_methods_supported":      []string{"S256"},
	})
}

func (p *Provider) jwks(w http.ResponseWriter, _ *http.Request) {
	pub := p.key.PublicKey
	writeJSON(w, http.StatusOK, map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"use": "sig",
			"alg": "RS256",
			"kid": keyID,
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

func (p *Provider) authorizeHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirectURI := q.Get("redirect_uri")
	if redirectURI == "" {
		http.Error(w, "missing redirect_uri", http.StatusBadRequest)
		return
	}
	out, err := p.authorize(q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	target, err := url.Parse(redirectURI)
	if err != nil {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}
	target.RawQuery = out.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (p *Provider) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		tokenError(w, "invalid_request", err.Error())
		return
	}
	clientID := r.PostForm.Get("client_id")
	if user, _, ok := r.BasicAuth(); ok {
		clientID, _ = url.QueryUnescape(user)
	}
	if clientID != p.ClientID {
		tokenError(w, "invalid_client", "unknown client")
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		p.exchangeCode(w, r)
	case "refresh_token":
		p.refreshToken(w, r)
	default:
		tokenError(w, "unsupported_grant_type", r.PostForm.Get("grant_type"))
	}
}

func (p *Provider) exchangeCode(w http.ResponseWriter, r *http.Request) {
	code := r.PostForm.Get("code")

	p.mu.Lock()
	g, ok := p.grants[code]
	delete(p.grants, code)
	user := p.user
	wrongNonce := p.wrongNonce
	p.mu.Unlock()

	if !ok {
		tokenError(w, "invalid_grant", "AADSTS70008: authorization code is invalid or expired")
		return
	}
	if r.PostForm.Get("redirect_uri") != g.redirectURI {
		tokenError(w, "invalid_grant", "redirect_uri mismatch")
		return
	}
	sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
	if base64.RawURLEncoding.EncodeToString(sum[:]) != g.codeChallenge {
		tokenError(w, "invalid_grant", "AADSTS501481: code_verifier does not match code_challenge")
		return
	}

	nonce := g.nonce
	if wrongNonce {
		nonce = "not-" + nonce
	}
	idToken, err := p.signIDToken(user, nonce)
	if err != nil {
		tokenError(w, "server_error", err.Error())
		return
	}
	p.issue(w, idToken)
}

func (p *Provider) refreshToken(w http.ResponseWriter, r *http.Request) {
	rt := r.PostForm.Get("refresh_token")

	p.mu.Lock()
	p.refreshCalls++
	_, live := p.refresh[rt]
	fail := p.failRefresh
	if live {
		delete(p.refresh, rt)
	}
	p.mu.Unlock()

	if fail || !live {
		tokenError(w, "invalid_grant", "AADSTS700082: The refresh token has expired due to inactivity.")
		return
	}
	p.issue(w, "")
}

func (p *Provider) issue(w http.ResponseWriter, idToken string) {
	accessToken := "at-" + uuid.NewString()
	refreshToken := "rt-" + uuid.NewString()

	p.mu.Lock()
	ttl := p.tokenTTL
	p.access[accessToken] = time.Now().Add(ttl)
	p.refresh[refreshToken] = struct{}{}
	p.mu.Unlock()

	body := map[string]any{
		"access_token":  accessToken,
		"token_type":    "Bearer",
		"expires_in":    int(ttl.Seconds()),
		"refresh_token": refreshToken,
		"scope":         "openid profile offline_access User.Read GroupMember.Read.All",
	}
	if idToken != "" {
		body["id_token"] = idToken
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, body)
}

func (p *Provider) signIDToken(u User, nonce string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":                p.Server.URL,
		"aud":                p.ClientID,
		"sub":                u.Subject,
		"oid":                u.ObjectID,
		"tid":                u.TenantID,
		"name":               u.Name,
		"preferred_username": u.Username,
		"email":              u.Email,
		"nonce":              nonce,
		"iat":                now.Unix(),
		"nbf":                now.Unix(),
		"exp":                now.Add(time.Hour).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = keyID
	return tok.SignedString(p.key)
}

func (p *Provider) logout(w http.ResponseWriter, r *http.Request) {
	if target := r.URL.Query().Get("post_logout_redirect_uri"); target != "" {
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (p *Provider) me(w http.ResponseWriter, r *http.Request) {
	user, ok := p.graphAuth(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":                user.ObjectID,
		"displayName":       user.Name,
		"mail":              user.Email,
		"userPrincipalName": user.Username,
		"jobTitle":          user.JobTitle,
	})
}

func (p *Provider) memberOf(w http.ResponseWriter, r *http.Request) {
	user, ok := p.graphAuth(w, r)
	if !ok {
		return
	}
	value := make([]map[string]string, 0, len(user.Groups))
	for _, id := range user.Groups {
		value = append(value, map[string]string{
			"@odata.type": "#microsoft.graph.group",
			"id":          id,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"value": value})
}

func (p *Provider) graphAuth(w http.ResponseWriter, r *http.Request) (User, bool) {
	p.mu.Lock()
	p.graphCalls++
	status := p.graphStatus
	user := p.user
	expiry, known := p.access[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
	p.mu.Unlock()

	if !known || time.Now().After(expiry) {
		graphError(w, http.StatusUnauthorized, "InvalidAuthenticationToken", "Access token is empty or expired.")
		return User{}, false
	}
	if status != 0 {
		graphError(w, status, "ServiceUnavailable", "The directory is unavailable.")
		return User{}, false
	}
	return user, true
}

func graphError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

func tokenError(w http.ResponseWriter, code, description string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error":             code,
		"error_description": description,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
