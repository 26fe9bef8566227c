package identity

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/jrsteele09/helpdesk-portal/identity/flowstate"
	"github.com/jrsteele09/helpdesk-portal/identity/sessionstore"
	perrors "github.com/jrsteele09/helpdesk-portal/internal/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// Options configures the identity client.
type Options struct {
	AuthorityURL          string
	ClientID              string
	ClientSecret          string
	RedirectURL           string
	PostLogoutRedirectURL string
	Scopes                []string
	// HTTPClient is used for discovery, key fetches and token calls.
	HTTPClient *http.Client
	// MaxSessionAge caps a session regardless of token lifetimes.
	MaxSessionAge time.Duration
	// FlowTimeout bounds the time between BeginLogin and CompleteLogin.
	FlowTimeout time.Duration
}

type OidcConfig struct {
	OidcProvider       *oidc.Provider
	OAuth2Config       *oauth2.Config
	OidcVerifier       *oidc.IDTokenVerifier
	EndSessionEndpoint string
}

// Client implements the identity provider contract for many browser
// sessions at once, keyed by the opaque session id in the portal cookie.
type Client struct {
	opts     Options
	sessions sessionstore.Repo
	flows    flowstate.Repo

	oidcLock sync.Mutex
	oidc     *OidcConfig

	refreshes singleflight.Group
}

// New creates the client. Provider discovery is deferred to first use so a
// provider outage at start-up degrades to "logged out" instead of a crash.
func New(opts Options, sessions sessionstore.Repo, flows flowstate.Repo) (*Client, error) {
	if opts.AuthorityURL == "" || opts.ClientID == "" || opts.RedirectURL == "" {
		return nil, fmt.Errorf("[identity New] %w: authority, client id and redirect url are required", perrors.ErrInvalidConfig)
	}
	if !slices.Contains(opts.Scopes, oidc.ScopeOpenID) {
		opts.Scopes = append([]string{oidc.ScopeOpenID}, opts.Scopes...)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.FlowTimeout <= 0 {
		opts.FlowTimeout = 10 * time.Minute
	}
	return &Client{
		opts:     opts,
		sessions: sessions,
		flows:    flows,
	}, nil
}

// Discover loads the provider configuration now. It is safe to call
// repeatedly; the first success is cached.
func (c *Client) Discover(ctx context.Context) error {
	_, err := c.getOidcConfig(ctx)
	return err
}

func (c *Client) getOidcConfig(ctx context.Context) (*OidcConfig, error) {
	c.oidcLock.Lock()
	defer c.oidcLock.Unlock()
	if c.oidc != nil {
		return c.oidc, nil
	}

	provider, err := oidc.NewProvider(c.clientContext(ctx), c.opts.AuthorityURL)
	if err != nil {
		return nil, fmt.Errorf("[identity getOidcConfig] failed to create OIDC provider: %w", err)
	}

	var extra struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := provider.Claims(&extra); err != nil {
		log.Err(err).Msg("[identity getOidcConfig] could not read provider metadata")
	}

	endpoint := provider.Endpoint()
	if c.opts.ClientSecret == "" {
		// Public client: no secret to send in a Basic header.
		endpoint.AuthStyle = oauth2.AuthStyleInParams
	}

	c.oidc = &OidcConfig{
		OidcProvider: provider,
		OAuth2Config: &oauth2.Config{
			ClientID:     c.opts.ClientID,
			ClientSecret: c.opts.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  c.opts.RedirectURL,
			Scopes:       c.opts.Scopes,
		},
		OidcVerifier:       provider.Verifier(&oidc.Config{ClientID: c.opts.ClientID}),
		EndSessionEndpoint: extra.EndSessionEndpoint,
	}
	return c.oidc, nil
}

func (c *Client) clientContext(ctx context.Context) context.Context {
	return oidc.ClientContext(ctx, c.opts.HTTPClient)
}

// Initialize restores the session behind sessionID when one exists and has
// not expired. It never fails; store problems are logged and reported as
// "no session".
func (c *Client) Initialize(sessionID string) (Session, bool) {
	if sessionID == "" {
		return Session{}, false
	}
	s, err := c.sessions.Get(sessionID)
	if err != nil {
		if !perrors.Is(err, perrors.ErrSessionNotFound) {
			log.Err(err).Msg("[identity Initialize] failed to read session")
		}
		return Session{}, false
	}
	if s.Expired(time.Now()) {
		c.destroy(sessionID, "session expired")
		return Session{}, false
	}
	return s, true
}

// IsAuthenticated reports whether sessionID refers to a live session.
func (c *Client) IsAuthenticated(sessionID string) bool {
	_, ok := c.Initialize(sessionID)
	return ok
}

// CurrentUser returns the identity behind sessionID.
func (c *Client) CurrentUser(sessionID string) (Identity, bool) {
	s, ok := c.Initialize(sessionID)
	if !ok {
		return Identity{}, false
	}
	return s.Identity, true
}

// BeginLogin starts the interactive flow and returns the provider URL the
// browser must be sent to.
func (c *Client) BeginLogin(ctx context.Context, returnURL string) (string, error) {
	cfg, err := c.getOidcConfig(ctx)
	if err != nil {
		return "", &AuthError{Code: CodeProviderUnavailable, Cause: err}
	}

	state := uuid.NewString()
	nonce := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	if err := c.flows.Upsert(state, &flowstate.AuthFlowState{
		CodeVerifier: verifier,
		Nonce:        nonce,
		ReturnURL:    returnURL,
		CreatedAt:    time.Now(),
	}); err != nil {
		return "", fmt.Errorf("[identity BeginLogin] failed to store flow state: %w", err)
	}

	return cfg.OAuth2Config.AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		oidc.Nonce(nonce),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	), nil
}

// CompleteLogin finishes the flow started by BeginLogin. Every failure,
// including the user cancelling at the provider, is an *AuthError.
func (c *Client) CompleteLogin(ctx context.Context, p CallbackParams) (LoginResult, error) {
	if p.Error != "" {
		if p.State != "" {
			_ = c.flows.Delete(p.State)
		}
		return LoginResult{}, &AuthError{Code: p.Error, Description: p.ErrorDescription}
	}
	if p.State == "" || p.Code == "" {
		return LoginResult{}, &AuthError{Code: CodeInvalidRequest, Description: "missing code or state parameter"}
	}

	authState, err := c.flows.Take(p.State)
	if err != nil {
		return LoginResult{}, &AuthError{Code: CodeInvalidState, Cause: err}
	}
	if time.Since(authState.CreatedAt) > c.opts.FlowTimeout {
		return LoginResult{}, &AuthError{Code: CodeInvalidState, Cause: perrors.ErrStateExpired}
	}

	cfg, err := c.getOidcConfig(ctx)
	if err != nil {
		return LoginResult{}, &AuthError{Code: CodeProviderUnavailable, Cause: err}
	}

	ctx = c.clientContext(ctx)
	token, err := cfg.OAuth2Config.Exchange(ctx, p.Code, oauth2.VerifierOption(authState.CodeVerifier))
	if err != nil {
		ae := &AuthError{Code: CodeTokenExchange, Cause: err}
		var re *oauth2.RetrieveError
		if perrors.As(err, &re) && re.ErrorCode != "" {
			ae.Code = re.ErrorCode
			ae.Description = re.ErrorDescription
		}
		return LoginResult{}, ae
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return LoginResult{}, &AuthError{Code: CodeInvalidIDToken, Cause: perrors.ErrMissingIDToken}
	}

	idToken, err := cfg.OidcVerifier.Verify(ctx, rawIDToken)
	if err != nil {
		return LoginResult{}, &AuthError{Code: CodeInvalidIDToken, Cause: err}
	}

	var claims struct {
		Nonce             string `json:"nonce"`
		Sub               string `json:"sub"`
		Oid               string `json:"oid"`
		Tid               string `json:"tid"`
		Name              string `json:"name"`
		PreferredUsername string `json:"preferred_username"`
		Email             string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return LoginResult{}, &AuthError{Code: CodeInvalidIDToken, Cause: err}
	}
	if claims.Nonce != authState.Nonce {
		return LoginResult{}, &AuthError{Code: CodeInvalidIDToken, Cause: perrors.ErrNonceMismatch}
	}

	now := time.Now()
	session := Session{
		ID: uuid.NewString(),
		Identity: Identity{
			Subject:  claims.Sub,
			ObjectID: claims.Oid,
			TenantID: claims.Tid,
			Name:     claims.Name,
			Username: claims.PreferredUsername,
			Email:    claims.Email,
		},
		Token:     token,
		Scopes:    cfg.OAuth2Config.Scopes,
		CreatedAt: now,
	}
	if c.opts.MaxSessionAge > 0 {
		session.ExpiresAt = now.Add(c.opts.MaxSessionAge)
	}

	if err := c.sessions.Upsert(session.ID, session); err != nil {
		return LoginResult{}, &AuthError{Code: CodeSessionStore, Cause: err}
	}

	log.Info().Str("subject", claims.Sub).Str("username", claims.PreferredUsername).Msg("[identity CompleteLogin] signed in")
	return LoginResult{Session: session, ReturnURL: authState.ReturnURL}, nil
}

// AccessToken returns a usable access token for sessionID, refreshing it
// silently when the cached one has expired. Any failure reports false and a
// failed refresh ends the session; it never falls back to an interactive
// login on its own.
func (c *Client) AccessToken(ctx context.Context, sessionID string) (string, bool) {
	s, ok := c.Initialize(sessionID)
	if !ok || s.Token == nil {
		return "", false
	}
	if s.Token.Valid() {
		return s.Token.AccessToken, true
	}

	// Providers rotate refresh tokens, so one refresh per session at a time.
	v, err, _ := c.refreshes.Do(sessionID, func() (any, error) {
		return c.refresh(ctx, sessionID)
	})
	if err != nil {
		return "", false
	}
	return v.(string), true
}

// refresh re-reads the session under the per-session guard: a refresh that
// finished while this caller waited has already stored a fresh token.
func (c *Client) refresh(ctx context.Context, sessionID string) (string, error) {
	s, ok := c.Initialize(sessionID)
	if !ok || s.Token == nil {
		return "", perrors.ErrSessionNotFound
	}
	if s.Token.Valid() {
		return s.Token.AccessToken, nil
	}
	if s.Token.RefreshToken == "" {
		c.destroy(sessionID, perrors.ErrNoRefreshToken.Error())
		return "", perrors.ErrNoRefreshToken
	}

	cfg, err := c.getOidcConfig(ctx)
	if err != nil {
		log.Err(err).Msg("[identity AccessToken] provider unavailable")
		return "", err
	}

	token, err := cfg.OAuth2Config.TokenSource(c.clientContext(ctx), s.Token).Token()
	if err != nil {
		log.Err(err).Str("subject", s.Identity.Subject).Msg("[identity AccessToken] silent token reacquisition failed")
		c.destroy(sessionID, "refresh failed")
		return "", err
	}

	s.Token = token
	if err := c.sessions.Upsert(sessionID, s); err != nil {
		log.Err(err).Msg("[identity AccessToken] failed to store refreshed token")
	}
	return token.AccessToken, nil
}

// Logout ends the session behind sessionID and returns the provider's
// end-session URL, or "" when there is nothing to redirect to. It is a
// no-op without a session and never fails the caller.
func (c *Client) Logout(ctx context.Context, sessionID string) string {
	s, ok := c.Initialize(sessionID)
	if !ok {
		return ""
	}
	c.destroy(sessionID, "logout")

	cfg, err := c.getOidcConfig(ctx)
	if err != nil {
		log.Err(err).Msg("[identity Logout] provider unavailable, local logout only")
		return ""
	}
	if cfg.EndSessionEndpoint == "" {
		return ""
	}

	u, err := url.Parse(cfg.EndSessionEndpoint)
	if err != nil {
		log.Err(err).Str("endpoint", cfg.EndSessionEndpoint).Msg("[identity Logout] invalid end_session_endpoint")
		return ""
	}
	q := u.Query()
	q.Set("client_id", c.opts.ClientID)
	if c.opts.PostLogoutRedirectURL != "" {
		q.Set("post_logout_redirect_uri", c.opts.PostLogoutRedirectURL)
	}
	if s.Identity.Username != "" {
		q.Set("logout_hint", s.Identity.Username)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) destroy(sessionID, reason string) {
	if err := c.sessions.Delete(sessionID); err != nil {
		log.Err(err).Str("reason", reason).Msg("[identity destroy] failed to delete session")
		return
	}
	log.Debug().Str("reason", reason).Msg("[identity destroy] session ended")
}
