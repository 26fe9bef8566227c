package server

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/jrsteele09/helpdesk-portal/directory"
	"github.com/jrsteele09/helpdesk-portal/identity"
	"github.com/jrsteele09/helpdesk-portal/identity/flowstate"
	"github.com/jrsteele09/helpdesk-portal/identity/sessionstore"
	"github.com/jrsteele09/helpdesk-portal/internal/config"
	"github.com/jrsteele09/helpdesk-portal/internal/metrics"
	"github.com/jrsteele09/helpdesk-portal/role"
	"github.com/jrsteele09/helpdesk-portal/services"
	"github.com/rs/zerolog/log"
)

// maxPendingLogins bounds the number of logins started but not yet completed.
const maxPendingLogins = 10000

type Server struct {
	env    string // Environment (e.g., "DEV", "PROD")
	mux    *http.ServeMux
	routes []string
	config config.Config

	identity  *identity.Client
	directory *directory.Client
	resolver  *role.Resolver
	catalog   *services.Catalog
	metrics   *metrics.Metrics
	limiter   *ipRateLimiter

	indexTmpl *template.Template
}

// New wires the identity client, directory, role resolver and service
// catalog from config and registers the routes.
func New(config config.Config) (*Server, error) {
	catalog, err := loadCatalog(config.GetServicesFile())
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to load service catalog: %w", err)
	}

	m := metrics.New()
	httpClient := &http.Client{Timeout: config.GetProviderTimeout()}

	idp, err := identity.New(identity.Options{
		AuthorityURL:          config.GetAuthorityURL(),
		ClientID:              config.GetClientID(),
		ClientSecret:          config.GetClientSecret(),
		RedirectURL:           config.GetRedirectURL(),
		PostLogoutRedirectURL: config.GetPostLogoutRedirectURL(),
		Scopes:                config.GetScopes(),
		HTTPClient:            httpClient,
		MaxSessionAge:         config.GetMaxSessionAge(),
		FlowTimeout:           config.GetAuthFlowTimeout(),
	},
		sessionstore.NewInMemoryRepo(config.GetMaxSessions(), config.GetMaxSessionAge()),
		flowstate.NewInMemoryRepo(maxPendingLogins, config.GetAuthFlowTimeout()),
	)
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to create identity client: %w", err)
	}

	dir, err := directory.New(config.GetGraphBaseURL(), httpClient, m)
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to create directory client: %w", err)
	}

	resolver := role.NewResolver(idp, dir, role.Groups{
		AdminGroupID: config.GetAdminGroupID(),
		UserGroupID:  config.GetUserGroupID(),
	}, config.GetDirectoryTimeout(), m)

	indexTmpl, err := ParseTemplate("index.html")
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to parse index template: %w", err)
	}

	s := &Server{
		env:       config.GetEnv(),
		mux:       http.NewServeMux(),
		config:    config,
		identity:  idp,
		directory: dir,
		resolver:  resolver,
		catalog:   catalog,
		metrics:   m,
		indexTmpl: indexTmpl,
	}
	if config.GetEnableRateLimiting() {
		s.limiter = newIPRateLimiter(config.GetLoginRateLimit(), config.GetLoginRateBurst())
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func loadCatalog(path string) (*services.Catalog, error) {
	if path == "" {
		return services.Default()
	}
	return services.LoadFile(path)
}

// Discover warms up the provider configuration. Failure is not fatal: the
// portal keeps serving and login reports the provider as unavailable.
func (s *Server) Discover(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.GetProviderTimeout())
	defer cancel()
	return s.identity.Discover(ctx)
}

// Close stops background work owned by the server.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			log.Debug().Str("method", parts[0]).Str("path", parts[1]).Msg("route")
		} else {
			log.Debug().Str("path", parts[0]).Msg("route")
		}
	}
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
