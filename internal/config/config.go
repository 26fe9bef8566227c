package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	perrors "github.com/jrsteele09/helpdesk-portal/internal/errors"
)

type Config interface {
	EnvConfig
	IdentityConfig
	SecurityConfig
	CorsConfig
	Validate() error
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetBaseURL() string
	GetLogLevel() string
	GetServicesFile() string
	GetDemoMode() bool
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Identity
	Security
	Cors
}

// New reads the portal configuration from the environment and fills the
// defaults that depend on other values (redirect targets, authority).
func New() (Config, error) {
	c := &mainConfig{}
	if err := env.Parse(c); err != nil {
		return nil, fmt.Errorf("[config New] parse env: %w", err)
	}
	c.applyDefaults()
	return c, nil
}

func (c *mainConfig) applyDefaults() {
	baseURL := strings.TrimRight(c.BaseURL, "/")
	if c.Identity.RedirectURL == "" {
		c.Identity.RedirectURL = baseURL + "/callback"
	}
	if c.Identity.PostLogoutRedirectURL == "" {
		c.Identity.PostLogoutRedirectURL = baseURL + "/"
	}
	if c.Identity.AuthorityURL == "" && c.Identity.TenantID != "" {
		c.Identity.AuthorityURL = fmt.Sprintf(defaultAuthorityFormat, c.Identity.TenantID)
	}
}

// Validate reports every missing required setting at once.
func (c *mainConfig) Validate() error {
	var missing []string
	if c.Identity.ClientID == "" {
		missing = append(missing, clientIDEnvVar)
	}
	if c.Identity.AuthorityURL == "" {
		missing = append(missing, tenantIDEnvVar+" or "+authorityEnvVar)
	}
	if c.Identity.AdminGroupID == "" {
		missing = append(missing, adminGroupEnvVar)
	}
	if c.Identity.UserGroupID == "" {
		missing = append(missing, userGroupEnvVar)
	}
	if len(c.Identity.Scopes) == 0 {
		missing = append(missing, scopesEnvVar)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", perrors.ErrInvalidConfig, strings.Join(missing, ", "))
	}
	if c.Identity.AdminGroupID == c.Identity.UserGroupID {
		return fmt.Errorf("%w: admin and user group ids must differ", perrors.ErrInvalidConfig)
	}
	return nil
}
