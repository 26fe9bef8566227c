package config

import "time"

const (
	clientIDEnvVar   = "PORTAL_CLIENT_ID"
	tenantIDEnvVar   = "PORTAL_TENANT_ID"
	authorityEnvVar  = "PORTAL_AUTHORITY_URL"
	adminGroupEnvVar = "PORTAL_ADMIN_GROUP_ID"
	userGroupEnvVar  = "PORTAL_USER_GROUP_ID"
	scopesEnvVar     = "PORTAL_SCOPES"

	defaultAuthorityFormat = "https://login.microsoftonline.com/%s/v2.0"
)

type IdentityConfig interface {
	GetClientID() string
	GetClientSecret() string
	GetTenantID() string
	GetAuthorityURL() string
	GetRedirectURL() string
	GetPostLogoutRedirectURL() string
	GetScopes() []string
	GetAdminGroupID() string
	GetUserGroupID() string
	GetGraphBaseURL() string
	GetDirectoryTimeout() time.Duration
	GetProviderTimeout() time.Duration
}

// Identity holds the external identity provider and directory settings.
type Identity struct {
	ClientID              string        `env:"PORTAL_CLIENT_ID"`
	ClientSecret          string        `env:"PORTAL_CLIENT_SECRET"`
	TenantID              string        `env:"PORTAL_TENANT_ID"`
	AuthorityURL          string        `env:"PORTAL_AUTHORITY_URL"`
	RedirectURL           string        `env:"PORTAL_REDIRECT_URL"`
	PostLogoutRedirectURL string        `env:"PORTAL_POST_LOGOUT_URL"`
	Scopes                []string      `env:"PORTAL_SCOPES" envSeparator:"," envDefault:"openid,profile,offline_access,User.Read,GroupMember.Read.All"`
	AdminGroupID          string        `env:"PORTAL_ADMIN_GROUP_ID"`
	UserGroupID           string        `env:"PORTAL_USER_GROUP_ID"`
	GraphBaseURL          string        `env:"PORTAL_GRAPH_BASE_URL" envDefault:"https://graph.microsoft.com/v1.0"`
	DirectoryTimeout      time.Duration `env:"PORTAL_DIRECTORY_TIMEOUT" envDefault:"10s"`
	ProviderTimeout       time.Duration `env:"PORTAL_PROVIDER_TIMEOUT" envDefault:"15s"`
}

var _ IdentityConfig = Identity{}

func (i Identity) GetClientID() string                { return i.ClientID }
func (i Identity) GetClientSecret() string            { return i.ClientSecret }
func (i Identity) GetTenantID() string                { return i.TenantID }
func (i Identity) GetAuthorityURL() string            { return i.AuthorityURL }
func (i Identity) GetRedirectURL() string             { return i.RedirectURL }
func (i Identity) GetPostLogoutRedirectURL() string   { return i.PostLogoutRedirectURL }
func (i Identity) GetAdminGroupID() string            { return i.AdminGroupID }
func (i Identity) GetUserGroupID() string             { return i.UserGroupID }
func (i Identity) GetGraphBaseURL() string            { return i.GraphBaseURL }
func (i Identity) GetDirectoryTimeout() time.Duration { return i.DirectoryTimeout }
func (i Identity) GetProviderTimeout() time.Duration  { return i.ProviderTimeout }

func (i Identity) GetScopes() []string {
	scopes := make([]string, len(i.Scopes))
	copy(scopes, i.Scopes)
	return scopes
}
