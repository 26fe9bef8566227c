package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/helpdesk-portal/internal/config"
	perrors "github.com/jrsteele09/helpdesk-portal/internal/errors"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("PORTAL_CLIENT_ID", "client-1")
	t.Setenv("PORTAL_TENANT_ID", "tenant-1")
	t.Setenv("PORTAL_ADMIN_GROUP_ID", "admins")
	t.Setenv("PORTAL_USER_GROUP_ID", "users")
}

func TestNew_Defaults(t *testing.T) {
	setRequired(t)
	t.Setenv("BASE_URL", "https://helpdesk.example.com/")

	c, err := config.New()
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	require.Equal(t, ":8080", c.GetPort())
	require.Equal(t, "https://helpdesk.example.com", c.GetBaseURL())
	require.Equal(t, "https://helpdesk.example.com/callback", c.GetRedirectURL())
	require.Equal(t, "https://helpdesk.example.com/", c.GetPostLogoutRedirectURL())
	require.Equal(t, "https://login.microsoftonline.com/tenant-1/v2.0", c.GetAuthorityURL())
	require.Equal(t, "https://graph.microsoft.com/v1.0", c.GetGraphBaseURL())
	require.Equal(t, []string{"openid", "profile", "offline_access", "User.Read", "GroupMember.Read.All"}, c.GetScopes())
	require.Equal(t, 10*time.Second, c.GetDirectoryTimeout())
	require.Equal(t, 8*time.Hour, c.GetMaxSessionAge())
	require.False(t, c.GetDemoMode())
	require.Empty(t, c.GetAllowedOrigins())
}

func TestNew_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", ":9000")
	t.Setenv("PORTAL_AUTHORITY_URL", "https://idp.example.com")
	t.Setenv("PORTAL_SCOPES", "openid,User.Read")
	t.Setenv("PORTAL_DIRECTORY_TIMEOUT", "2s")
	t.Setenv("PORTAL_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("PORTAL_DEMO_MODE", "true")

	c, err := config.New()
	require.NoError(t, err)
	require.Equal(t, ":9000", c.GetPort())
	require.Equal(t, "https://idp.example.com", c.GetAuthorityURL())
	require.Equal(t, []string{"openid", "User.Read"}, c.GetScopes())
	require.Equal(t, 2*time.Second, c.GetDirectoryTimeout())
	require.True(t, c.GetDemoMode())
	require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("https://b.example.com"))
	require.False(t, c.GetAllowedOrigins().IsAllowedOrigin("https://c.example.com"))
}

func TestValidate(t *testing.T) {
	t.Run("missing settings are reported together", func(t *testing.T) {
		t.Setenv("PORTAL_CLIENT_ID", "")
		c, err := config.New()
		require.NoError(t, err)

		err = c.Validate()
		require.ErrorIs(t, err, perrors.ErrInvalidConfig)
		require.Contains(t, err.Error(), "PORTAL_CLIENT_ID")
		require.Contains(t, err.Error(), "PORTAL_ADMIN_GROUP_ID")
		require.Contains(t, err.Error(), "PORTAL_USER_GROUP_ID")
	})

	t.Run("identical group ids are rejected", func(t *testing.T) {
		setRequired(t)
		t.Setenv("PORTAL_USER_GROUP_ID", "admins")
		c, err := config.New()
		require.NoError(t, err)
		require.ErrorIs(t, c.Validate(), perrors.ErrInvalidConfig)
	})
}
