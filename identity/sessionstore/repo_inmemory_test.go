package sessionstore_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/helpdesk-portal/identity/sessionstore"
	perrors "github.com/jrsteele09/helpdesk-portal/internal/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func testSession() sessionstore.Session {
	now := time.Now()
	return sessionstore.Session{
		ID:        "s-1",
		Identity:  sessionstore.Identity{Subject: "sub-1", Name: "Ada Lovelace"},
		Token:     &oauth2.Token{AccessToken: "at-1", RefreshToken: "rt-1", Expiry: now.Add(time.Hour)},
		Scopes:    []string{"openid", "User.Read"},
		CreatedAt: now,
		ExpiresAt: now.Add(8 * time.Hour),
	}
}

func TestInMemoryRepo_RoundTrip(t *testing.T) {
	r := sessionstore.NewInMemoryRepo(10, time.Hour)
	require.NoError(t, r.Upsert("s-1", testSession()))

	got, err := r.Get("s-1")
	require.NoError(t, err)
	require.Equal(t, "Ada Lovelace", got.Identity.Name)
	require.Equal(t, "at-1", got.Token.AccessToken)
	require.Equal(t, 1, r.Len())

	require.NoError(t, r.Delete("s-1"))
	_, err = r.Get("s-1")
	require.ErrorIs(t, err, perrors.ErrSessionNotFound)
	require.NoError(t, r.Delete("s-1"), "deleting twice is fine")
}

func TestInMemoryRepo_CopiesAreDetached(t *testing.T) {
	r := sessionstore.NewInMemoryRepo(10, time.Hour)
	s := testSession()
	require.NoError(t, r.Upsert("s-1", s))

	s.Token.AccessToken = "mutated"
	s.Scopes[0] = "mutated"

	got, err := r.Get("s-1")
	require.NoError(t, err)
	require.Equal(t, "at-1", got.Token.AccessToken)
	require.Equal(t, "openid", got.Scopes[0])

	got.Token.AccessToken = "mutated-again"
	again, err := r.Get("s-1")
	require.NoError(t, err)
	require.Equal(t, "at-1", again.Token.AccessToken)
}

func TestInMemoryRepo_RequiresID(t *testing.T) {
	r := sessionstore.NewInMemoryRepo(10, time.Hour)
	require.Error(t, r.Upsert("", testSession()))
	_, err := r.Get("")
	require.Error(t, err)
	require.Error(t, r.Delete(""))
}

func TestInMemoryRepo_TTLAndCapacity(t *testing.T) {
	r := sessionstore.NewInMemoryRepo(2, 30*time.Millisecond)
	require.NoError(t, r.Upsert("a", testSession()))
	require.NoError(t, r.Upsert("b", testSession()))
	require.NoError(t, r.Upsert("c", testSession()))

	_, err := r.Get("a")
	require.ErrorIs(t, err, perrors.ErrSessionNotFound, "oldest entry evicted by capacity")

	require.Eventually(t, func() bool {
		_, err := r.Get("c")
		return perrors.Is(err, perrors.ErrSessionNotFound)
	}, time.Second, 10*time.Millisecond)
}

func TestSession_Expired(t *testing.T) {
	now := time.Now()
	require.False(t, sessionstore.Session{}.Expired(now))
	require.False(t, sessionstore.Session{ExpiresAt: now.Add(time.Minute)}.Expired(now))
	require.True(t, sessionstore.Session{ExpiresAt: now}.Expired(now))
}

func TestIdentity_DisplayName(t *testing.T) {
	require.Equal(t, "Ada", sessionstore.Identity{Name: "Ada", Username: "ada@x"}.DisplayName())
	require.Equal(t, "ada@x", sessionstore.Identity{Username: "ada@x"}.DisplayName())
	require.Equal(t, "a@x", sessionstore.Identity{Email: "a@x"}.DisplayName())
	require.Equal(t, "sub", sessionstore.Identity{Subject: "sub"}.DisplayName())
}
