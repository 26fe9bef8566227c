package sessionstore

import (
	"time"

	"golang.org/x/oauth2"
)

// Identity is the signed-in user as reported by the provider's ID token.
type Identity struct {
	Subject  string
	ObjectID string // directory object id (oid), when the provider issues one
	TenantID string
	Name     string
	Username string
	Email    string
}

// DisplayName prefers the human name and falls back to the login name.
func (i Identity) DisplayName() string {
	switch {
	case i.Name != "":
		return i.Name
	case i.Username != "":
		return i.Username
	case i.Email != "":
		return i.Email
	default:
		return i.Subject
	}
}

type Session struct {
	ID string

	// Core identity
	Identity Identity

	// Tokens (refresh is essential, access is convenience)
	Token *oauth2.Token

	// Authorization
	Scopes []string

	// Session management
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the session outlived its maximum age.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

type Repo interface {
	Upsert(sessionID string, session Session) error
	Get(sessionID string) (Session, error)
	Delete(sessionID string) error
}
