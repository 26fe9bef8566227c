package sessionstore

import (
	"fmt"
	"slices"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	perrors "github.com/jrsteele09/helpdesk-portal/internal/errors"
)

// InMemoryRepo keeps sessions in a bounded LRU whose entries expire after
// the configured TTL, so an abandoned browser session is eventually dropped.
type InMemoryRepo struct {
	sessions *lru.LRU[string, Session]
}

var _ Repo = (*InMemoryRepo)(nil)

// NewInMemoryRepo creates a repo holding at most maxSessions entries, each
// evicted ttl after its last write.
func NewInMemoryRepo(maxSessions int, ttl time.Duration) *InMemoryRepo {
	if maxSessions <= 0 {
		maxSessions = 1000
	}
	return &InMemoryRepo{
		sessions: lru.NewLRU[string, Session](maxSessions, nil, ttl),
	}
}

// Upsert creates or updates a session
func (r *InMemoryRepo) Upsert(sessionID string, session Session) error {
	if sessionID == "" {
		return fmt.Errorf("sessionID is required")
	}
	r.sessions.Add(sessionID, clone(session))
	return nil
}

// Get retrieves a session by ID
func (r *InMemoryRepo) Get(sessionID string) (Session, error) {
	if sessionID == "" {
		return Session{}, fmt.Errorf("sessionID is required")
	}
	session, ok := r.sessions.Get(sessionID)
	if !ok {
		return Session{}, perrors.ErrSessionNotFound
	}
	return clone(session), nil
}

// Delete removes a session. Deleting an unknown session is not an error.
func (r *InMemoryRepo) Delete(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("sessionID is required")
	}
	r.sessions.Remove(sessionID)
	return nil
}

// Len reports the number of live sessions.
func (r *InMemoryRepo) Len() int {
	return r.sessions.Len()
}

// clone detaches the stored copy from the caller's token and scope slice.
func clone(s Session) Session {
	if s.Token != nil {
		tok := *s.Token
		s.Token = &tok
	}
	s.Scopes = slices.Clone(s.Scopes)
	return s
}
