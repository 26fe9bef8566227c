package flowstate

import (
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	perrors "github.com/jrsteele09/helpdesk-portal/internal/errors"
)

// InMemoryRepo is a thread-safe, self-expiring implementation of the Repo interface
type InMemoryRepo struct {
	mu     sync.Mutex
	states *lru.LRU[string, AuthFlowState]
}

var _ Repo = (*InMemoryRepo)(nil)

// NewInMemoryRepo creates a new in-memory auth flow state repository.
// Entries disappear ttl after they were stored.
func NewInMemoryRepo(maxPending int, ttl time.Duration) *InMemoryRepo {
	return &InMemoryRepo{
		states: lru.NewLRU[string, AuthFlowState](maxPending, nil, ttl),
	}
}

// Upsert stores or updates an auth flow state
func (r *InMemoryRepo) Upsert(state string, authState *AuthFlowState) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}
	if authState == nil {
		return errors.New("authState cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Store a copy to prevent external modifications
	r.states.Add(state, *authState)
	return nil
}

// Get retrieves an auth flow state by state parameter
func (r *InMemoryRepo) Get(state string) (*AuthFlowState, error) {
	if state == "" {
		return nil, errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	authState, ok := r.states.Get(state)
	if !ok {
		return nil, perrors.ErrStateNotFound
	}
	return &authState, nil
}

// Delete removes an auth flow state
func (r *InMemoryRepo) Delete(state string) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.states.Remove(state)
	return nil
}

// Take retrieves and removes an auth flow state in one step
func (r *InMemoryRepo) Take(state string) (*AuthFlowState, error) {
	if state == "" {
		return nil, errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	authState, ok := r.states.Get(state)
	if !ok {
		return nil, perrors.ErrStateNotFound
	}
	r.states.Remove(state)
	return &authState, nil
}
