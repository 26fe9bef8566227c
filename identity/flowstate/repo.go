package flowstate

import "time"

// AuthFlowState is everything needed to finish a login that was started by
// redirecting the browser to the provider.
type AuthFlowState struct {
	CodeVerifier string
	Nonce        string
	ReturnURL    string
	CreatedAt    time.Time
}

type Repo interface {
	Upsert(state string, authState *AuthFlowState) error
	Get(state string) (*AuthFlowState, error)
	Delete(state string) error
	// Take returns the state and removes it, so a callback can be replayed
	// at most once.
	Take(state string) (*AuthFlowState, error)
}
