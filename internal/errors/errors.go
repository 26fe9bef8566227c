package errors

import "errors"

// Common error types for the portal
var (
	// Session errors
	ErrSessionNotFound = errors.New("session not found")

	// Login flow errors
	ErrStateNotFound  = errors.New("auth flow state not found")
	ErrStateExpired   = errors.New("auth flow state expired")
	ErrNonceMismatch  = errors.New("nonce mismatch")
	ErrMissingIDToken = errors.New("no id_token in token response")

	// Token errors
	ErrNoRefreshToken = errors.New("no refresh token")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
