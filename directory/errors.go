package directory

import (
	"fmt"
)

// StatusError is returned when the directory answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Code       string // directory error code, when the body carried one
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("directory returned %d: %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("directory returned %d", e.StatusCode)
}

// ParseError is returned when a directory response does not match the
// expected schema.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed directory response: %s: %v", e.Reason, e.Err)
	}
	return "malformed directory response: " + e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
