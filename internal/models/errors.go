package models

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigurationNotFound is returned when an integration is missing the
	// configuration block required by the action being executed. The wrapped
	// message names the integration and the action so an operator can fix the
	// integration setup in the portal.
	ErrConfigurationNotFound = errors.New("action configuration not found")

	// ErrBadPayload is returned when the vendor responds with a body that does
	// not match its documented envelope (wrong field types, missing item list).
	ErrBadPayload = errors.New("malformed vendor payload")
)

// TransportError marks a network-level failure: connection errors, timeouts,
// or an HTTP status outside the vendor's own error envelope. Orchestrators
// retry these with a bounded attempt count; vendor-level errors are never
// wrapped in a TransportError.
type TransportError struct {
	Op  string // the outbound call that failed, e.g. "wialon.login"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err is (or wraps) a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// ErrorResponse is the envelope returned to the platform on failed requests.
type ErrorResponse struct {
	Message string `json:"message"`
}
