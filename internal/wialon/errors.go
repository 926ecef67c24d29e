package wialon

import "fmt"

// ErrorCodeInvalidSession is the vendor code returned when the sid passed to
// a call is stale or unknown. It is the only code the client treats as
// recoverable.
const ErrorCodeInvalidSession = 1

// APIError is a non-zero error envelope returned by the vendor API. The HTTP
// exchange itself succeeded, so it is never retried at the transport level.
type APIError struct {
	Code   int
	Reason string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("wialon: api error %d: %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("wialon: api error %d", e.Code)
}

// InvalidSession reports whether the error means the session token was
// rejected and a fresh login may fix the call.
func (e *APIError) InvalidSession() bool {
	return e.Code == ErrorCodeInvalidSession
}
