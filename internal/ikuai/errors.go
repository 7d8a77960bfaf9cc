package ikuai

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport marks network-level failures (timeout, refused connection,
	// malformed response). Operations failing with ErrTransport are safe to
	// retry; the request may or may not have taken effect remotely.
	ErrTransport = errors.New("gateway transport failure")

	// ErrAuthentication is returned when the gateway rejects the admin
	// credentials. Fatal for the current job; retrying will not help.
	ErrAuthentication = errors.New("gateway authentication failed")
)

// APIError is returned when the gateway understood a well-formed request and
// rejected it with a non-success result code.
type APIError struct {
	// Action is the gateway action that failed (add, edit, show, del).
	Action string
	// Result is the numeric result code from the response.
	Result int
	// Message is the remote error message, verbatim.
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("gateway rejected %s request (code %d): %s", e.Action, e.Result, e.Message)
}

// IsAPIError reports whether err is an application-level rejection, as
// opposed to a transport or authentication failure.
func IsAPIError(err error) bool {
	var apiErr *APIError

	return errors.As(err, &apiErr)
}
