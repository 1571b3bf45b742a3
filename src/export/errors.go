package export

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrAuthFailed   = errors.New("authentication failed")
	ErrFeedNotFound = errors.New("feed not found")
)

// StatusError is returned when the export API answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("export API request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("export API request failed with status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether reconnecting could succeed.
func (e *StatusError) Retryable() bool {
	switch {
	case e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode == http.StatusTooManyRequests,
		e.StatusCode >= 500:
		return true
	}
	return false
}

// Is maps auth and not-found statuses onto the package sentinels.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrAuthFailed:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrFeedNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// UserError wraps errors with user-friendly messages
type UserError struct {
	Message string
	Hint    string
	Err     error
}

func (e *UserError) Error() string {
	msg := e.Message
	if e.Hint != "" {
		msg += "\n\nHint: " + e.Hint
	}
	if e.Err != nil {
		msg += fmt.Sprintf("\n\nDetails: %v", e.Err)
	}
	return msg
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// WrapError converts export API errors to user-friendly messages
func WrapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrAuthFailed) {
		return &UserError{
			Message: "Authentication failed",
			Hint:    "Check the export credentials.\n  - Basic auth: set BUILDTIME_USERNAME and BUILDTIME_PASSWORD\n  - Access key: set BUILDTIME_ACCESS_KEY",
			Err:     err,
		}
	}

	if errors.Is(err, ErrFeedNotFound) {
		return &UserError{
			Message: "Export feed not found",
			Hint:    "Check that BUILDTIME_SERVER_URL points at a server with the build export API enabled.",
			Err:     err,
		}
	}

	return err
}
