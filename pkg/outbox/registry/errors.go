package registry

import "errors"

// ErrUnknownEvent is returned for event types the registry has no entry for.
var ErrUnknownEvent = errors.New("unknown event type")

// NonRetryableError marks a failure that another publish attempt cannot fix.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

// Permanent wraps err as a NonRetryableError.
func Permanent(err error) error {
	return NonRetryableError{Err: err}
}
