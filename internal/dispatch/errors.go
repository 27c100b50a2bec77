package dispatch

import "errors"

// Pre-flight errors. They are returned before any delivery is attempted.
var (
	ErrNotFound             = errors.New("campaign not found")
	ErrAlreadyRunning       = errors.New("campaign is already running")
	ErrAlreadyCompleted     = errors.New("campaign is already completed")
	ErrConfiguration        = errors.New("campaign is not configured for sending")
	ErrEmptyList            = errors.New("recipient list is empty")
	ErrTransportUnavailable = errors.New("mail transport unavailable")
)

// DeliveryError is a failed send to one recipient. It is recorded on the
// delivery and never aborts the pass.
type DeliveryError struct {
	Email string
	Err   error
}

func (e *DeliveryError) Error() string {
	return e.Email + ": " + e.Err.Error()
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsPreflight reports whether err is one of the pre-flight errors
func IsPreflight(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrAlreadyRunning, ErrAlreadyCompleted,
		ErrConfiguration, ErrEmptyList, ErrTransportUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
