package tasks

import (
	"errors"
	"fmt"
)

// Error taxonomy for the orchestration core. Each error is detected at the
// boundary of the component that raises it and mapped to a specific HTTP
// status by the handlers; none are silently swallowed except the intentional
// idempotent no-op for callbacks arriving after a task is already terminal.
var (
	// ErrMeetingNotFound - dispatch preconditions failed
	ErrMeetingNotFound = errors.New("meeting not found")
	ErrCityNotFound    = errors.New("city not found")

	// ErrTaskNotFound - unknown task status identifier
	ErrTaskNotFound = errors.New("task not found")

	// ErrUnknownRequest - callback for a request that was superseded or
	// never existed; absorbed as a 404 no-op
	ErrUnknownRequest = errors.New("unknown request")

	// ErrUnknownTaskType - lookup of an unregistered task type. A fatal
	// configuration error surfaced as a rejected update, never retried.
	ErrUnknownTaskType = errors.New("unknown task type")

	// ErrDeleteGuard - deletion attempted inside the grace window
	ErrDeleteGuard = errors.New("task updated too recently to delete")

	// ErrExternalService - the dispatch-time outbound call failed; the task
	// is marked failed and the provider is never called twice for one attempt
	ErrExternalService = errors.New("external service unavailable")

	// ErrInvalidParameters - malformed dispatch parameters
	ErrInvalidParameters = errors.New("invalid dispatch parameters")

	// ErrPersistence - a domain side-effect write failed during ingestion.
	// The task stays in its prior non-terminal state and the caller is asked
	// to retry the callback; external retries are the recovery mechanism.
	ErrPersistence = errors.New("persistence failure")
)

// ValidationError rejects a malformed callback payload. The task is left
// unchanged and the caller gets a 400; a malformed payload is not expected
// to be retried as-is.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload: %s", e.Reason)
}

// IsValidation reports whether err is a payload validation rejection
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
