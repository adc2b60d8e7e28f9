package brain

import (
	"fmt"

	"brain-alpha-lab/internal/domain"
)

// AuthError means credentials were rejected or re-authentication was
// exhausted. It is fatal to the client instance.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransientError means the retry budget was exhausted on timeouts,
// connection failures or unhandled statuses. It carries the last
// observed status and body for diagnosis.
type TransientError struct {
	Operation  string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed after retries: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("%s failed after retries (last status %d): %s", e.Operation, e.StatusCode, e.Body)
}

func (e *TransientError) Unwrap() error { return e.Err }

// JobFailedError means the remote job reached a FAILED or ERROR
// terminal state. It is never retried.
type JobFailedError struct {
	Handle  string
	Status  domain.JobStatus
	Message string
}

func (e *JobFailedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("job %s terminated with status %s: %s", e.Handle, e.Status, e.Message)
	}
	return fmt.Sprintf("job %s terminated with status %s", e.Handle, e.Status)
}

// PollTimeoutError means polling exhausted its attempt budget without
// observing a terminal state.
type PollTimeoutError struct {
	Handle   string
	Attempts int
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("job %s still not terminal after %d polling attempts", e.Handle, e.Attempts)
}

// RequestError means the remote service rejected a request with a
// definitive non-retryable status (e.g. a 4xx on submission).
type RequestError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s rejected (status %d): %s", e.Operation, e.StatusCode, e.Body)
}
