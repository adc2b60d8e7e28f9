package domain

import "encoding/json"

// JobStatus is the lifecycle state of a remote asynchronous job.
type JobStatus string

// Job lifecycle states. Complete, Failed, Error and Timeout are terminal.
const (
	JobPending  JobStatus = "PENDING"
	JobRunning  JobStatus = "RUNNING"
	JobComplete JobStatus = "COMPLETE"
	JobFailed   JobStatus = "FAILED"
	JobError    JobStatus = "ERROR"
	JobTimeout  JobStatus = "TIMEOUT"
)

// Terminal reports whether the status is a final state.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobComplete, JobFailed, JobError, JobTimeout:
		return true
	}
	return false
}

// Job tracks one remote asynchronous computation. Handle is the opaque
// poll locator returned on submission. The poller is the only mutator;
// a job never leaves a terminal state.
type Job struct {
	Handle string
	Status JobStatus
	Result json.RawMessage
}

// NewJob creates a pending job for the given poll handle.
func NewJob(handle string) *Job {
	return &Job{Handle: handle, Status: JobPending}
}
