package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// JobID is the broker-assigned identifier of a job. It is shared by the
// queued job and the result document written once the job completes.
type JobID uint64

// ParseJobID parses the decimal form of a job id.
func ParseJobID(s string) (JobID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidJobID, s)
	}
	return JobID(n), nil
}

func (id JobID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// JobState is the broker-side state of a job that has not completed yet.
type JobState string

const (
	StateReady    JobState = "ready"
	StateReserved JobState = "reserved"
	StateBuried   JobState = "buried"
)

// IsValid reports whether s is a state the broker can hold a job in.
func (s JobState) IsValid() bool {
	switch s {
	case StateReady, StateReserved, StateBuried:
		return true
	}
	return false
}

// Job is a unit of work handed to a worker by Reserve. Reservation counts
// the reservations of the job so far and identifies the one this copy
// belongs to.
type Job struct {
	ID          JobID           `json:"id"`
	Payload     json.RawMessage `json:"payload"`
	SubmittedAt time.Time       `json:"submitted_at"`
	Reservation int             `json:"reservation"`
}

// JobStats describes a job still tracked by the broker.
type JobStats struct {
	ID          JobID     `json:"id"`
	State       JobState  `json:"state"`
	Age         int64     `json:"age"`
	TTR         int64     `json:"ttr"`
	TimeLeft    int64     `json:"time_left"`
	Reserves    int       `json:"reserves"`
	Timeouts    int       `json:"timeouts"`
	Releases    int       `json:"releases"`
	Buries      int       `json:"buries"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// JobResult is the immutable record of a completed job.
type JobResult struct {
	ID          JobID           `json:"id"`
	Outcome     string          `json:"outcome"`
	Payload     json.RawMessage `json:"payload"`
	CompletedAt time.Time       `json:"completed_at"`
}

// JobStatus is the answer to a status query: exactly one of Stats or
// Result is set, depending on which backend currently owns the job.
type JobStatus struct {
	Stats  *JobStats
	Result *JobResult
}

// Completed reports whether the status came from the result store.
func (s *JobStatus) Completed() bool {
	return s.Result != nil
}

// Body returns the value to render for the status.
func (s *JobStatus) Body() any {
	if s.Result != nil {
		return s.Result
	}
	return s.Stats
}

// CompletionEvent is published after a job has been persisted and acknowledged.
type CompletionEvent struct {
	JobID       JobID     `json:"job_id"`
	Outcome     string    `json:"outcome"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
}
