package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gyaneshwarpardhi/opsalert/internal/event"
	"github.com/gyaneshwarpardhi/opsalert/internal/policy"
)

var (
	// ErrQueueFull is returned when a queue has no free capacity.
	ErrQueueFull = errors.New("queue full")
	// ErrUnknownQueue is returned for a queue the broker does not serve.
	ErrUnknownQueue = errors.New("unknown queue")
	// ErrClosed is returned after Shutdown.
	ErrClosed = errors.New("broker closed")
)

// Job is one unit of queued work. The descriptive fields are kept with the
// dead letter when the job exhausts its retries.
type Job struct {
	ID        string
	Name      string
	Queue     string
	EventType string
	EventID   string
	Target    string          // e.g. the recipient of a per-user job
	Payload   json.RawMessage // event envelope for replay
	Retry     policy.Retry
	Timeout   time.Duration // zero uses the broker default
	Run       func(ctx context.Context) error

	attempts int
}

// Attempts returns how many times the job has run.
func (j *Job) Attempts() int { return j.attempts }

func (j *Job) tries() int {
	if j.Retry.Tries < 1 {
		return 1
	}
	return j.Retry.Tries
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent or is a
// validation failure, which no retry can fix.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p) || errors.Is(err, event.ErrValidation)
}
