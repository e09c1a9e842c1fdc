// Package submit tracks the state of a user-triggered remote submission.
package submit

import (
	"errors"
	"sync"
)

var ErrInFlight = errors.New("submission already in flight")

type Status string

const (
	StatusIdle      Status = "idle"
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Tracker moves idle -> pending -> succeeded, or pending -> failed -> idle
// so a failed submission can be resubmitted.
type Tracker struct {
	mu      sync.Mutex
	status  Status
	lastErr error
}

// Begin marks the submission pending. It fails while another one is pending.
func (t *Tracker) Begin() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status == StatusPending {
		return ErrInFlight
	}

	t.status = StatusPending
	t.lastErr = nil
	return nil
}

// Finish records the outcome of the pending submission.
func (t *Tracker) Finish(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		t.status = StatusFailed
		t.lastErr = err
		return
	}

	t.status = StatusSucceeded
}

// Reset returns a failed submission to idle, keeping the last error for display.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status == StatusFailed {
		t.status = StatusIdle
	}
}

func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status == "" {
		return StatusIdle
	}
	return t.status
}

func (t *Tracker) LastError() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.lastErr
}

// Enabled reports whether the submit control should accept input.
func (t *Tracker) Enabled() bool {
	s := t.Status()
	return s == StatusIdle || s == StatusFailed
}
