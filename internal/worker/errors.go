package worker

import (
	"errors"
	"fmt"
)

// ErrCycleSkipped is returned by RunOnce when another cycle holds the lock.
var ErrCycleSkipped = errors.New("another email queue cycle is running")

// TransportError is a per-entry delivery failure. It is recorded on the
// entry and never aborts a cycle.
type TransportError struct {
	SubmissionID int64
	Err          error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("send follow-up for submission %d: %v", e.SubmissionID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StoreError is a cycle-level failure to read or write the submission store.
type StoreError struct {
	Op           string
	SubmissionID int64
	Err          error
}

func (e *StoreError) Error() string {
	if e.SubmissionID != 0 {
		return fmt.Sprintf("store %s (submission %d): %v", e.Op, e.SubmissionID, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
