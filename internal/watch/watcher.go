// Package watch waits for artifact files to appear on disk. The
// adapter and the externally-run ML stage hand data to each other
// through these files, so "wait for the file" is the only
// synchronization between them.
package watch

import (
	"context"
	"fmt"
	"os"
	"time"
)

// DeadlineMultiplier fixes the overall deadline of a wait at
// Interval * DeadlineMultiplier. Both the query and the import
// artifacts use the same multiplier.
const DeadlineMultiplier = 20

// Status tags the outcome of a wait so callers can tell "not found in
// time" apart from an interrupted wait.
type Status int

const (
	// Found means the artifact exists.
	Found Status = iota
	// TimedOut means the deadline elapsed with no artifact.
	TimedOut
	// Canceled means the context was canceled before either of the
	// above.
	Canceled
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case TimedOut:
		return "timed out"
	case Canceled:
		return "canceled"
	}
	return fmt.Sprintf("unknown status %d", int(s))
}

// Result reports how a wait ended.
type Result struct {
	Status  Status
	Elapsed time.Duration
}

// Watcher polls for a file on a fixed interval. The zero value is not
// usable; construct with New, which rejects non-positive intervals so
// a bad configuration fails at startup rather than mid-loop.
type Watcher struct {
	interval time.Duration
}

// New returns a Watcher polling every interval.
func New(interval time.Duration) (*Watcher, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", interval)
	}
	return &Watcher{interval: interval}, nil
}

// Interval returns the poll interval.
func (w *Watcher) Interval() time.Duration {
	return w.interval
}

// Deadline returns the overall time budget of a single Wait call.
func (w *Watcher) Deadline() time.Duration {
	return w.interval * DeadlineMultiplier
}

// Wait blocks until the file at path exists, the deadline elapses, or
// ctx is canceled. It only ever checks for existence; reading or
// deleting the artifact is the caller's job.
func (w *Watcher) Wait(ctx context.Context, path string) Result {
	start := time.Now()
	deadline := w.Deadline()

	for {
		if _, err := os.Stat(path); err == nil {
			return Result{Status: Found, Elapsed: time.Since(start)}
		}

		if elapsed := time.Since(start); elapsed > deadline {
			return Result{Status: TimedOut, Elapsed: elapsed}
		}

		timer := time.NewTimer(w.interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return Result{Status: Canceled, Elapsed: time.Since(start)}
		case <-timer.C:
		}
	}
}
