package runner

import (
	"errors"
	"fmt"
	"time"
)

// ErrCrashLoop is returned when the crash guard stops a restart loop.
var ErrCrashLoop = errors.New("agent keeps failing, restarts halted")

// CrashGuard halts restarts once MaxFailures nonzero exits fall inside a
// rolling Window. It is a RestartPolicy.
type CrashGuard struct {
	MaxFailures int
	Window      time.Duration

	failures []time.Time
}

// NewCrashGuard creates a guard. A max of zero or less never trips.
func NewCrashGuard(maxFailures int, window time.Duration) *CrashGuard {
	return &CrashGuard{MaxFailures: maxFailures, Window: window}
}

// Allow records an exit and reports whether restarting is still allowed.
func (g *CrashGuard) Allow(exitCode int, at time.Time) error {
	if g.MaxFailures <= 0 || exitCode == 0 {
		return nil
	}

	cutoff := at.Add(-g.Window)
	kept := g.failures[:0]
	for _, f := range g.failures {
		if f.After(cutoff) {
			kept = append(kept, f)
		}
	}
	g.failures = append(kept, at)

	if len(g.failures) >= g.MaxFailures {
		return fmt.Errorf("%w: %d failures within %s", ErrCrashLoop, len(g.failures), g.Window)
	}
	return nil
}

// Failures returns the number of failures currently inside the window.
func (g *CrashGuard) Failures() int {
	return len(g.failures)
}

// WithCrashGuard returns a copy of r that stops restarting when g trips.
// The core runner has no failure-rate limit of its own.
func WithCrashGuard(r *Runner, g *CrashGuard) *Runner {
	guarded := *r
	guarded.Policy = g
	return &guarded
}
