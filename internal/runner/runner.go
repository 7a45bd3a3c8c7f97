// Package runner launches an agent command and optionally keeps relaunching
// it until the operator interrupts.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// SessionEnv carries the session id into the child environment.
const SessionEnv = "HIVE_SESSION_ID"

// DefaultKillAfter is how long a child gets to exit after SIGTERM when the
// stop came from context cancellation rather than the operator.
const DefaultKillAfter = 10 * time.Second

// ErrEmptyCommand is returned when a session has nothing to run.
var ErrEmptyCommand = errors.New("empty command")

// Target is what one run executes. Reselect returns a new Target; empty
// fields keep the previous value.
type Target struct {
	Dir     string
	Command []string
	Env     map[string]string
}

// Session describes one invocation, which may span several child runs.
type Session struct {
	ID      string
	Command []string
	Dir     string
	Env     map[string]string

	// Restart relaunches the command after every exit.
	Restart bool
	// Delay is the pause between an exit and the next launch.
	Delay time.Duration
	// Reselect, when set, is called before every run after the first.
	Reselect func(ctx context.Context) (Target, error)
}

// NewSession creates a session with a fresh id.
func NewSession(command []string, dir string) Session {
	return Session{ID: uuid.NewString(), Command: command, Dir: dir}
}

// RestartPolicy decides whether the loop may continue after an exit.
type RestartPolicy interface {
	Allow(exitCode int, at time.Time) error
}

// Runner executes sessions with the terminal's standard streams.
type Runner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Interrupts delivers operator interrupts. The first one stops the loop
	// and asks the child to terminate; a second one kills it.
	Interrupts <-chan os.Signal

	// Policy is consulted after each exit in restart mode. Nil allows all.
	Policy RestartPolicy

	// KillAfter bounds the wait after SIGTERM on context cancellation.
	KillAfter time.Duration

	// Callbacks (optional)
	OnRunStart func(run int, target Target)
	OnRunEnd   func(run int, exitCode int)

	log *log.Logger
}

// New creates a runner wired to the process's standard streams.
func New(logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Runner{
		Stdin:     os.Stdin,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
		KillAfter: DefaultKillAfter,
		log:       logger.WithPrefix("runner"),
	}
}

// Run executes the session and returns the last child exit code.
//
// Without Restart the child's code is returned unchanged. With Restart the
// loop only ends on an interrupt (nil error), a Reselect error, or a policy
// refusal (both returned).
func (r *Runner) Run(ctx context.Context, s Session) (int, error) {
	if len(s.Command) == 0 {
		return 1, ErrEmptyCommand
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	logger := r.log.With("session", s.ID)

	target := Target{Dir: s.Dir, Command: s.Command, Env: s.Env}
	last := 0

	for run := 1; ; run++ {
		if run > 1 && s.Reselect != nil {
			next, err := s.Reselect(ctx)
			if err != nil {
				return last, err
			}
			target = target.merge(next)
		}

		if r.OnRunStart != nil {
			r.OnRunStart(run, target)
		}
		logger.Debug("starting", "run", run, "command", target.Command, "dir", target.Dir)

		code, interrupted, err := r.runOnce(ctx, s.ID, target)
		if err != nil {
			return code, err
		}
		last = code
		if r.OnRunEnd != nil {
			r.OnRunEnd(run, code)
		}

		if interrupted || !s.Restart {
			return code, nil
		}

		logger.Info("agent exited", "run", run, "code", code)
		if r.Policy != nil {
			if err := r.Policy.Allow(code, time.Now()); err != nil {
				return code, err
			}
		}

		// An interrupt that raced the exit wins over a zero delay.
		if r.pendingInterrupt(ctx) {
			return code, nil
		}
		if s.Delay > 0 {
			logger.Info("restarting", "in", s.Delay)
			select {
			case <-r.Interrupts:
				return code, nil
			case <-ctx.Done():
				return code, nil
			case <-time.After(s.Delay):
			}
		}
	}
}

// runOnce starts the child and waits for it, relaying interrupts.
func (r *Runner) runOnce(ctx context.Context, sessionID string, t Target) (code int, interrupted bool, err error) {
	cmd := exec.Command(t.Command[0], t.Command[1:]...)
	cmd.Dir = t.Dir
	cmd.Env = buildEnv(sessionID, t.Env)
	cmd.Stdin = r.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	if err := cmd.Start(); err != nil {
		return 127, false, fmt.Errorf("start %s: %w", t.Command[0], err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var forceAfter <-chan time.Time
	select {
	case err := <-done:
		return exitCode(err), false, nil
	case <-r.Interrupts:
	case <-ctx.Done():
		killAfter := r.KillAfter
		if killAfter <= 0 {
			killAfter = DefaultKillAfter
		}
		forceAfter = time.After(killAfter)
	}

	r.log.Info("stopping agent", "pid", cmd.Process.Pid)
	_ = cmd.Process.Signal(syscall.SIGTERM)

	select {
	case err := <-done:
		return exitCode(err), true, nil
	case <-r.Interrupts:
	case <-forceAfter:
	}
	r.log.Warn("killing agent", "pid", cmd.Process.Pid)
	_ = cmd.Process.Kill()
	return exitCode(<-done), true, nil
}

func (r *Runner) pendingInterrupt(ctx context.Context) bool {
	select {
	case <-r.Interrupts:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (t Target) merge(next Target) Target {
	if next.Dir != "" {
		t.Dir = next.Dir
	}
	if len(next.Command) > 0 {
		t.Command = next.Command
	}
	if next.Env != nil {
		t.Env = next.Env
	}
	return t
}

// buildEnv layers overrides and the session id on the current environment.
func buildEnv(sessionID string, overrides map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return append(env, SessionEnv+"="+sessionID)
}

// exitCode maps a Wait error to a shell-style exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return 128 + int(status.Signal())
		}
		return exitErr.ExitCode()
	}
	return 1
}
