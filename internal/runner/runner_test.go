package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestRunner() (*Runner, chan os.Signal) {
	interrupts := make(chan os.Signal, 2)
	r := New(nil)
	r.Stdin = strings.NewReader("")
	r.Stdout = &bytes.Buffer{}
	r.Stderr = &bytes.Buffer{}
	r.Interrupts = interrupts
	return r, interrupts
}

func TestRun_SingleRunPassesExitCode(t *testing.T) {
	tests := []struct {
		name    string
		command []string
		want    int
	}{
		{"success", []string{"true"}, 0},
		{"failure", []string{"sh", "-c", "exit 7"}, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRunner()
			code, err := r.Run(context.Background(), NewSession(tt.command, t.TempDir()))
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if code != tt.want {
				t.Errorf("Run() = %d, want %d", code, tt.want)
			}
		})
	}
}

func TestRun_StartFailure(t *testing.T) {
	r, _ := newTestRunner()
	_, err := r.Run(context.Background(), NewSession([]string{"nonexistent-binary-xyz"}, t.TempDir()))
	if err == nil {
		t.Fatal("expected error for missing executable")
	}
	if _, err := r.Run(context.Background(), Session{}); !errors.Is(err, ErrEmptyCommand) {
		t.Errorf("Run() error = %v, want ErrEmptyCommand", err)
	}
}

func TestRun_RestartUntilInterrupt(t *testing.T) {
	r, interrupts := newTestRunner()
	runs := 0
	r.OnRunEnd = func(run int, code int) {
		runs = run
		if run == 3 {
			interrupts <- os.Interrupt
		}
	}

	s := NewSession([]string{"sh", "-c", "exit 1"}, t.TempDir())
	s.Restart = true
	s.Delay = 0

	code, err := r.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if runs != 3 {
		t.Errorf("runs = %d, want exactly 3", runs)
	}
	if code != 1 {
		t.Errorf("Run() = %d, want last exit code 1", code)
	}
}

func TestRun_InterruptDuringDelay(t *testing.T) {
	r, interrupts := newTestRunner()
	runs := 0
	r.OnRunEnd = func(run int, code int) {
		runs = run
		go func() {
			time.Sleep(50 * time.Millisecond)
			interrupts <- os.Interrupt
		}()
	}

	s := NewSession([]string{"true"}, t.TempDir())
	s.Restart = true
	s.Delay = 30 * time.Second

	start := time.Now()
	if _, err := r.Run(context.Background(), s); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("interrupt during delay took %v", elapsed)
	}
	if runs != 1 {
		t.Errorf("runs = %d, want 1", runs)
	}
}

func TestRun_InterruptDuringExecution(t *testing.T) {
	r, interrupts := newTestRunner()
	r.OnRunStart = func(run int, target Target) {
		go func() {
			time.Sleep(100 * time.Millisecond)
			interrupts <- os.Interrupt
		}()
	}

	s := NewSession([]string{"sleep", "30"}, t.TempDir())
	s.Restart = true

	start := time.Now()
	code, err := r.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("child was not terminated promptly (%v)", elapsed)
	}
	if code != 128+15 {
		t.Errorf("Run() = %d, want %d (SIGTERM)", code, 128+15)
	}
}

func TestRun_RepeatedInterruptKills(t *testing.T) {
	r, interrupts := newTestRunner()
	r.OnRunStart = func(run int, target Target) {
		go func() {
			time.Sleep(200 * time.Millisecond)
			interrupts <- os.Interrupt
			time.Sleep(200 * time.Millisecond)
			interrupts <- os.Interrupt
		}()
	}

	// The child ignores SIGTERM.
	s := NewSession([]string{"sh", "-c", "trap '' TERM; exec sleep 30"}, t.TempDir())

	start := time.Now()
	code, err := r.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("second interrupt did not kill the child (%v)", elapsed)
	}
	if code != 128+9 {
		t.Errorf("Run() = %d, want %d (SIGKILL)", code, 128+9)
	}
}

func TestRun_Reselect(t *testing.T) {
	r, interrupts := newTestRunner()
	out := filepath.Join(t.TempDir(), "dirs.txt")
	first, second := t.TempDir(), t.TempDir()

	r.OnRunEnd = func(run int, code int) {
		if run == 2 {
			interrupts <- os.Interrupt
		}
	}

	s := NewSession([]string{"sh", "-c", `pwd >> "$OUT"`}, first)
	s.Env = map[string]string{"OUT": out}
	s.Restart = true
	s.Reselect = func(ctx context.Context) (Target, error) {
		return Target{Dir: second}, nil
	}

	if _, err := r.Run(context.Background(), s); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d runs, want 2: %q", len(lines), data)
	}
	if !sameDir(t, lines[0], first) || !sameDir(t, lines[1], second) {
		t.Errorf("runs happened in %v, want %s then %s", lines, first, second)
	}
}

func TestRun_ReselectError(t *testing.T) {
	r, _ := newTestRunner()
	cancelled := errors.New("cancelled")

	s := NewSession([]string{"sh", "-c", "exit 4"}, t.TempDir())
	s.Restart = true
	s.Reselect = func(ctx context.Context) (Target, error) {
		return Target{}, cancelled
	}

	code, err := r.Run(context.Background(), s)
	if !errors.Is(err, cancelled) {
		t.Errorf("Run() error = %v, want %v", err, cancelled)
	}
	if code != 4 {
		t.Errorf("Run() = %d, want 4", code)
	}
}

func TestRun_Environment(t *testing.T) {
	r, _ := newTestRunner()
	out := filepath.Join(t.TempDir(), "env.txt")

	s := NewSession([]string{"sh", "-c", `echo "$HIVE_SESSION_ID|$HIVE_AGENT" > "$OUT"`}, t.TempDir())
	s.Env = map[string]string{"OUT": out, "HIVE_AGENT": "codex"}

	if _, err := r.Run(context.Background(), s); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := strings.TrimSpace(string(data)), s.ID+"|codex"; got != want {
		t.Errorf("child env = %q, want %q", got, want)
	}
}

func TestRun_ContextCancel(t *testing.T) {
	r, _ := newTestRunner()
	ctx, cancel := context.WithCancel(context.Background())
	r.OnRunStart = func(run int, target Target) {
		go func() {
			time.Sleep(100 * time.Millisecond)
			cancel()
		}()
	}

	s := NewSession([]string{"sleep", "30"}, t.TempDir())
	s.Restart = true

	start := time.Now()
	if _, err := r.Run(ctx, s); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("cancellation took %v", elapsed)
	}
}

func sameDir(t *testing.T, a, b string) bool {
	t.Helper()
	ra, errA := filepath.EvalSymlinks(a)
	rb, errB := filepath.EvalSymlinks(b)
	return errA == nil && errB == nil && ra == rb
}
