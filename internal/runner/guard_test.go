package runner

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCrashGuard_Allow(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		max     int
		window  time.Duration
		exits   []int
		spacing time.Duration
		wantErr bool
	}{
		{"disabled", 0, time.Minute, []int{1, 1, 1, 1}, time.Second, false},
		{"successes never count", 2, time.Minute, []int{0, 0, 0}, time.Second, false},
		{"trips inside window", 3, time.Minute, []int{1, 2, 1}, time.Second, true},
		{"failures age out", 3, time.Minute, []int{1, 1, 1}, 45 * time.Second, false},
	}
	wantFailures := map[string]int{
		"disabled":              0,
		"successes never count": 0,
		"trips inside window":   3,
		"failures age out":      2,
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewCrashGuard(tt.max, tt.window)
			var err error
			for i, code := range tt.exits {
				err = g.Allow(code, base.Add(time.Duration(i)*tt.spacing))
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("Allow() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrCrashLoop) {
				t.Errorf("error should wrap ErrCrashLoop, got %v", err)
			}
			if got := g.Failures(); got != wantFailures[tt.name] {
				t.Errorf("Failures() = %d, want %d", got, wantFailures[tt.name])
			}
		})
	}
}

func TestWithCrashGuard_StopsLoop(t *testing.T) {
	r, _ := newTestRunner()
	runs := 0
	r.OnRunEnd = func(run int, code int) { runs = run }

	guarded := WithCrashGuard(r, NewCrashGuard(3, time.Minute))
	if r.Policy != nil {
		t.Fatal("WithCrashGuard must not modify the wrapped runner")
	}

	s := NewSession([]string{"false"}, t.TempDir())
	s.Restart = true

	_, err := guarded.Run(context.Background(), s)
	if !errors.Is(err, ErrCrashLoop) {
		t.Fatalf("Run() error = %v, want ErrCrashLoop", err)
	}
	if runs != 3 {
		t.Errorf("runs = %d, want 3", runs)
	}
}
