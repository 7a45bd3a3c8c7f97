package agent

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/pengelbrecht/hive/internal/config"
)

// fakePath installs executable stubs for names into a temp dir and makes
// it the only PATH entry.
func fakePath(t *testing.T, names ...string) {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0755); err != nil {
			t.Fatalf("failed to write stub %s: %v", name, err)
		}
	}
	t.Setenv("PATH", dir)
}

func TestDetect_FirstResolvable(t *testing.T) {
	fakePath(t, "b", "c")
	r := NewRegistry(config.Agents{})

	d, err := r.Detect([]string{"a", "b", "c"}, "")
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if d.Name != "b" {
		t.Errorf("Detect() = %q, want b", d.Name)
	}
	if d.Path == "" {
		t.Error("Path should be set")
	}
}

func TestDetect_OverrideMustResolve(t *testing.T) {
	fakePath(t, "a", "b", "c")
	r := NewRegistry(config.Agents{})

	orders := [][]string{nil, {"a"}, {"a", "b", "c"}}
	for _, order := range orders {
		_, err := r.Detect(order, "doesnotexist")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("order %v: expected ErrNotFound, got %v", order, err)
		}
		var nf *NotFoundError
		if !errors.As(err, &nf) || !reflect.DeepEqual(nf.Tried, []string{"doesnotexist"}) {
			t.Errorf("order %v: Tried = %v", order, nf)
		}
	}
}

func TestDetect_Override(t *testing.T) {
	fakePath(t, "claude", "codex")
	r := NewRegistry(config.Agents{})

	d, err := r.Detect([]string{"claude"}, "codex")
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if d.Name != "codex" {
		t.Errorf("Detect() = %q, want codex", d.Name)
	}
}

func TestDetect_NoneFound(t *testing.T) {
	fakePath(t)
	r := NewRegistry(config.Agents{})

	_, err := r.Detect([]string{"x", "y"}, "")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if !reflect.DeepEqual(nf.Tried, []string{"x", "y"}) {
		t.Errorf("Tried = %v, want [x y]", nf.Tried)
	}
	if nf.Error() != "no agent found (tried: x, y)" {
		t.Errorf("Error() = %q", nf.Error())
	}
}

func TestResumeArgs(t *testing.T) {
	empty := []string{}
	custom := []string{"--resume-last"}
	r := NewRegistry(config.Agents{Configs: map[string]config.AgentConfig{
		"claude":  {ResumeArgs: &empty},
		"copilot": {ResumeArgs: &custom},
	}})

	tests := []struct {
		name string
		want []string
	}{
		{"claude", nil},
		{"copilot", []string{"--resume-last"}},
		{"gemini", []string{"--resume", "latest"}},
		{"codex", []string{"resume", "--last"}},
		{"unknown", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.ResumeArgs(tt.name)
			if len(got) != len(tt.want) || (len(got) > 0 && !reflect.DeepEqual(got, tt.want)) {
				t.Errorf("ResumeArgs(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestDescriptorCommand(t *testing.T) {
	r := NewRegistry(config.Agents{})
	claude := r.Describe("claude", "/bin/claude")
	unknown := r.Describe("agent", "/bin/agent")

	tests := []struct {
		name   string
		d      Descriptor
		resume bool
		skip   bool
		extra  []string
		want   []string
	}{
		{"plain", claude, false, false, nil, []string{"claude"}},
		{"resume", claude, true, false, nil, []string{"claude", "--continue"}},
		{"resume and skip", claude, true, true, []string{"fix it"}, []string{"claude", "--continue", "--dangerously-skip-permissions", "fix it"}},
		{"resume no-op", unknown, true, false, nil, []string{"agent"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.d.Command(tt.resume, tt.skip, tt.extra)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Command() = %v, want %v", got, tt.want)
			}
		})
	}
	if unknown.CanResume() {
		t.Error("unknown agent should not be resumable")
	}
}

func TestAvailable(t *testing.T) {
	fakePath(t, "codex", "gemini", "claude")
	r := NewRegistry(config.Agents{})

	got := r.Available(KnownAgents)
	want := []string{"claude", "gemini", "codex"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Available() = %v, want %v", got, want)
	}
}
