// Package agent resolves which coding-agent CLI to launch and the arguments
// it needs for resume and permission skipping.
package agent

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/pengelbrecht/hive/internal/config"
)

// KnownAgents is the default detection order.
var KnownAgents = []string{"claude", "gemini", "codex", "agent", "copilot"}

// ErrNotFound is wrapped by NotFoundError.
var ErrNotFound = errors.New("no agent found")

// NotFoundError reports the agents that were tried.
type NotFoundError struct {
	Tried []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no agent found (tried: %s)", strings.Join(e.Tried, ", "))
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// builtinResumeArgs holds continuation flags for agents that support them.
var builtinResumeArgs = map[string][]string{
	"claude": {"--continue"},
	"gemini": {"--resume", "latest"},
	"codex":  {"resume", "--last"},
}

var builtinSkipPermissionsArgs = map[string][]string{
	"claude": {"--dangerously-skip-permissions"},
	"gemini": {"--yolo"},
	"codex":  {"--dangerously-bypass-approvals-and-sandbox"},
}

// Descriptor is an immutable record for one resolved agent.
type Descriptor struct {
	Name                string
	Path                string
	ResumeArgs          []string
	SkipPermissionsArgs []string
}

// CanResume reports whether a resume request would change the command.
func (d Descriptor) CanResume() bool {
	return len(d.ResumeArgs) > 0
}

// Command builds the argv for launching the agent. A resume request for an
// agent without resume args is ignored.
func (d Descriptor) Command(resume, skipPermissions bool, extra []string) []string {
	argv := []string{d.Name}
	if resume {
		argv = append(argv, d.ResumeArgs...)
	}
	if skipPermissions {
		argv = append(argv, d.SkipPermissionsArgs...)
	}
	return append(argv, extra...)
}

// Registry maps agent names to descriptors using config plus built-ins.
type Registry struct {
	configs map[string]config.AgentConfig

	// LookPath resolves an executable. Defaults to exec.LookPath.
	LookPath func(string) (string, error)
}

// NewRegistry creates a registry from the agents config section.
func NewRegistry(cfg config.Agents) *Registry {
	return &Registry{configs: cfg.Configs, LookPath: exec.LookPath}
}

// Detect returns the agent to launch. A non-empty override must resolve
// or detection fails; there is no fallback to order in that case.
func (r *Registry) Detect(order []string, override string) (Descriptor, error) {
	if override != "" {
		path, err := r.lookPath(override)
		if err != nil {
			return Descriptor{}, &NotFoundError{Tried: []string{override}}
		}
		return r.Describe(override, path), nil
	}

	for _, name := range order {
		if path, err := r.lookPath(name); err == nil {
			return r.Describe(name, path), nil
		}
	}
	return Descriptor{}, &NotFoundError{Tried: append([]string(nil), order...)}
}

// Available returns the agents from order that are installed.
func (r *Registry) Available(order []string) []string {
	var names []string
	for _, name := range order {
		if _, err := r.lookPath(name); err == nil {
			names = append(names, name)
		}
	}
	return names
}

// Describe builds the descriptor for name without checking PATH.
func (r *Registry) Describe(name, path string) Descriptor {
	return Descriptor{
		Name:                name,
		Path:                path,
		ResumeArgs:          r.ResumeArgs(name),
		SkipPermissionsArgs: r.SkipPermissionsArgs(name),
	}
}

// ResumeArgs returns the configured resume args, falling back to the
// built-in table. A configured empty list wins over the built-in.
func (r *Registry) ResumeArgs(name string) []string {
	if c, ok := r.configs[name]; ok && c.ResumeArgs != nil {
		return append([]string(nil), (*c.ResumeArgs)...)
	}
	return append([]string(nil), builtinResumeArgs[name]...)
}

// SkipPermissionsArgs works like ResumeArgs for the permission-bypass flags.
func (r *Registry) SkipPermissionsArgs(name string) []string {
	if c, ok := r.configs[name]; ok && c.SkipPermissionsArgs != nil {
		return append([]string(nil), (*c.SkipPermissionsArgs)...)
	}
	return append([]string(nil), builtinSkipPermissionsArgs[name]...)
}

func (r *Registry) lookPath(name string) (string, error) {
	if r.LookPath != nil {
		return r.LookPath(name)
	}
	return exec.LookPath(name)
}
