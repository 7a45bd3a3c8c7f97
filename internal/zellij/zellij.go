// Package zellij builds the command that opens an agent session inside a
// named zellij session.
package zellij

import (
	"errors"
	"os"
	"strings"
)

// EnvVar is set by zellij inside its panes.
const EnvVar = "ZELLIJ"

// DefaultSessionName is used when the template is empty.
const DefaultSessionName = "{repo}-{agent}"

// ErrNested is returned when already running inside zellij.
var ErrNested = errors.New("already inside a zellij session")

// RepoSlug lowercases a repository directory name and replaces spaces.
func RepoSlug(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "-")
}

// SessionName expands {repo} and {agent} in template.
func SessionName(template, repo, agent string) string {
	if template == "" {
		template = DefaultSessionName
	}
	r := strings.NewReplacer("{repo}", RepoSlug(repo), "{agent}", agent)
	return r.Replace(template)
}

// Command returns the argv that attaches to session, creating it if needed.
func Command(layout, session string) []string {
	args := []string{"zellij"}
	if layout != "" {
		args = append(args, "--layout", layout)
	}
	return append(args, "attach", "--create", session)
}

// CheckNotNested returns ErrNested when lookup reports $ZELLIJ set.
// A nil lookup reads the process environment.
func CheckNotNested(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if _, ok := lookup(EnvVar); ok {
		return ErrNested
	}
	return nil
}
