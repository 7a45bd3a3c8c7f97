package handoff

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
)

// Template returns the skeleton body written by `hive handoff create`.
func Template(branch, lastCommit string, now time.Time) string {
	if lastCommit == "" {
		lastCommit = "none"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Handoff: %s\n\n", branch)
	fmt.Fprintf(&b, "**Created:** %s\n", now.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "**Last Commit:** %s\n", lastCommit)
	b.WriteString("**Status:** In Progress\n\n")

	sections := []struct{ title, hint string }{
		{"Summary", "What is this branch for?"},
		{"Accomplished", "- "},
		{"Remaining Work", "- [ ] "},
		{"Key Files", "- "},
		{"Context & Gotchas", "Decisions made, dead ends, things to watch out for."},
		{"How to Continue", "The first thing the next session should do."},
	}
	for _, sec := range sections {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", sec.title, sec.hint)
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// Render formats markdown for a terminal of the given width.
func Render(markdown string, width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("create renderer: %w", err)
	}
	out, err := r.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("render handoff: %w", err)
	}
	return out, nil
}
