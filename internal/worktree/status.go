package worktree

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// excludedPaths are hive's own files inside a worktree. Changes to them do
// not make a worktree dirty.
var excludedPaths = []string{
	".claude/HANDOFF.md",
	".claude/task.local.md",
	".claude/handoffs/",
}

// isDirty reports uncommitted changes in dir, ignoring excludedPaths.
func (m *Manager) isDirty(ctx context.Context, dir string) (bool, error) {
	out, err := git(ctx, dir, "status", "--porcelain", "--untracked-files=all")
	if err != nil {
		return false, fmt.Errorf("failed to read status: %w", err)
	}
	return filterExcludedPaths(out) != "", nil
}

// fillStatus populates the status fields of wt. Failures leave zero values;
// a listing should not fail because one worktree is unreadable.
func (m *Manager) fillStatus(ctx context.Context, wt *Worktree, defaultBranch string) {
	if dirty, err := m.isDirty(ctx, wt.Path); err == nil {
		wt.Dirty = dirty
	}
	if summary, err := LastCommit(ctx, wt.Path); err == nil {
		wt.LastCommit = summary
	}
	if wt.Branch == "" || defaultBranch == "" || wt.Branch == defaultBranch {
		return
	}
	out, err := git(ctx, m.mainRepo, "rev-list", "--left-right", "--count", defaultBranch+"..."+wt.Branch)
	if err != nil {
		return
	}
	wt.Behind, wt.Ahead = parseLeftRight(out)
}

// parseLeftRight parses "<left>\t<right>" from rev-list --left-right --count.
func parseLeftRight(out string) (left, right int) {
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return 0, 0
	}
	left, _ = strconv.Atoi(fields[0])
	right, _ = strconv.Atoi(fields[1])
	return left, right
}

// filterExcludedPaths removes lines matching excluded paths from git status output.
// Git status --porcelain format: "XY PATH" where XY is status, PATH is file path.
func filterExcludedPaths(output string) string {
	if output == "" {
		return ""
	}

	var filtered []string
	for _, line := range strings.Split(output, "\n") {
		if line == "" {
			continue
		}

		path := ""
		if len(line) > 3 {
			path = line[3:]
		}
		// Renames are "old -> new"; the new path is what lives in the tree.
		if _, after, ok := strings.Cut(path, " -> "); ok {
			path = after
		}

		excluded := false
		for _, excludedPath := range excludedPaths {
			if strings.HasPrefix(path, excludedPath) {
				excluded = true
				break
			}
		}
		if !excluded {
			filtered = append(filtered, line)
		}
	}
	return strings.Join(filtered, "\n")
}
