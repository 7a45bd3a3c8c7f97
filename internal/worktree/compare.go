package worktree

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
)

// DiffMode selects how much of a diff to produce.
type DiffMode int

const (
	DiffFull DiffMode = iota
	DiffStat
	DiffNames
)

// Diff returns the changes in dir, committed and not, relative to base.
func Diff(ctx context.Context, dir, base string, mode DiffMode) (string, error) {
	args := []string{"diff"}
	switch mode {
	case DiffStat:
		args = append(args, "--stat")
	case DiffNames:
		args = append(args, "--name-only")
	}
	args = append(args, base)
	out, err := git(ctx, dir, args...)
	if err != nil {
		return "", fmt.Errorf("diff against %s: %w", base, err)
	}
	return out, nil
}

// ChangedFiles lists the paths in dir that differ from base.
func ChangedFiles(ctx context.Context, dir, base string) ([]string, error) {
	out, err := Diff(ctx, dir, base, DiffNames)
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// Divergence counts the commits HEAD in dir has that ref lacks (ahead) and
// the ones ref has that HEAD lacks (behind).
func Divergence(ctx context.Context, dir, ref string) (ahead, behind int, err error) {
	out, err := git(ctx, dir, "rev-list", "--left-right", "--count", ref+"...HEAD")
	if err != nil {
		return 0, 0, fmt.Errorf("compare with %s: %w", ref, err)
	}
	behind, ahead = parseLeftRight(out)
	return ahead, behind, nil
}

// Fetch updates origin's copy of branch.
func (m *Manager) Fetch(ctx context.Context, branch string) error {
	if _, err := git(ctx, m.mainRepo, "fetch", "--quiet", "origin", branch); err != nil {
		return fmt.Errorf("fetch origin %s: %w", branch, err)
	}
	return nil
}

// UpstreamRef returns origin/<branch> when it exists, otherwise branch.
func (m *Manager) UpstreamRef(ctx context.Context, branch string) string {
	if m.remoteBranchExists(ctx, branch) {
		return "origin/" + branch
	}
	return branch
}

// FileOverlap is a path changed in more than one worktree.
type FileOverlap struct {
	Path      string
	Worktrees []string
}

// Overlaps returns the paths that appear under more than one worktree in
// changes, sorted by path.
func Overlaps(changes map[string][]string) []FileOverlap {
	byFile := map[string][]string{}
	for name, files := range changes {
		for _, f := range files {
			byFile[f] = append(byFile[f], name)
		}
	}

	var out []FileOverlap
	for path, names := range byFile {
		if len(names) < 2 {
			continue
		}
		sort.Strings(names)
		out = append(out, FileOverlap{Path: path, Worktrees: names})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// FileChange is one line of `git diff --name-status`.
type FileChange struct {
	Status string // A, M, D, R100, ...
	Path   string
}

// MergePreview is the outcome of a trial merge.
type MergePreview struct {
	Source    string
	Into      string
	Changes   []FileChange // set when the merge is clean
	Conflicts []string
}

// Clean reports whether the merge would apply without conflicts.
func (p *MergePreview) Clean() bool {
	return len(p.Conflicts) == 0
}

// PreviewMerge merges HEAD of dir into the into branch inside a throwaway
// shared clone. Neither the repository nor any worktree is touched.
func (m *Manager) PreviewMerge(ctx context.Context, dir, into string) (*MergePreview, error) {
	head, err := git(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	source, _ := BranchAt(ctx, dir)
	if source == "" {
		source = head[:min(len(head), 7)]
	}

	tmp, err := os.MkdirTemp("", "hive-merge-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	if _, err := git(ctx, m.mainRepo, "clone", "--quiet", "--shared", m.mainRepo, tmp); err != nil {
		return nil, fmt.Errorf("clone for merge preview: %w", err)
	}
	if _, err := git(ctx, tmp, "checkout", "--quiet", into); err != nil {
		return nil, fmt.Errorf("checkout %s: %w", into, err)
	}

	p := &MergePreview{Source: source, Into: into}
	_, mergeErr := git(ctx, tmp,
		"-c", "user.name=hive", "-c", "user.email=hive@localhost",
		"merge", "--no-commit", "--no-ff", head)
	if mergeErr != nil {
		out, err := git(ctx, tmp, "diff", "--name-only", "--diff-filter=U")
		if err != nil {
			return nil, err
		}
		p.Conflicts = splitLines(out)
		if len(p.Conflicts) == 0 {
			return nil, fmt.Errorf("trial merge failed: %w", mergeErr)
		}
		return p, nil
	}

	out, err := git(ctx, tmp, "diff", "--cached", "--name-status")
	if err != nil {
		return nil, err
	}
	for _, line := range splitLines(out) {
		status, path, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		// Renames carry "old\tnew"; report the new path.
		if _, newPath, renamed := strings.Cut(path, "\t"); renamed {
			path = newPath
		}
		p.Changes = append(p.Changes, FileChange{Status: status, Path: path})
	}
	return p, nil
}
