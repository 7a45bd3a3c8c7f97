package worktree

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// git runs a git subcommand in dir and returns trimmed stdout. On failure the
// error carries git's stderr.
func git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("git %s: %s: %w", args[0], msg, err)
	}
	// Only trailing newlines are trimmed; porcelain status lines start with a space.
	return strings.TrimRight(stdout.String(), "\r\n"), nil
}

// ResolveMainRepoPath returns the main repository root for any directory
// inside the repository or one of its worktrees. It goes through the shared
// git directory, so the answer is the same from every worktree.
func ResolveMainRepoPath(ctx context.Context, dir string) (string, error) {
	out, err := git(ctx, dir, "rev-parse", "--git-common-dir")
	if err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return "", fmt.Errorf("git not available: %w", err)
		}
		return "", ErrNotGitRepo
	}

	commonDir := out
	if !filepath.IsAbs(commonDir) {
		commonDir = filepath.Join(dir, commonDir)
	}
	if resolved, err := filepath.EvalSymlinks(commonDir); err == nil {
		commonDir = resolved
	}
	commonDir, err = filepath.Abs(commonDir)
	if err != nil {
		return "", err
	}
	return filepath.Dir(commonDir), nil
}

// CurrentBranch returns the branch checked out in the main repository.
func (m *Manager) CurrentBranch(ctx context.Context) (string, error) {
	return BranchAt(ctx, m.mainRepo)
}

// BranchAt returns the branch checked out in dir, which may be any worktree.
func BranchAt(ctx context.Context, dir string) (string, error) {
	return git(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
}

// DefaultBranch returns main or master when present locally, then the
// target of origin/HEAD, then the main repository's current branch.
func (m *Manager) DefaultBranch(ctx context.Context) (string, error) {
	for _, name := range []string{"main", "master"} {
		if m.branchExists(ctx, name) {
			return name, nil
		}
	}
	if ref, err := git(ctx, m.mainRepo, "symbolic-ref", "--quiet", "refs/remotes/origin/HEAD"); err == nil {
		return strings.TrimPrefix(ref, "refs/remotes/origin/"), nil
	}
	branch, err := m.CurrentBranch(ctx)
	if err != nil {
		return "", fmt.Errorf("cannot determine default branch: %w", err)
	}
	return branch, nil
}

// Branches returns local branch names.
func (m *Manager) Branches(ctx context.Context) ([]string, error) {
	out, err := git(ctx, m.mainRepo, "for-each-ref", "--format=%(refname:short)", "refs/heads")
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	return splitLines(out), nil
}

// AllBranches returns local and remote branch names, with the remote
// prefix stripped and duplicates removed.
func (m *Manager) AllBranches(ctx context.Context) ([]string, error) {
	out, err := git(ctx, m.mainRepo, "for-each-ref", "--format=%(refname)", "refs/heads", "refs/remotes")
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}

	seen := map[string]bool{}
	var names []string
	for _, ref := range splitLines(out) {
		var name string
		switch {
		case strings.HasPrefix(ref, "refs/heads/"):
			name = strings.TrimPrefix(ref, "refs/heads/")
		case strings.HasPrefix(ref, "refs/remotes/"):
			rest := strings.TrimPrefix(ref, "refs/remotes/")
			_, name, _ = strings.Cut(rest, "/")
		}
		if name == "" || name == "HEAD" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names, nil
}

// LastCommit returns "<short hash> <subject>" for HEAD in dir.
func LastCommit(ctx context.Context, dir string) (string, error) {
	return git(ctx, dir, "log", "-1", "--format=%h %s")
}

func (m *Manager) branchExists(ctx context.Context, branch string) bool {
	_, err := git(ctx, m.mainRepo, "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	return err == nil
}

func (m *Manager) remoteBranchExists(ctx context.Context, branch string) bool {
	_, err := git(ctx, m.mainRepo, "show-ref", "--verify", "--quiet", "refs/remotes/origin/"+branch)
	return err == nil
}

// resolves reports whether ref names a commit.
func (m *Manager) resolves(ctx context.Context, ref string) bool {
	_, err := git(ctx, m.mainRepo, "rev-parse", "--verify", "--quiet", ref+"^{commit}")
	return err == nil
}

func splitLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// excludePath returns the repository's info/exclude file. It lives in the
// shared git directory, so every worktree sees the same patterns.
func (m *Manager) excludePath(ctx context.Context) (string, error) {
	out, err := git(ctx, m.mainRepo, "rev-parse", "--git-path", "info/exclude")
	if err != nil {
		return "", fmt.Errorf("locate info/exclude: %w", err)
	}
	if !filepath.IsAbs(out) {
		out = filepath.Join(m.mainRepo, out)
	}
	return out, nil
}
