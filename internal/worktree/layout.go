package worktree

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// DefaultWorktreeDir is the default directory name for storing worktrees.
const DefaultWorktreeDir = ".worktrees"

// homeWorktreeDir is the shared parent used when worktrees live under $HOME.
const homeWorktreeDir = ".git-worktrees"

// EscapeBranch turns a branch name into a single path element. The scheme
// is URL path escaping, so "feat/login" becomes "feat%2Flogin" and the
// mapping round-trips through UnescapeBranch.
func EscapeBranch(branch string) string {
	return url.PathEscape(branch)
}

// UnescapeBranch reverses EscapeBranch.
func UnescapeBranch(name string) (string, error) {
	return url.PathUnescape(name)
}

// Layout decides where a branch's worktree lives. It is fixed for the
// lifetime of a Manager.
type Layout struct {
	mainRepo  string
	repo      string
	home      string
	parentDir string
	useHome   bool
}

func newLayout(mainRepo, home, parentDir string, useHome bool) Layout {
	if parentDir == "" {
		parentDir = DefaultWorktreeDir
	}
	return Layout{
		mainRepo:  mainRepo,
		repo:      filepath.Base(mainRepo),
		home:      home,
		parentDir: parentDir,
		useHome:   useHome,
	}
}

// PathFor returns the worktree path for branch.
//
// Home mode:    ~/.git-worktrees/{repo}-{branch}
// Project mode: <parent_dir>/{branch}, with parent_dir relative to the main
// repository unless absolute. A parent_dir containing {branch} is used as
// the full path.
func (l Layout) PathFor(branch string) string {
	escaped := EscapeBranch(branch)
	if l.useHome {
		return filepath.Join(l.home, homeWorktreeDir, l.repo+"-"+escaped)
	}

	dir := strings.ReplaceAll(l.parentDir, "{repo}", l.repo)
	full := strings.Contains(dir, "{branch}")
	dir = strings.ReplaceAll(dir, "{branch}", escaped)

	if strings.HasPrefix(dir, "~/") {
		dir = filepath.Join(l.home, dir[2:])
	} else if !filepath.IsAbs(dir) {
		dir = filepath.Join(l.mainRepo, dir)
	}
	if full {
		return dir
	}
	return filepath.Join(dir, escaped)
}

// ProjectRelative reports whether worktrees live inside the main repository.
func (l Layout) ProjectRelative() bool {
	if l.useHome {
		return false
	}
	rel, err := filepath.Rel(l.mainRepo, l.PathFor("x"))
	return err == nil && !strings.HasPrefix(rel, "..")
}

// IgnoreEntry returns the exclude pattern covering project-relative worktrees.
func (l Layout) IgnoreEntry() string {
	parent := filepath.Dir(l.PathFor("x"))
	rel, err := filepath.Rel(l.mainRepo, parent)
	if err != nil || rel == "." {
		return DefaultWorktreeDir + "/"
	}
	return filepath.ToSlash(rel) + "/"
}

// EnsureExcluded appends entry to the exclude file at path unless a line
// for it is already present. It reports whether the file changed. The file
// is git's local info/exclude, so nothing tracked is touched.
func EnsureExcluded(path, entry string) (bool, error) {
	bare := strings.TrimSuffix(entry, "/")

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return false, err
	}

	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == entry || line == bare || line == "/"+entry || line == "/"+bare {
			return false, nil
		}
	}

	var b strings.Builder
	b.Write(data)
	if len(data) > 0 && !strings.HasSuffix(string(data), "\n") {
		b.WriteString("\n")
	}
	b.WriteString("/" + entry + "\n")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("create exclude dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return false, fmt.Errorf("write exclude file: %w", err)
	}
	return true, nil
}
