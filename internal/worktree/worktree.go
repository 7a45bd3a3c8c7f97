// Package worktree manages the git worktrees hive binds agent sessions to.
//
// The main repository is treated as a permanent pseudo-worktree: it is always
// listed first, can be addressed as "main" or "1", and can never be created
// or deleted through the Manager.
package worktree

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/pengelbrecht/hive/internal/config"
)

// MainAlias addresses the main repository regardless of its checked-out branch.
const MainAlias = "main"

// mainIndexAlias is the picker's position shortcut for the main repository.
const mainIndexAlias = "1"

var (
	// ErrNotGitRepo is returned when the directory is not inside a git repository.
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrWorktreeNotFound is returned when no worktree exists for a branch.
	ErrWorktreeNotFound = errors.New("worktree not found")

	// ErrBranchInUse is returned when a worktree already holds the branch.
	ErrBranchInUse = errors.New("branch already has a worktree")

	// ErrWorktreeDirty is returned when deleting a worktree with local changes.
	ErrWorktreeDirty = errors.New("worktree has uncommitted changes")

	// ErrInvalidBase is returned when the base ref does not resolve to a commit.
	ErrInvalidBase = errors.New("base ref does not resolve")

	// ErrMainWorktree is returned for create or delete of the main repository.
	ErrMainWorktree = errors.New("operation not allowed on the main repository")

	// ErrInvalidBranch is returned for names git refuses as branch names.
	ErrInvalidBranch = errors.New("invalid branch name")
)

// Worktree is one checked-out working copy of the shared repository.
type Worktree struct {
	Branch     string // empty for a detached HEAD
	Path       string
	Head       string
	Main       bool
	Dirty      bool
	Ahead      int // commits on Branch not on the default branch
	Behind     int // commits on the default branch not on Branch
	LastCommit string
}

// Name returns the identifier used on the command line.
func (w *Worktree) Name() string {
	if w.Branch == "" {
		return filepath.Base(w.Path)
	}
	return w.Branch
}

// Options configures a Manager. OptionsFromConfig fills it from hive config.
type Options struct {
	// ParentDir holds project-mode worktrees. Relative paths are anchored at
	// the main repository. {repo} and {branch} are expanded.
	ParentDir string
	// UseHome selects the ~/.git-worktrees/{repo}-{branch} layout.
	UseHome bool
	// HomeDir overrides the user's home directory.
	HomeDir string

	CopyFiles    []string
	SymlinkFiles []string
	PostCreate   []config.PostCreateAction

	// OnCreate hooks run after seeding and before post-create actions.
	OnCreate []func(*Worktree) error

	Logger *log.Logger
}

// OptionsFromConfig maps the worktrees config section onto Options.
func OptionsFromConfig(cfg config.Worktrees) Options {
	return Options{
		ParentDir:    cfg.ParentDir,
		UseHome:      cfg.UseHome,
		CopyFiles:    cfg.CopyFiles,
		SymlinkFiles: cfg.SymlinkFiles,
		PostCreate:   cfg.PostCreate,
	}
}

// Manager handles git worktree lifecycle for one repository.
type Manager struct {
	mainRepo string
	opts     Options
	layout   Layout
	log      *log.Logger
}

// NewManager creates a manager for the repository containing dir. dir may
// be the main repository or any of its worktrees.
func NewManager(ctx context.Context, dir string, opts Options) (*Manager, error) {
	mainRepo, err := ResolveMainRepoPath(ctx, dir)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	home := opts.HomeDir
	if home == "" {
		home, _ = os.UserHomeDir()
	}

	return &Manager{
		mainRepo: mainRepo,
		opts:     opts,
		layout:   newLayout(mainRepo, home, opts.ParentDir, opts.UseHome),
		log:      logger.WithPrefix("worktree"),
	}, nil
}

// MainRepoPath returns the main repository's root directory.
func (m *Manager) MainRepoPath() string {
	return m.mainRepo
}

// RepoName returns the main repository's directory name.
func (m *Manager) RepoName() string {
	return filepath.Base(m.mainRepo)
}

// ParentDir returns the directory new worktrees are created in.
func (m *Manager) ParentDir() string {
	return filepath.Dir(m.layout.PathFor("x"))
}

// AddOnCreate registers a hook run for every new worktree.
func (m *Manager) AddOnCreate(fn func(*Worktree) error) {
	m.opts.OnCreate = append(m.opts.OnCreate, fn)
}

// List returns all worktrees, main repository first, with status filled in.
func (m *Manager) List(ctx context.Context) ([]*Worktree, error) {
	worktrees, err := m.entries(ctx)
	if err != nil {
		return nil, err
	}

	defaultBranch, _ := m.DefaultBranch(ctx)
	for _, wt := range worktrees {
		m.fillStatus(ctx, wt, defaultBranch)
	}
	return worktrees, nil
}

// Get returns the worktree for branch. "main" and "1" address the main repository.
func (m *Manager) Get(ctx context.Context, branch string) (*Worktree, error) {
	worktrees, err := m.entries(ctx)
	if err != nil {
		return nil, err
	}
	if wt := find(worktrees, branch); wt != nil {
		return wt, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrWorktreeNotFound, branch)
}

// Path returns the filesystem path of branch's worktree.
func (m *Manager) Path(ctx context.Context, branch string) (string, error) {
	wt, err := m.Get(ctx, branch)
	if err != nil {
		return "", err
	}
	return wt.Path, nil
}

// Exists reports whether a worktree exists for branch.
func (m *Manager) Exists(ctx context.Context, branch string) bool {
	_, err := m.Get(ctx, branch)
	return err == nil
}

// Create adds a worktree for branch. An existing local branch is checked
// out as is; a branch only on origin is tracked; otherwise a new branch is
// cut from baseRef, or from the default branch when baseRef is empty.
//
// Post-create actions run last. If one fails, the worktree is returned
// together with a *PostCreateError and is left in place.
func (m *Manager) Create(ctx context.Context, branch, baseRef string) (*Worktree, error) {
	if isMainAlias(branch) {
		return nil, ErrMainWorktree
	}
	if _, err := git(ctx, m.mainRepo, "check-ref-format", "--branch", branch); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBranch, branch)
	}

	worktrees, err := m.entries(ctx)
	if err != nil {
		return nil, err
	}
	for _, wt := range worktrees {
		if wt.Branch == branch {
			return nil, fmt.Errorf("%w: %s is checked out at %s", ErrBranchInUse, branch, wt.Path)
		}
	}

	wtPath := m.layout.PathFor(branch)
	if _, err := os.Stat(wtPath); err == nil {
		return nil, fmt.Errorf("%w: %s already exists", ErrBranchInUse, wtPath)
	}

	if baseRef != "" && !m.resolves(ctx, baseRef) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBase, baseRef)
	}

	var args []string
	switch {
	case m.branchExists(ctx, branch):
		args = []string{"worktree", "add", wtPath, branch}
	case m.remoteBranchExists(ctx, branch):
		args = []string{"worktree", "add", "-b", branch, wtPath, "origin/" + branch}
	default:
		if baseRef == "" {
			if baseRef, err = m.DefaultBranch(ctx); err != nil {
				return nil, err
			}
			if !m.resolves(ctx, baseRef) {
				return nil, fmt.Errorf("%w: %s", ErrInvalidBase, baseRef)
			}
		}
		args = []string{"worktree", "add", "-b", branch, wtPath, baseRef}
	}

	if m.layout.ProjectRelative() {
		exclude, err := m.excludePath(ctx)
		if err != nil {
			return nil, err
		}
		if _, err := EnsureExcluded(exclude, m.layout.IgnoreEntry()); err != nil {
			return nil, fmt.Errorf("ensuring exclude entry: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(wtPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create worktree directory: %w", err)
	}

	if _, err := git(ctx, m.mainRepo, args...); err != nil {
		// Two invocations racing on one branch land here; git is the arbiter.
		if isInUseMessage(err.Error()) {
			return nil, fmt.Errorf("%w: %v", ErrBranchInUse, err)
		}
		return nil, fmt.Errorf("failed to create worktree: %w", err)
	}
	m.log.Info("created worktree", "branch", branch, "path", wtPath)

	wt := &Worktree{Branch: branch, Path: wtPath}
	wt.Head, _ = git(ctx, wtPath, "rev-parse", "HEAD")

	if err := m.Seed(wtPath); err != nil {
		m.log.Warn("seeding worktree", "err", err)
	}
	for _, hook := range m.opts.OnCreate {
		if err := hook(wt); err != nil {
			m.log.Warn("post-create hook failed", "branch", branch, "err", err)
		}
	}

	if err := m.runPostCreate(ctx, wtPath); err != nil {
		return wt, err
	}
	return wt, nil
}

// Delete removes branch's worktree. The branch itself is kept.
func (m *Manager) Delete(ctx context.Context, branch string, force bool) error {
	if isMainAlias(branch) {
		return ErrMainWorktree
	}
	wt, err := m.Get(ctx, branch)
	if err != nil {
		return err
	}
	if wt.Main {
		return ErrMainWorktree
	}

	if !force {
		dirty, err := m.isDirty(ctx, wt.Path)
		if err != nil {
			return err
		}
		if dirty {
			return fmt.Errorf("%w: %s", ErrWorktreeDirty, wt.Path)
		}
	}

	// The dirty check above is the gate. git would otherwise also refuse
	// over hive's own untracked files.
	if _, err := git(ctx, m.mainRepo, "worktree", "remove", "--force", wt.Path); err != nil {
		return fmt.Errorf("failed to remove worktree: %w", err)
	}
	m.log.Info("removed worktree", "branch", branch, "path", wt.Path)
	return nil
}

// entries lists worktrees without status information.
func (m *Manager) entries(ctx context.Context) ([]*Worktree, error) {
	out, err := git(ctx, m.mainRepo, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("failed to list worktrees: %w", err)
	}
	worktrees, err := parseWorktreeList(out)
	if err != nil {
		return nil, err
	}
	if len(worktrees) > 0 {
		worktrees[0].Main = true
	}
	return worktrees, nil
}

// find resolves a CLI name to a worktree.
func find(worktrees []*Worktree, name string) *Worktree {
	for _, wt := range worktrees {
		if wt.Branch == name && name != "" {
			return wt
		}
	}
	if isMainAlias(name) && len(worktrees) > 0 {
		return worktrees[0]
	}
	for _, wt := range worktrees {
		if !wt.Main && filepath.Base(wt.Path) == EscapeBranch(name) {
			return wt
		}
	}
	return nil
}

func isMainAlias(name string) bool {
	return name == MainAlias || name == mainIndexAlias
}

func isInUseMessage(msg string) bool {
	return strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "already checked out") ||
		strings.Contains(msg, "already used by worktree")
}

// parseWorktreeList parses the output of `git worktree list --porcelain`.
// Format:
//
//	worktree /path/to/worktree
//	HEAD <commit>
//	branch refs/heads/<branch>
//	<blank line>
//
// Detached worktrees carry a "detached" line instead of "branch".
func parseWorktreeList(output string) ([]*Worktree, error) {
	var worktrees []*Worktree
	var current *Worktree

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "worktree "):
			current = &Worktree{Path: strings.TrimPrefix(line, "worktree ")}
			worktrees = append(worktrees, current)
		case current == nil:
			continue
		case strings.HasPrefix(line, "HEAD "):
			current.Head = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			current.Branch = strings.TrimPrefix(line, "branch refs/heads/")
		case line == "":
			current = nil
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse worktree list: %w", err)
	}
	return worktrees, nil
}
