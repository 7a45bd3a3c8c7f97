package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/term"

	"github.com/pengelbrecht/hive/internal/config"
	"github.com/pengelbrecht/hive/internal/handoff"
	"github.com/pengelbrecht/hive/internal/worktree"
)

// app bundles what most commands need.
type app struct {
	cwd      string
	mainRepo string // empty outside a git repository
	cfg      *config.Config
	doc      config.Document
	log      *log.Logger

	mgr     *worktree.Manager
	handoff *handoff.Store
}

// loadApp resolves the repository and configuration for the current
// directory. With needRepo set, running outside a repository is an error.
func loadApp(ctx context.Context, needRepo bool) (*app, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	a := &app{cwd: cwd, log: newLogger()}

	a.mainRepo, err = worktree.ResolveMainRepoPath(ctx, cwd)
	switch {
	case errors.Is(err, worktree.ErrNotGitRepo) && !needRepo:
		a.mainRepo = ""
	case err != nil:
		return nil, err
	}

	a.cfg, a.doc, err = config.Load(a.mainRepo)
	if err != nil {
		return nil, err
	}

	if a.mainRepo == "" {
		return a, nil
	}

	a.handoff = handoff.NewStore(a.mainRepo, a.log)
	opts := worktree.OptionsFromConfig(a.cfg.Worktrees)
	opts.Logger = a.log
	a.mgr, err = worktree.NewManager(ctx, a.mainRepo, opts)
	if err != nil {
		return nil, err
	}
	// Every new worktree sees its branch's handoff note.
	a.mgr.AddOnCreate(func(wt *worktree.Worktree) error {
		return a.handoff.Link(wt.Path, wt.Branch)
	})
	return a, nil
}

// repoName is the main repository's directory name, or the working
// directory's outside a repository.
func (a *app) repoName() string {
	if a.mgr != nil {
		return a.mgr.RepoName()
	}
	return filepath.Base(a.cwd)
}

// currentBranch is the branch checked out in the working directory.
func (a *app) currentBranch(ctx context.Context) (string, error) {
	return worktree.BranchAt(ctx, a.cwd)
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func terminalWidth(f *os.File) int {
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

func secondsFlag(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
