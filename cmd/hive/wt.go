package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/pengelbrecht/hive/internal/runner"
	"github.com/pengelbrecht/hive/internal/worktree"
)

var (
	branchStyle = lipgloss.NewStyle().Bold(true)
	mainStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	dirtyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

var wtCmd = &cobra.Command{
	Use:     "wt",
	Aliases: []string{"worktree"},
	Short:   "Manage git worktrees",
}

var wtCreateCmd = &cobra.Command{
	Use:   "create <branch> [base]",
	Short: "Create a worktree for a branch",
	Long: `Create checks out an existing local branch, tracks a branch that only
exists on origin, or cuts a new branch from base (default: the default
branch). Configured files are copied or symlinked in and post-create
actions run last.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		base := ""
		if len(args) == 2 {
			base = args[1]
		}
		wt, err := a.mgr.Create(cmd.Context(), args[0], base)
		if wt != nil {
			fmt.Fprintln(cmd.OutOrStdout(), wt.Path)
		}
		return err
	},
}

var wtDeleteForce bool

var wtDeleteCmd = &cobra.Command{
	Use:     "delete <branch>",
	Aliases: []string{"rm"},
	Short:   "Remove a branch's worktree (the branch is kept)",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		err = a.mgr.Delete(cmd.Context(), args[0], wtDeleteForce)
		if errors.Is(err, worktree.ErrWorktreeDirty) {
			return fmt.Errorf("%w (use -f to delete anyway)", err)
		}
		return err
	},
}

var wtListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List worktrees with status",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		wts, err := a.mgr.List(cmd.Context())
		if err != nil {
			return err
		}
		printWorktrees(cmd.OutOrStdout(), wts, a.cwd)
		return nil
	},
}

var wtPathCmd = &cobra.Command{
	Use:   "path <branch>",
	Short: "Print a worktree's path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		path, err := a.mgr.Path(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var wtCdCmd = &cobra.Command{
	Use:   "cd <branch>",
	Short: "Print a cd command for shell eval",
	Long:  `Use as: eval "$(hive wt cd my-branch)"`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		path, err := a.mgr.Path(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "cd "+shellQuote(path))
		return nil
	},
}

var wtExecCmd = &cobra.Command{
	Use:   "exec <branch> -- <command> [args...]",
	Short: "Run a command inside a worktree",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := loadApp(ctx, true)
		if err != nil {
			return err
		}
		path, err := a.mgr.Path(ctx, args[0])
		if err != nil {
			return err
		}
		r, stop := newRunner(a)
		defer stop()
		code, err := r.Run(ctx, runner.NewSession(args[1:], path))
		if err != nil {
			return err
		}
		if code != 0 {
			return &exitError{code: code}
		}
		return nil
	},
}

var wtBaseCmd = &cobra.Command{
	Use:   "base",
	Short: "Print the main repository path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), a.mainRepo)
		return nil
	},
}

var wtParentCmd = &cobra.Command{
	Use:   "parent",
	Short: "Print the directory new worktrees are created in",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), a.mgr.ParentDir())
		return nil
	},
}

var wtExistsCmd = &cobra.Command{
	Use:   "exists <branch>",
	Short: "Exit 0 if the branch has a worktree, 1 otherwise",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		if !a.mgr.Exists(cmd.Context(), args[0]) {
			return &exitError{code: ExitFailure}
		}
		return nil
	},
}

func init() {
	wtDeleteCmd.Flags().BoolVarP(&wtDeleteForce, "force", "f", false, "Delete even with uncommitted changes")

	wtCmd.AddCommand(wtCreateCmd)
	wtCmd.AddCommand(wtDeleteCmd)
	wtCmd.AddCommand(wtListCmd)
	wtCmd.AddCommand(wtPathCmd)
	wtCmd.AddCommand(wtCdCmd)
	wtCmd.AddCommand(wtExecCmd)
	wtCmd.AddCommand(wtBaseCmd)
	wtCmd.AddCommand(wtParentCmd)
	wtCmd.AddCommand(wtExistsCmd)
	rootCmd.AddCommand(wtCmd)
}

// printWorktrees writes one aligned row per worktree and marks the one
// containing cwd.
func printWorktrees(w io.Writer, wts []*worktree.Worktree, cwd string) {
	width := 0
	for _, wt := range wts {
		width = max(width, runewidth.StringWidth(wt.Name()))
	}
	current := containing(wts, cwd)

	for _, wt := range wts {
		marker := "  "
		if wt == current {
			marker = "* "
		}
		name := runewidth.FillRight(wt.Name(), width)
		if wt.Main {
			name = mainStyle.Render(name)
		} else {
			name = branchStyle.Render(name)
		}
		fmt.Fprintf(w, "%s%s  %s%s\n", marker, name, wt.Path, worktreeStatus(wt))
	}
}

// containing returns the deepest worktree holding dir, or nil. Project-mode
// worktrees nest inside the main repository.
func containing(wts []*worktree.Worktree, dir string) *worktree.Worktree {
	var best *worktree.Worktree
	for _, wt := range wts {
		if within(dir, wt.Path) && (best == nil || len(wt.Path) > len(best.Path)) {
			best = wt
		}
	}
	return best
}

func worktreeStatus(wt *worktree.Worktree) string {
	var parts []string
	if wt.Dirty {
		parts = append(parts, dirtyStyle.Render("modified"))
	}
	if wt.Ahead > 0 {
		parts = append(parts, fmt.Sprintf("↑%d", wt.Ahead))
	}
	if wt.Behind > 0 {
		parts = append(parts, fmt.Sprintf("↓%d", wt.Behind))
	}
	if len(parts) == 0 {
		return ""
	}
	return "  " + strings.Join(parts, " ")
}

// within reports whether path is dir or below it.
func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}

// shellQuote wraps s in single quotes for POSIX shells.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
