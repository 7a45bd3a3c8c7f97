package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/pengelbrecht/hive/internal/issues"
	"github.com/pengelbrecht/hive/internal/worktree"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Read and write the task note of each worktree",
	Long: `Each worktree may carry a task note in .claude/task.local.md, written when
a worktree is created from an issue or set by hand. Without a subcommand,
task lists the note summary of every worktree. Subcommands default to the
worktree containing the current directory.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := loadApp(ctx, true)
		if err != nil {
			return err
		}
		wts, err := a.mgr.List(ctx)
		if err != nil {
			return err
		}
		printTasks(cmd.OutOrStdout(), wts)
		return nil
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show [branch]",
	Short: "Print a worktree's task note",
	Args:  cobra.MaximumNArgs(1),
	RunE: withTask(func(ctx context.Context, cmd *cobra.Command, a *app, wt *worktree.Worktree) error {
		content, err := issues.ReadTask(wt.Path)
		if err != nil {
			return err
		}
		if content == "" {
			fmt.Fprintf(os.Stderr, "no task for %s\n", wt.Name())
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), content)
		return nil
	}),
}

var taskSetCmd = &cobra.Command{
	Use:   "set <branch> <text...>",
	Short: "Replace a worktree's task note",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := loadApp(ctx, true)
		if err != nil {
			return err
		}
		wt, err := a.mgr.Get(ctx, args[0])
		if err != nil {
			return err
		}
		if err := issues.SetTask(wt.Path, strings.Join(args[1:], " ")); err != nil {
			return err
		}
		a.log.Debug("task set", "worktree", wt.Name(), "path", issues.TaskPath(wt.Path))
		return nil
	},
}

var taskEditCmd = &cobra.Command{
	Use:   "edit [branch]",
	Short: "Open a worktree's task note in $EDITOR",
	Args:  cobra.MaximumNArgs(1),
	RunE: withTask(func(ctx context.Context, cmd *cobra.Command, a *app, wt *worktree.Worktree) error {
		content, err := issues.ReadTask(wt.Path)
		if err != nil {
			return err
		}
		if content == "" {
			if err := issues.SetTask(wt.Path, "# Task: "+wt.Name()+"\n"); err != nil {
				return err
			}
		}
		return runEditor(ctx, issues.TaskPath(wt.Path))
	}),
}

var taskClearCmd = &cobra.Command{
	Use:   "clear [branch]",
	Short: "Remove a worktree's task note",
	Args:  cobra.MaximumNArgs(1),
	RunE: withTask(func(ctx context.Context, cmd *cobra.Command, a *app, wt *worktree.Worktree) error {
		return issues.ClearTask(wt.Path)
	}),
}

func init() {
	taskCmd.AddCommand(taskShowCmd)
	taskCmd.AddCommand(taskSetCmd)
	taskCmd.AddCommand(taskEditCmd)
	taskCmd.AddCommand(taskClearCmd)
	rootCmd.AddCommand(taskCmd)
}

type taskFunc func(ctx context.Context, cmd *cobra.Command, a *app, wt *worktree.Worktree) error

// withTask loads the app and resolves the optional branch argument to a
// worktree, defaulting to the one containing the working directory.
func withTask(fn taskFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := loadApp(ctx, true)
		if err != nil {
			return err
		}
		if len(args) > 0 {
			wt, err := a.mgr.Get(ctx, args[0])
			if err != nil {
				return err
			}
			return fn(ctx, cmd, a, wt)
		}
		wts, err := a.mgr.List(ctx)
		if err != nil {
			return err
		}
		wt := containing(wts, a.cwd)
		if wt == nil {
			return fmt.Errorf("%w: %s", worktree.ErrWorktreeNotFound, a.cwd)
		}
		return fn(ctx, cmd, a, wt)
	}
}

func printTasks(w io.Writer, wts []*worktree.Worktree) {
	width := 0
	for _, wt := range wts {
		width = max(width, runewidth.StringWidth(wt.Name()))
	}
	for _, wt := range wts {
		summary := dimStyle.Render("(none)")
		if content, err := issues.ReadTask(wt.Path); err != nil {
			summary = errorStyle.Render(err.Error())
		} else if s := issues.TaskSummary(content); s != "" {
			summary = s
		}
		name := runewidth.FillRight(wt.Name(), width)
		if wt.Main {
			name = mainStyle.Render(name)
		} else {
			name = branchStyle.Render(name)
		}
		fmt.Fprintf(w, "  %s  %s\n", name, summary)
	}
}
