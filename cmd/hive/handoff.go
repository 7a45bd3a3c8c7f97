package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pengelbrecht/hive/internal/handoff"
	"github.com/pengelbrecht/hive/internal/worktree"
)

// defaultEditor is used when $EDITOR is unset.
const defaultEditor = "vim"

var handoffCmd = &cobra.Command{
	Use:   "handoff",
	Short: "Per-branch notes for the next agent session",
	Long: `Handoff notes live in the main repository under .claude/handoffs and are
linked into every worktree as .claude/HANDOFF.md. The branch defaults to
the one checked out in the current directory.`,
}

var handoffShowCmd = &cobra.Command{
	Use:   "show [branch]",
	Short: "Print a branch's handoff",
	Args:  cobra.MaximumNArgs(1),
	RunE: withHandoff(func(ctx context.Context, cmd *cobra.Command, a *app, branch string) error {
		h, err := a.handoff.Get(branch)
		if err != nil {
			return err
		}
		if h.Empty() {
			fmt.Fprintf(os.Stderr, "no handoff for %s\n", branch)
			return nil
		}
		out := h.Body
		if isTerminal(os.Stdout) {
			if rendered, err := handoff.Render(h.Body, terminalWidth(os.Stdout)); err == nil {
				out = rendered
			} else {
				a.log.Debug("render failed", "err", err)
			}
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	}),
}

var handoffCreateCmd = &cobra.Command{
	Use:   "create [branch]",
	Short: "Write a handoff template for a branch",
	Args:  cobra.MaximumNArgs(1),
	RunE: withHandoff(func(ctx context.Context, cmd *cobra.Command, a *app, branch string) error {
		if err := createHandoff(ctx, a, branch); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), a.handoff.Path(branch))
		return nil
	}),
}

var handoffEditCmd = &cobra.Command{
	Use:   "edit [branch]",
	Short: "Open a branch's handoff in $EDITOR",
	Args:  cobra.MaximumNArgs(1),
	RunE: withHandoff(func(ctx context.Context, cmd *cobra.Command, a *app, branch string) error {
		h, err := a.handoff.Get(branch)
		if err != nil {
			return err
		}
		if h.Empty() {
			if err := createHandoff(ctx, a, branch); err != nil {
				return err
			}
		}
		return runEditor(ctx, a.handoff.Path(branch))
	}),
}

var handoffClearCmd = &cobra.Command{
	Use:   "clear [branch]",
	Short: "Empty a branch's handoff, keeping the file",
	Args:  cobra.MaximumNArgs(1),
	RunE: withHandoff(func(ctx context.Context, cmd *cobra.Command, a *app, branch string) error {
		return a.handoff.Clear(branch)
	}),
}

var handoffPathCmd = &cobra.Command{
	Use:   "path [branch]",
	Short: "Print the file backing a branch's handoff",
	Args:  cobra.MaximumNArgs(1),
	RunE: withHandoff(func(ctx context.Context, cmd *cobra.Command, a *app, branch string) error {
		fmt.Fprintln(cmd.OutOrStdout(), a.handoff.Path(branch))
		return nil
	}),
}

var handoffListAll bool

var handoffListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List stored handoffs",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		list, err := a.handoff.List(handoffListAll)
		if err != nil {
			return err
		}
		for _, h := range list {
			fmt.Fprintln(cmd.OutOrStdout(), formatHandoffRow(h))
		}
		return nil
	},
}

var handoffCleanDryRun bool

var handoffCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove handoffs whose branch no longer exists",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		orphans, err := a.handoff.CleanOrphans(cmd.Context(), a.mgr, handoffCleanDryRun)
		if err != nil {
			return err
		}
		verb := "removed"
		if handoffCleanDryRun {
			verb = "would remove"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d orphaned handoff(s)\n", verb, len(orphans))
		return nil
	},
}

func init() {
	handoffListCmd.Flags().BoolVar(&handoffListAll, "all", false, "Include empty handoffs")
	handoffCleanCmd.Flags().BoolVar(&handoffCleanDryRun, "dry-run", false, "Report orphans without deleting them")

	handoffCmd.AddCommand(handoffShowCmd)
	handoffCmd.AddCommand(handoffCreateCmd)
	handoffCmd.AddCommand(handoffEditCmd)
	handoffCmd.AddCommand(handoffClearCmd)
	handoffCmd.AddCommand(handoffListCmd)
	handoffCmd.AddCommand(handoffCleanCmd)
	handoffCmd.AddCommand(handoffPathCmd)
	rootCmd.AddCommand(handoffCmd)
}

type handoffFunc func(ctx context.Context, cmd *cobra.Command, a *app, branch string) error

// withHandoff loads the app and resolves the optional branch argument.
func withHandoff(fn handoffFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := loadApp(ctx, true)
		if err != nil {
			return err
		}
		branch := ""
		if len(args) > 0 {
			branch = args[0]
		} else if branch, err = a.currentBranch(ctx); err != nil {
			return err
		}
		return fn(ctx, cmd, a, branch)
	}
}

// createHandoff writes the template unless the branch already has notes.
func createHandoff(ctx context.Context, a *app, branch string) error {
	h, err := a.handoff.Get(branch)
	if err != nil {
		return err
	}
	if !h.Empty() {
		return fmt.Errorf("handoff for %s already exists (use hive handoff edit)", branch)
	}

	dir := a.cwd
	if path, err := a.mgr.Path(ctx, branch); err == nil {
		dir = path
	}
	lastCommit, _ := worktree.LastCommit(ctx, dir)
	return a.handoff.Set(branch, handoff.Template(branch, lastCommit, time.Now()), lastCommit)
}

// runEditor opens path in $EDITOR, falling back to vim.
func runEditor(ctx context.Context, path string) error {
	editor := strings.Fields(os.Getenv("EDITOR"))
	if len(editor) == 0 {
		editor = []string{defaultEditor}
	}
	c := exec.CommandContext(ctx, editor[0], append(editor[1:], path)...)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("run editor: %w", err)
	}
	return nil
}

func formatHandoffRow(h *handoff.Handoff) string {
	created := "-"
	if !h.CreatedAt.IsZero() {
		created = h.CreatedAt.Local().Format("2006-01-02 15:04")
	}
	state := ""
	if h.Empty() {
		state = dimStyle.Render("  (empty)")
	}
	return fmt.Sprintf("%-30s %s%s", h.Branch, created, state)
}
