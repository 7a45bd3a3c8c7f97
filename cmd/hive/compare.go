package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/pengelbrecht/hive/internal/worktree"
)

// rebaseWarnBehind is how far behind a worktree may fall before a rebase
// is recommended.
const rebaseWarnBehind = 5

// rebaseFileLimit caps the files listed for a worktree that is behind.
const rebaseFileLimit = 5

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

var diffOpts struct {
	stat  bool
	files bool
}

var diffCmd = &cobra.Command{
	Use:   "diff [branch]",
	Short: "Show each worktree's changes against the default branch",
	Long: `Diff prints the committed and uncommitted changes of every worktree, or of
the named one, relative to the default branch. The main worktree is skipped
when it has nothing to show. Full diffs go through delta when it is
installed and stdout is a terminal.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDiff,
}

var rebaseFetch bool

var rebaseCheckCmd = &cobra.Command{
	Use:   "rebase-check",
	Short: "Report how far each worktree is behind the default branch",
	Args:  cobra.NoArgs,
	RunE:  runRebaseCheck,
}

var mergePreviewCmd = &cobra.Command{
	Use:   "merge-preview [branch]",
	Short: "Find files touched by several worktrees, or trial-merge one",
	Long: `Without an argument, merge-preview lists files changed in more than one
worktree. With a branch, it merges that worktree's HEAD into the default
branch inside a scratch clone and reports the result. Exits 1 when the
merge would conflict.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMergePreview,
}

func init() {
	diffCmd.Flags().BoolVarP(&diffOpts.stat, "stat", "s", false, "Show a diffstat only")
	diffCmd.Flags().BoolVarP(&diffOpts.files, "files", "f", false, "List changed file names only")
	diffCmd.MarkFlagsMutuallyExclusive("stat", "files")
	rebaseCheckCmd.Flags().BoolVarP(&rebaseFetch, "fetch", "f", false, "Fetch the default branch from origin first")

	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(rebaseCheckCmd)
	rootCmd.AddCommand(mergePreviewCmd)
}

// selectWorktrees lists all worktrees, or only the one named by args.
func selectWorktrees(ctx context.Context, a *app, args []string) ([]*worktree.Worktree, error) {
	if len(args) > 0 {
		wt, err := a.mgr.Get(ctx, args[0])
		if err != nil {
			return nil, err
		}
		return []*worktree.Worktree{wt}, nil
	}
	return a.mgr.List(ctx)
}

func runDiff(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx, true)
	if err != nil {
		return err
	}
	base, err := a.mgr.DefaultBranch(ctx)
	if err != nil {
		return err
	}
	wts, err := selectWorktrees(ctx, a, args)
	if err != nil {
		return err
	}

	mode := worktree.DiffFull
	switch {
	case diffOpts.stat:
		mode = worktree.DiffStat
	case diffOpts.files:
		mode = worktree.DiffNames
	}
	pager := ""
	if mode == worktree.DiffFull && isTerminal(os.Stdout) {
		pager, _ = exec.LookPath("delta")
	}

	out := cmd.OutOrStdout()
	for _, wt := range wts {
		text, err := worktree.Diff(ctx, wt.Path, base, mode)
		if err != nil {
			a.log.Warn("diff failed", "worktree", wt.Name(), "err", err)
			continue
		}
		if text == "" && wt.Main && len(args) == 0 {
			continue
		}

		fmt.Fprintf(out, "%s %s\n", titleStyle.Render("==="), diffHeader(wt, base))
		if text == "" {
			fmt.Fprintln(out, dimStyle.Render("(no changes)"))
		} else if err := writeDiff(ctx, out, pager, text); err != nil {
			return err
		}
		fmt.Fprintln(out)
	}
	return nil
}

func diffHeader(wt *worktree.Worktree, base string) string {
	name := branchStyle.Render(wt.Name())
	if wt.Main {
		name = mainStyle.Render(wt.Name() + " (main)")
	}
	return fmt.Sprintf("%s %s", name, dimStyle.Render("vs "+base))
}

// writeDiff writes text to w, through pager when one is set.
func writeDiff(ctx context.Context, w io.Writer, pager, text string) error {
	if pager == "" {
		_, err := fmt.Fprintln(w, text)
		return err
	}
	c := exec.CommandContext(ctx, pager)
	c.Stdin = strings.NewReader(text + "\n")
	c.Stdout = w
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("run %s: %w", pager, err)
	}
	return nil
}

func runRebaseCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx, true)
	if err != nil {
		return err
	}
	base, err := a.mgr.DefaultBranch(ctx)
	if err != nil {
		return err
	}
	if rebaseFetch {
		if err := a.mgr.Fetch(ctx, base); err != nil {
			a.log.Warn("fetch failed, comparing with local refs", "err", err)
		}
	}
	ref := a.mgr.UpstreamRef(ctx, base)

	wts, err := a.mgr.List(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render("Rebase check against "+ref))
	fmt.Fprintln(out)
	for _, wt := range wts {
		if wt.Branch == base {
			continue
		}
		ahead, behind, err := worktree.Divergence(ctx, wt.Path, ref)
		if err != nil {
			a.log.Warn("compare failed", "worktree", wt.Name(), "err", err)
			continue
		}

		icon, msg := rebaseAdvice(behind)
		if ahead > 0 {
			msg += dimStyle.Render(fmt.Sprintf(" (%d ahead)", ahead))
		}
		fmt.Fprintf(out, "%s %s\n", icon, branchStyle.Render(wt.Name()))
		fmt.Fprintf(out, "    %s\n", msg)

		if behind > 0 {
			files, err := worktree.ChangedFiles(ctx, wt.Path, ref)
			if err == nil && len(files) > 0 {
				fmt.Fprintln(out, dimStyle.Render("    changed files that may conflict:"))
				for _, f := range files[:min(len(files), rebaseFileLimit)] {
					fmt.Fprintln(out, dimStyle.Render("      - "+f))
				}
			}
		}
		fmt.Fprintln(out)
	}
	if !rebaseFetch {
		fmt.Fprintln(out, dimStyle.Render("Tip: use --fetch to compare against the latest origin"))
	}
	return nil
}

// rebaseAdvice returns the marker and message for a worktree behind by n
// commits.
func rebaseAdvice(behind int) (icon, msg string) {
	switch {
	case behind == 0:
		return okStyle.Render("✓"), okStyle.Render("up to date")
	case behind < rebaseWarnBehind:
		return warnStyle.Render("!"), warnStyle.Render(fmt.Sprintf("%d commits behind", behind))
	default:
		return errorStyle.Render("✗"), errorStyle.Render(fmt.Sprintf("%d commits behind, rebase recommended", behind))
	}
}

func runMergePreview(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx, true)
	if err != nil {
		return err
	}
	base, err := a.mgr.DefaultBranch(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		wts, err := a.mgr.List(ctx)
		if err != nil {
			return err
		}
		changes := make(map[string][]string, len(wts))
		for _, wt := range wts {
			files, err := worktree.ChangedFiles(ctx, wt.Path, base)
			if err != nil {
				a.log.Warn("diff failed", "worktree", wt.Name(), "err", err)
				continue
			}
			changes[wt.Name()] = files
		}
		printOverlaps(out, worktree.Overlaps(changes))
		return nil
	}

	wt, err := a.mgr.Get(ctx, args[0])
	if err != nil {
		return err
	}
	a.log.Debug("trial merge", "worktree", wt.Name(), "into", base)
	p, err := a.mgr.PreviewMerge(ctx, wt.Path, base)
	if err != nil {
		return err
	}
	printMergePreview(out, p)
	if !p.Clean() {
		return &exitError{code: ExitFailure}
	}
	return nil
}

func printOverlaps(w io.Writer, overlaps []worktree.FileOverlap) {
	fmt.Fprintln(w, titleStyle.Render("Files modified in more than one worktree"))
	fmt.Fprintln(w)
	if len(overlaps) == 0 {
		fmt.Fprintln(w, okStyle.Render("  none, worktrees are working on separate files"))
	}
	for _, o := range overlaps {
		fmt.Fprintf(w, "  %s\n", errorStyle.Render(o.Path))
		fmt.Fprintf(w, "    %s\n", dimStyle.Render(strings.Join(o.Worktrees, " ")))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, dimStyle.Render("Tip: hive merge-preview <branch> simulates one merge"))
}

func printMergePreview(w io.Writer, p *worktree.MergePreview) {
	fmt.Fprintf(w, "%s %s into %s\n", titleStyle.Render("Merge preview:"), branchStyle.Render(p.Source), p.Into)
	if !p.Clean() {
		fmt.Fprintln(w, errorStyle.Render("✗ merge would conflict in:"))
		for _, f := range p.Conflicts {
			fmt.Fprintf(w, "  %s\n", f)
		}
		return
	}
	if len(p.Changes) == 0 {
		fmt.Fprintln(w, okStyle.Render("✓ nothing to merge"))
		return
	}
	fmt.Fprintln(w, okStyle.Render("✓ merge would apply cleanly"))
	for _, c := range p.Changes {
		fmt.Fprintf(w, "  %s %s\n", changeStyle(c.Status).Render(c.Status[:1]), c.Path)
	}
}

func changeStyle(status string) lipgloss.Style {
	switch status[:1] {
	case "A":
		return okStyle
	case "D":
		return errorStyle
	default:
		return warnStyle
	}
}
