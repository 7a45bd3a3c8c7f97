package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/pengelbrecht/hive/internal/handoff"
	"github.com/pengelbrecht/hive/internal/issues"
	"github.com/pengelbrecht/hive/internal/worktree"
)

// clearScreen homes the cursor and clears the terminal between refreshes.
const clearScreen = "\x1b[H\x1b[2J"

// compactCommitWidth caps the commit summary in compact rows.
const compactCommitWidth = 40

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))
	aheadStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	behindStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

var statusOpts struct {
	compact  bool
	watch    bool
	interval float64
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show every worktree's branch, changes, task and handoff",
	Long: `Status prints one block per worktree: branch, uncommitted changes,
commits ahead of and behind the default branch, the last commit, the task
summary and whether a handoff note is waiting. With --watch it redraws
until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	f := statusCmd.Flags()
	f.BoolVarP(&statusOpts.compact, "compact", "c", false, "One line per worktree")
	f.BoolVarP(&statusOpts.watch, "watch", "w", false, "Redraw until interrupted")
	f.Float64Var(&statusOpts.interval, "interval", 2, "Seconds between redraws in watch mode")

	rootCmd.AddCommand(statusCmd)
}

// statusRow is one worktree with the notes attached to it.
type statusRow struct {
	wt      *worktree.Worktree
	task    string
	handoff *handoff.Handoff // nil when the branch has no note
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx, true)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if !statusOpts.watch {
		rows, err := collectStatus(ctx, a)
		if err != nil {
			return err
		}
		renderStatus(out, a.repoName(), rows, statusOpts.compact, time.Now())
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ticker := time.NewTicker(max(secondsFlag(statusOpts.interval), 200*time.Millisecond))
	defer ticker.Stop()

	for {
		rows, err := collectStatus(ctx, a)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		var buf bytes.Buffer
		renderStatus(&buf, a.repoName(), rows, statusOpts.compact, time.Now())
		fmt.Fprint(out, clearScreen+buf.String())

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// collectStatus lists worktrees and reads each one's task and handoff.
// Unreadable notes are skipped rather than failing the board.
func collectStatus(ctx context.Context, a *app) ([]statusRow, error) {
	wts, err := a.mgr.List(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]statusRow, 0, len(wts))
	for _, wt := range wts {
		row := statusRow{wt: wt}
		if content, err := issues.ReadTask(wt.Path); err == nil {
			row.task = issues.TaskSummary(content)
		} else {
			a.log.Debug("task unreadable", "worktree", wt.Name(), "err", err)
		}
		if wt.Branch != "" {
			if h, err := a.handoff.Get(wt.Branch); err == nil && !h.Empty() {
				row.handoff = h
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func renderStatus(w io.Writer, repo string, rows []statusRow, compact bool, now time.Time) {
	stamp := now.Format("15:04:05")
	if compact {
		fmt.Fprintf(w, "%s %s  %s\n", titleStyle.Render("Worktrees"), dimStyle.Render(repo), dimStyle.Render(stamp))
		width := 0
		for _, r := range rows {
			width = max(width, runewidth.StringWidth(r.wt.Name()))
		}
		for _, r := range rows {
			fmt.Fprintln(w, compactStatusLine(r, width))
		}
		return
	}

	fmt.Fprintln(w, titleStyle.Render("Status: "+repo))
	fmt.Fprintln(w)
	for _, r := range rows {
		name := branchStyle.Render(r.wt.Name())
		if r.wt.Main {
			name = mainStyle.Render(r.wt.Name() + " (main)")
		}
		fmt.Fprintln(w, name+worktreeStatus(r.wt))
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("path:   "), r.wt.Path)
		if r.wt.LastCommit != "" {
			fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("commit: "), dimStyle.Render(r.wt.LastCommit))
		}
		if r.task != "" {
			fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("task:   "), r.task)
		}
		if r.handoff != nil {
			updated := "waiting"
			if !r.handoff.CreatedAt.IsZero() {
				updated = "written " + r.handoff.CreatedAt.Local().Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("handoff:"), updated)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, dimStyle.Render("Updated: "+stamp))
}

func compactStatusLine(r statusRow, width int) string {
	dirty := " "
	if r.wt.Dirty {
		dirty = dirtyStyle.Render("*")
	}
	counts := ""
	if r.wt.Ahead > 0 {
		counts += aheadStyle.Render(fmt.Sprintf("+%d", r.wt.Ahead))
	}
	if r.wt.Behind > 0 {
		counts += behindStyle.Render(fmt.Sprintf("-%d", r.wt.Behind))
	}
	counts += strings.Repeat(" ", max(0, 6-lipgloss.Width(counts)))

	name := runewidth.FillRight(r.wt.Name(), width)
	if r.wt.Main {
		name = mainStyle.Render(name)
	} else {
		name = branchStyle.Render(name)
	}
	commit := runewidth.Truncate(r.wt.LastCommit, compactCommitWidth, "…")
	return fmt.Sprintf("  %s %s%s %s", name, dirty, counts, dimStyle.Render(commit))
}
