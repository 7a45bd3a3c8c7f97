// Package selector composes the interactive worktree picker: it gathers
// candidates from git and the issue cache, shows them, and handles the
// auxiliary actions (delete, open, change agent) until the operator picks
// something or cancels.
package selector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-runewidth"

	"github.com/pengelbrecht/hive/internal/config"
	"github.com/pengelbrecht/hive/internal/issues"
	"github.com/pengelbrecht/hive/internal/tui"
	"github.com/pengelbrecht/hive/internal/worktree"
)

// ErrCancelled is returned when the operator dismisses the picker.
var ErrCancelled = errors.New("selection cancelled")

// issueTitleWidth is the display width issue titles are cut to.
const issueTitleWidth = 50

// Worktrees is the part of worktree.Manager the selector reads and mutates.
type Worktrees interface {
	List(ctx context.Context) ([]*worktree.Worktree, error)
	Branches(ctx context.Context) ([]string, error)
	DefaultBranch(ctx context.Context) (string, error)
	Delete(ctx context.Context, branch string, force bool) error
}

// Prompter shows candidates and returns the operator's choice.
type Prompter func(items []tui.Item, opts tui.Options) (tui.Outcome, error)

// NewBranch asks the caller to create a worktree.
type NewBranch struct {
	Name  string
	Base  string
	Issue *issues.Issue
}

// Result is the operator's choice. Exactly one of Existing and NewBranch is set.
type Result struct {
	Existing  *worktree.Worktree
	NewBranch *NewBranch

	// Agent and SkipPermissions reflect changes made in the picker.
	Agent           string
	SkipPermissions bool
}

// Candidate is one selectable row.
type Candidate struct {
	Worktree *worktree.Worktree
	Branch   string
	Issue    *issues.Issue
}

// Selector runs the picker loop.
type Selector struct {
	Worktrees Worktrees

	// Cache is the issue cache. Nil disables issue rows.
	Cache *issues.Cache
	// Remote refreshes Cache in the background. Nil skips the refresh.
	Remote     issues.Lister
	IssueLimit int

	Agent           string
	Agents          []string
	SkipPermissions bool
	AutoSelect      config.AutoSelect

	Prompt     Prompter
	OpenEditor func(path string) error

	log *log.Logger
}

// New returns a Selector using the terminal picker.
func New(wts Worktrees, logger *log.Logger) *Selector {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Selector{
		Worktrees:  wts,
		Prompt:     tui.Run,
		OpenEditor: OpenEditor,
		log:        logger.WithPrefix("selector"),
	}
}

// Select shows the picker until the operator chooses a worktree, a branch,
// or a new branch name. Deleting, opening and changing agent re-show it.
func (s *Selector) Select(ctx context.Context) (Result, error) {
	var refresh <-chan error
	if s.Cache != nil && s.Remote != nil {
		refresh = s.Cache.StartRefresh(ctx, s.Remote, s.IssueLimit, s.log)
	}
	defer s.reportRefresh(refresh)

	status := ""
	autoSelect := s.autoSelectBranch(ctx)
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		cands, err := s.Candidates(ctx)
		if err != nil {
			return Result{}, err
		}

		opts := tui.Options{
			Agent:           s.Agent,
			Agents:          s.Agents,
			SkipPermissions: s.SkipPermissions,
			Status:          status,
		}
		if autoSelect != "" {
			opts.AutoSelect = autoSelect
			opts.AutoSelectAfter = s.AutoSelect.Wait()
		}
		// The countdown only applies to the first showing.
		autoSelect = ""

		out, err := s.Prompt(Items(cands), opts)
		if err != nil {
			return Result{}, err
		}
		s.SkipPermissions = out.SkipPermissions

		switch out.Action {
		case tui.ActionSelect:
			c := cands[out.Index]
			if c.Worktree != nil {
				return s.result(&Result{Existing: c.Worktree}), nil
			}
			return s.result(&Result{NewBranch: &NewBranch{Name: c.Branch}}), nil

		case tui.ActionNewBranch:
			nb := &NewBranch{Name: out.Input}
			if out.Index >= 0 && out.Index < len(cands) {
				nb.Issue = cands[out.Index].Issue
			}
			return s.result(&Result{NewBranch: nb}), nil

		case tui.ActionDelete:
			status = s.delete(ctx, cands[out.Index].Worktree)

		case tui.ActionEditor:
			status = s.open(cands[out.Index].Worktree)

		case tui.ActionChangeAgent:
			s.Agent = out.Input
			status = "agent: " + out.Input

		default:
			return Result{}, ErrCancelled
		}
	}
}

func (s *Selector) result(r *Result) Result {
	r.Agent = s.Agent
	r.SkipPermissions = s.SkipPermissions
	return *r
}

// delete removes wt by name, so detached worktrees are addressed by their
// directory.
func (s *Selector) delete(ctx context.Context, wt *worktree.Worktree) string {
	name := wt.Name()
	err := s.Worktrees.Delete(ctx, name, false)
	switch {
	case err == nil:
		s.log.Info("deleted worktree", "name", name)
		return "deleted " + name
	case errors.Is(err, worktree.ErrWorktreeDirty):
		return fmt.Sprintf("%s has uncommitted changes (hive wt delete -f %s)", name, name)
	default:
		s.log.Warn("delete failed", "name", name, "err", err)
		return "delete failed: " + err.Error()
	}
}

func (s *Selector) open(wt *worktree.Worktree) string {
	open := s.OpenEditor
	if open == nil {
		open = OpenEditor
	}
	if err := open(wt.Path); err != nil {
		return "open failed: " + err.Error()
	}
	return "opened " + wt.Name()
}

// autoSelectBranch resolves the configured auto-select branch. "-" means
// the repository's default branch.
func (s *Selector) autoSelectBranch(ctx context.Context) string {
	if !s.AutoSelect.Enabled || s.AutoSelect.Wait() <= 0 {
		return ""
	}
	branch := s.AutoSelect.Branch
	if branch == "" || branch == "-" {
		def, err := s.Worktrees.DefaultBranch(ctx)
		if err != nil {
			return ""
		}
		branch = def
	}
	return branch
}

// reportRefresh logs a finished refresh failure. A refresh still running is
// left to finish on its own.
func (s *Selector) reportRefresh(done <-chan error) {
	if done == nil {
		return
	}
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, issues.ErrUnavailable) {
			s.log.Warn("could not refresh GitHub issues", "err", err)
		}
	default:
	}
}

// Candidates lists worktrees (main first), branches without a worktree, and
// cached issues whose branch does not exist yet.
func (s *Selector) Candidates(ctx context.Context) ([]Candidate, error) {
	wts, err := s.Worktrees.List(ctx)
	if err != nil {
		return nil, err
	}
	branches, err := s.Worktrees.Branches(ctx)
	if err != nil {
		return nil, err
	}

	var cands []Candidate
	inWorktree := map[string]bool{}
	for _, wt := range wts {
		if wt.Main {
			cands = append([]Candidate{{Worktree: wt, Branch: wt.Branch}}, cands...)
		} else {
			cands = append(cands, Candidate{Worktree: wt, Branch: wt.Branch})
		}
		if wt.Branch != "" {
			inWorktree[wt.Branch] = true
		}
	}
	for _, b := range branches {
		if !inWorktree[b] {
			cands = append(cands, Candidate{Branch: b})
		}
	}

	if s.Cache == nil {
		return cands, nil
	}
	known := append([]string(nil), branches...)
	for b := range inWorktree {
		known = append(known, b)
	}
	shown := 0
	for _, e := range s.Cache.Load() {
		if s.IssueLimit > 0 && shown >= s.IssueLimit {
			break
		}
		if hasIssueBranch(known, e.Number) {
			continue
		}
		is := e.Issue()
		cands = append(cands, Candidate{Issue: &is})
		shown++
	}
	return cands, nil
}

// hasIssueBranch reports whether a branch for issue n already exists.
func hasIssueBranch(branches []string, n int) bool {
	prefix := issues.BranchPrefix(n)
	legacy := fmt.Sprintf("gh-issue-%d", n)
	for _, b := range branches {
		if strings.HasPrefix(b, prefix) || b == legacy {
			return true
		}
	}
	return false
}

// Items converts candidates to picker rows.
func Items(cands []Candidate) []tui.Item {
	width := 0
	for _, c := range cands {
		if c.Issue == nil {
			width = max(width, runewidth.StringWidth(c.Branch))
		}
	}

	items := make([]tui.Item, len(cands))
	for i, c := range cands {
		switch {
		case c.Issue != nil:
			items[i] = tui.Item{
				Kind:   tui.KindIssue,
				Label:  IssueLabel(*c.Issue),
				Detail: c.Issue.URL,
				Value:  issues.BranchPrefix(c.Issue.Number),
			}
		case c.Worktree != nil:
			items[i] = tui.Item{
				Kind:   tui.KindWorktree,
				Label:  runewidth.FillRight(c.Worktree.Name(), width) + worktreeMarkers(c.Worktree),
				Detail: c.Worktree.Path,
				Value:  c.Worktree.Branch,
				Main:   c.Worktree.Main,
			}
		default:
			items[i] = tui.Item{
				Kind:   tui.KindBranch,
				Label:  c.Branch,
				Detail: "branch, no worktree",
				Value:  c.Branch,
			}
		}
	}
	return items
}

// IssueLabel formats an issue row, cutting long titles to a fixed width.
func IssueLabel(is issues.Issue) string {
	return fmt.Sprintf("🎫 #%d: %s", is.Number, runewidth.Truncate(is.Title, issueTitleWidth, "…"))
}

func worktreeMarkers(wt *worktree.Worktree) string {
	var parts []string
	if wt.Main {
		parts = append(parts, "(main)")
	}
	if wt.Dirty {
		parts = append(parts, "*")
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
