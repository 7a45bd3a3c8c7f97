package selector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pengelbrecht/hive/internal/config"
	"github.com/pengelbrecht/hive/internal/issues"
	"github.com/pengelbrecht/hive/internal/tui"
	"github.com/pengelbrecht/hive/internal/worktree"
)

type fakeWorktrees struct {
	worktrees []*worktree.Worktree
	branches  []string
	deleted   []string
	deleteErr error
}

func (f *fakeWorktrees) List(context.Context) ([]*worktree.Worktree, error) {
	return f.worktrees, nil
}

func (f *fakeWorktrees) Branches(context.Context) ([]string, error) {
	return f.branches, nil
}

func (f *fakeWorktrees) DefaultBranch(context.Context) (string, error) {
	return "main", nil
}

func (f *fakeWorktrees) Delete(_ context.Context, name string, _ bool) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	var kept []*worktree.Worktree
	found := false
	for _, wt := range f.worktrees {
		if name != "" && wt.Name() == name {
			found = true
			continue
		}
		kept = append(kept, wt)
	}
	if !found {
		return fmt.Errorf("%w: %s", worktree.ErrWorktreeNotFound, name)
	}
	f.deleted = append(f.deleted, name)
	f.worktrees = kept
	return nil
}

func newFakeWorktrees() *fakeWorktrees {
	return &fakeWorktrees{
		worktrees: []*worktree.Worktree{
			{Branch: "feature-x", Path: "/repo/.worktrees/feature-x", Dirty: true, Ahead: 2},
			{Branch: "main", Path: "/repo", Main: true},
		},
		branches: []string{"main", "feature-x", "old-branch", "gh-7-login"},
	}
}

// script returns a Prompter that replays outcomes and records what it was shown.
type script struct {
	outcomes []tui.Outcome
	shown    [][]tui.Item
	opts     []tui.Options
}

func (s *script) prompt(items []tui.Item, opts tui.Options) (tui.Outcome, error) {
	s.shown = append(s.shown, items)
	s.opts = append(s.opts, opts)
	if len(s.outcomes) == 0 {
		return tui.Outcome{Action: tui.ActionCancel, Index: -1}, nil
	}
	out := s.outcomes[0]
	s.outcomes = s.outcomes[1:]
	return out, nil
}

func newTestCache(t *testing.T, list ...issues.Issue) *issues.Cache {
	t.Helper()
	c := issues.NewCache(t.TempDir(), issues.Repo{Owner: "acme", Name: "app"})
	if err := c.Store(list); err != nil {
		t.Fatalf("store cache: %v", err)
	}
	return c
}

func newTestSelector(wts Worktrees, sc *script) *Selector {
	s := New(wts, nil)
	s.Prompt = sc.prompt
	s.OpenEditor = func(string) error { return nil }
	return s
}

func TestCandidates(t *testing.T) {
	s := newTestSelector(newFakeWorktrees(), &script{})
	s.Cache = newTestCache(t,
		issues.Issue{Number: 7, Title: "Login broken"},
		issues.Issue{Number: 8, Title: "Add search"},
		issues.Issue{Number: 9, Title: "Old style"},
	)
	s.Worktrees.(*fakeWorktrees).branches = append(s.Worktrees.(*fakeWorktrees).branches, "gh-issue-9")

	cands, err := s.Candidates(context.Background())
	if err != nil {
		t.Fatalf("Candidates() error = %v", err)
	}

	var got []string
	for _, c := range cands {
		switch {
		case c.Issue != nil:
			got = append(got, "#"+c.Issue.Title)
		case c.Worktree != nil:
			got = append(got, "wt:"+c.Branch)
		default:
			got = append(got, "br:"+c.Branch)
		}
	}
	want := []string{"wt:main", "wt:feature-x", "br:old-branch", "br:gh-7-login", "br:gh-issue-9", "#Add search"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("candidates = %v, want %v", got, want)
	}
}

func TestCandidates_IssueLimit(t *testing.T) {
	s := newTestSelector(&fakeWorktrees{}, &script{})
	s.Cache = newTestCache(t,
		issues.Issue{Number: 1, Title: "a"},
		issues.Issue{Number: 2, Title: "b"},
		issues.Issue{Number: 3, Title: "c"},
	)
	s.IssueLimit = 2

	cands, err := s.Candidates(context.Background())
	if err != nil {
		t.Fatalf("Candidates() error = %v", err)
	}
	if len(cands) != 2 {
		t.Errorf("expected 2 issue candidates, got %d", len(cands))
	}
}

func TestCandidates_NoCache(t *testing.T) {
	s := newTestSelector(&fakeWorktrees{}, &script{})
	cands, err := s.Candidates(context.Background())
	if err != nil {
		t.Fatalf("Candidates() error = %v", err)
	}
	if len(cands) != 0 {
		t.Errorf("expected no candidates, got %d", len(cands))
	}
}

func TestItems(t *testing.T) {
	long := strings.Repeat("x", 80)
	items := Items([]Candidate{
		{Worktree: &worktree.Worktree{Branch: "main", Path: "/repo", Main: true}, Branch: "main"},
		{Worktree: &worktree.Worktree{Branch: "feature-x", Path: "/wt", Dirty: true, Ahead: 2, Behind: 1}, Branch: "feature-x"},
		{Branch: "old"},
		{Issue: &issues.Issue{Number: 42, Title: long, URL: "https://github.com/acme/app/issues/42"}},
	})

	if items[0].Kind != tui.KindWorktree || !items[0].Main {
		t.Errorf("expected main worktree row, got %+v", items[0])
	}
	if !strings.Contains(items[1].Label, "* ↑2 ↓1") {
		t.Errorf("expected status markers, got %q", items[1].Label)
	}
	if items[2].Kind != tui.KindBranch || items[2].Value != "old" {
		t.Errorf("unexpected branch row %+v", items[2])
	}
	if items[3].Kind != tui.KindIssue || items[3].Value != "gh-42-" {
		t.Errorf("unexpected issue row %+v", items[3])
	}
	if !strings.HasPrefix(items[3].Label, "🎫 #42: ") {
		t.Errorf("unexpected issue label %q", items[3].Label)
	}
}

func TestIssueLabel_Truncates(t *testing.T) {
	label := IssueLabel(issues.Issue{Number: 3, Title: strings.Repeat("a", 60)})
	title := strings.TrimPrefix(label, "🎫 #3: ")
	if len([]rune(title)) != 50 {
		t.Errorf("expected 50-cell title, got %d: %q", len([]rune(title)), title)
	}
	if !strings.HasSuffix(title, "…") {
		t.Errorf("expected ellipsis, got %q", title)
	}

	short := IssueLabel(issues.Issue{Number: 3, Title: "short"})
	if short != "🎫 #3: short" {
		t.Errorf("unexpected label %q", short)
	}
}

func TestSelect_Existing(t *testing.T) {
	sc := &script{outcomes: []tui.Outcome{{Action: tui.ActionSelect, Index: 1, SkipPermissions: true}}}
	s := newTestSelector(newFakeWorktrees(), sc)
	s.Agent = "claude"

	res, err := s.Select(context.Background())
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if res.Existing == nil || res.Existing.Branch != "feature-x" {
		t.Errorf("expected feature-x, got %+v", res)
	}
	if !res.SkipPermissions || res.Agent != "claude" {
		t.Errorf("expected picker settings to carry over, got %+v", res)
	}
}

func TestSelect_BranchWithoutWorktree(t *testing.T) {
	sc := &script{outcomes: []tui.Outcome{{Action: tui.ActionSelect, Index: 2}}}
	s := newTestSelector(newFakeWorktrees(), sc)

	res, err := s.Select(context.Background())
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if res.NewBranch == nil || res.NewBranch.Name != "old-branch" {
		t.Errorf("expected new worktree for old-branch, got %+v", res)
	}
}

func TestSelect_IssueBranch(t *testing.T) {
	sc := &script{outcomes: []tui.Outcome{{Action: tui.ActionNewBranch, Index: 4, Input: "gh-8-search"}}}
	s := newTestSelector(newFakeWorktrees(), sc)
	s.Cache = newTestCache(t, issues.Issue{Number: 8, Title: "Add search", URL: "u"})

	res, err := s.Select(context.Background())
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	nb := res.NewBranch
	if nb == nil || nb.Name != "gh-8-search" || nb.Issue == nil || nb.Issue.Number != 8 {
		t.Errorf("unexpected result %+v", nb)
	}
}

func TestSelect_FreeNewBranch(t *testing.T) {
	sc := &script{outcomes: []tui.Outcome{{Action: tui.ActionNewBranch, Index: -1, Input: "topic"}}}
	s := newTestSelector(&fakeWorktrees{}, sc)

	res, err := s.Select(context.Background())
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if res.NewBranch == nil || res.NewBranch.Name != "topic" || res.NewBranch.Issue != nil {
		t.Errorf("unexpected result %+v", res.NewBranch)
	}
	if len(sc.shown) != 1 || len(sc.shown[0]) != 0 {
		t.Error("expected an empty picker to still be shown")
	}
}

func TestSelect_Cancelled(t *testing.T) {
	s := newTestSelector(newFakeWorktrees(), &script{})
	_, err := s.Select(context.Background())
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
}

func TestSelect_PromptError(t *testing.T) {
	s := newTestSelector(newFakeWorktrees(), &script{})
	s.Prompt = func([]tui.Item, tui.Options) (tui.Outcome, error) {
		return tui.Outcome{}, errors.New("no tty")
	}
	if _, err := s.Select(context.Background()); err == nil || errors.Is(err, ErrCancelled) {
		t.Errorf("expected prompt error, got %v", err)
	}
}

func TestSelect_DeleteThenReshow(t *testing.T) {
	wts := newFakeWorktrees()
	sc := &script{outcomes: []tui.Outcome{
		{Action: tui.ActionDelete, Index: 1},
		{Action: tui.ActionSelect, Index: 0},
	}}
	s := newTestSelector(wts, sc)

	res, err := s.Select(context.Background())
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(wts.deleted) != 1 || wts.deleted[0] != "feature-x" {
		t.Errorf("expected feature-x deleted, got %v", wts.deleted)
	}
	if len(sc.shown) != 2 {
		t.Fatalf("expected picker shown twice, got %d", len(sc.shown))
	}
	if sc.opts[1].Status != "deleted feature-x" {
		t.Errorf("unexpected status %q", sc.opts[1].Status)
	}
	for _, it := range sc.shown[1] {
		if it.Kind == tui.KindWorktree && it.Value == "feature-x" {
			t.Error("deleted worktree still listed")
		}
	}
	if res.Existing == nil || !res.Existing.Main {
		t.Errorf("expected main, got %+v", res)
	}
}

func TestSelect_DeleteDetachedWorktree(t *testing.T) {
	wts := newFakeWorktrees()
	wts.worktrees = append(wts.worktrees, &worktree.Worktree{Path: "/repo/.worktrees/scratch"})
	sc := &script{outcomes: []tui.Outcome{{Action: tui.ActionDelete, Index: 2}}}
	s := newTestSelector(wts, sc)

	if _, err := s.Select(context.Background()); !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled after script ends, got %v", err)
	}
	if len(wts.deleted) != 1 || wts.deleted[0] != "scratch" {
		t.Errorf("expected scratch deleted, got %v", wts.deleted)
	}
	if sc.opts[1].Status != "deleted scratch" {
		t.Errorf("unexpected status %q", sc.opts[1].Status)
	}
}

func TestSelect_DeleteDirtyReportsStatus(t *testing.T) {
	wts := newFakeWorktrees()
	wts.deleteErr = worktree.ErrWorktreeDirty
	sc := &script{outcomes: []tui.Outcome{{Action: tui.ActionDelete, Index: 1}}}
	s := newTestSelector(wts, sc)

	_, err := s.Select(context.Background())
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled after script ends, got %v", err)
	}
	if !strings.Contains(sc.opts[1].Status, "uncommitted changes") {
		t.Errorf("unexpected status %q", sc.opts[1].Status)
	}
}

func TestSelect_OpenEditor(t *testing.T) {
	sc := &script{outcomes: []tui.Outcome{{Action: tui.ActionEditor, Index: 1}}}
	s := newTestSelector(newFakeWorktrees(), sc)
	var opened string
	s.OpenEditor = func(path string) error {
		opened = path
		return nil
	}

	_, _ = s.Select(context.Background())
	if opened != "/repo/.worktrees/feature-x" {
		t.Errorf("opened %q", opened)
	}
	if len(sc.shown) != 2 {
		t.Errorf("expected picker to re-show after opening, got %d", len(sc.shown))
	}
}

func TestSelect_ChangeAgent(t *testing.T) {
	sc := &script{outcomes: []tui.Outcome{
		{Action: tui.ActionChangeAgent, Index: -1, Input: "codex"},
		{Action: tui.ActionSelect, Index: 0},
	}}
	s := newTestSelector(newFakeWorktrees(), sc)
	s.Agent = "claude"
	s.Agents = []string{"claude", "codex"}

	res, err := s.Select(context.Background())
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if res.Agent != "codex" {
		t.Errorf("expected codex, got %q", res.Agent)
	}
	if sc.opts[1].Agent != "codex" {
		t.Errorf("second showing should use the new agent, got %q", sc.opts[1].Agent)
	}
}

func TestSelect_AutoSelectFirstShowingOnly(t *testing.T) {
	sc := &script{outcomes: []tui.Outcome{
		{Action: tui.ActionChangeAgent, Index: -1, Input: "codex"},
	}}
	s := newTestSelector(newFakeWorktrees(), sc)
	s.AutoSelect = config.AutoSelect{Enabled: true, Branch: "-", Timeout: 2}

	_, _ = s.Select(context.Background())
	if sc.opts[0].AutoSelect != "main" || sc.opts[0].AutoSelectAfter != 2*time.Second {
		t.Errorf("unexpected auto-select options %+v", sc.opts[0])
	}
	if sc.opts[1].AutoSelect != "" {
		t.Errorf("auto-select should not repeat, got %q", sc.opts[1].AutoSelect)
	}
}

type stubLister struct {
	err error
}

func (l stubLister) ListAssigned(context.Context, int) ([]issues.Issue, error) {
	return nil, l.err
}

func TestSelect_RendersFromCacheDespiteRefreshFailure(t *testing.T) {
	sc := &script{}
	s := newTestSelector(&fakeWorktrees{}, sc)
	s.Cache = newTestCache(t, issues.Issue{Number: 1, Title: "cached"})
	s.Remote = stubLister{err: errors.New("gh: not logged in")}

	_, err := s.Select(context.Background())
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if len(sc.shown[0]) != 1 || !strings.Contains(sc.shown[0][0].Label, "cached") {
		t.Errorf("expected the cached issue row, got %+v", sc.shown[0])
	}
}

func TestSelect_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := newTestSelector(newFakeWorktrees(), &script{})
	if _, err := s.Select(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

type fakeCreator struct {
	wt  *worktree.Worktree
	err error
}

func (f fakeCreator) Create(context.Context, string, string) (*worktree.Worktree, error) {
	return f.wt, f.err
}

type fakeViewer struct {
	issue *issues.Issue
	err   error
}

func (f fakeViewer) View(context.Context, int) (*issues.Issue, error) {
	return f.issue, f.err
}

func TestMaterialize_WritesTaskFile(t *testing.T) {
	dir := t.TempDir()
	c := fakeCreator{wt: &worktree.Worktree{Branch: "gh-8-search", Path: dir}}
	v := fakeViewer{issue: &issues.Issue{Number: 8, Title: "Add search", URL: "https://x/8", Body: "Full body"}}
	nb := &NewBranch{Name: "gh-8-search", Issue: &issues.Issue{Number: 8, Title: "Add search", URL: "https://x/8"}}

	wt, err := Materialize(context.Background(), c, v, nb)
	if err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}
	if wt.Path != dir {
		t.Errorf("unexpected worktree %+v", wt)
	}
	data, err := os.ReadFile(filepath.Join(dir, issues.TaskFile))
	if err != nil {
		t.Fatalf("read task file: %v", err)
	}
	if !strings.Contains(string(data), "Full body") {
		t.Errorf("expected fetched body, got %q", data)
	}
}

func TestMaterialize_ViewFailureFallsBack(t *testing.T) {
	dir := t.TempDir()
	c := fakeCreator{wt: &worktree.Worktree{Path: dir}}
	v := fakeViewer{err: errors.New("offline")}
	nb := &NewBranch{Name: "gh-8-x", Issue: &issues.Issue{Number: 8, Title: "Cached title", URL: "https://x/8"}}

	if _, err := Materialize(context.Background(), c, v, nb); err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, issues.TaskFile))
	if err != nil {
		t.Fatalf("read task file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "Cached title") || !strings.Contains(content, "_No description provided._") {
		t.Errorf("unexpected content %q", content)
	}
}

func TestMaterialize_NoIssueNoTaskFile(t *testing.T) {
	dir := t.TempDir()
	c := fakeCreator{wt: &worktree.Worktree{Path: dir}}

	if _, err := Materialize(context.Background(), c, nil, &NewBranch{Name: "topic"}); err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, issues.TaskFile)); !os.IsNotExist(err) {
		t.Errorf("expected no task file, stat err = %v", err)
	}
}

func TestMaterialize_CreateError(t *testing.T) {
	c := fakeCreator{err: worktree.ErrBranchInUse}
	_, err := Materialize(context.Background(), c, nil, &NewBranch{Name: "x"})
	if !errors.Is(err, worktree.ErrBranchInUse) {
		t.Errorf("expected ErrBranchInUse, got %v", err)
	}
}

func TestMaterialize_PostCreateErrorKeepsWorktree(t *testing.T) {
	dir := t.TempDir()
	postErr := &worktree.PostCreateError{Command: "false", Err: errors.New("exit status 1")}
	c := fakeCreator{wt: &worktree.Worktree{Path: dir}, err: postErr}

	wt, err := Materialize(context.Background(), c, nil, &NewBranch{Name: "x"})
	if wt == nil {
		t.Fatal("expected worktree despite post-create failure")
	}
	var pe *worktree.PostCreateError
	if !errors.As(err, &pe) {
		t.Errorf("expected PostCreateError, got %v", err)
	}
}
