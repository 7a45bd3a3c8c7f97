// Package handoff stores per-branch context notes for whoever picks a branch
// up next.
//
// Notes live in one central directory inside the main repository so they
// survive worktree deletion. Each worktree sees its branch's note through a
// symlink at LinkPath.
package handoff

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/pengelbrecht/hive/internal/fsutil"
	"github.com/pengelbrecht/hive/internal/worktree"
)

// DefaultDir is the store directory relative to the main repository.
const DefaultDir = ".claude/handoffs"

// LinkPath is where a worktree sees its handoff.
const LinkPath = ".claude/HANDOFF.md"

// ErrEmptyBranch is returned for operations without a branch name.
var ErrEmptyBranch = errors.New("branch name cannot be empty")

// Handoff is one branch's note.
type Handoff struct {
	Branch     string
	Body       string
	CreatedAt  time.Time
	LastCommit string
}

// Empty reports whether the note has no content.
func (h *Handoff) Empty() bool {
	return strings.TrimSpace(h.Body) == ""
}

type frontMatter struct {
	Branch     string    `yaml:"branch"`
	Created    time.Time `yaml:"created"`
	LastCommit string    `yaml:"last_commit,omitempty"`
}

// Store reads and writes handoff files.
type Store struct {
	dir string
	log *log.Logger
	now func() time.Time
}

// NewStore creates a store under mainRepo/DefaultDir.
func NewStore(mainRepo string, logger *log.Logger) *Store {
	return NewStoreWithDir(filepath.Join(mainRepo, DefaultDir), logger)
}

// NewStoreWithDir creates a store rooted at dir.
func NewStoreWithDir(dir string, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Store{dir: dir, log: logger.WithPrefix("handoff"), now: time.Now}
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file backing branch's handoff.
func (s *Store) Path(branch string) string {
	return filepath.Join(s.dir, worktree.EscapeBranch(branch)+".md")
}

// Exists reports whether a file exists for branch, empty or not.
func (s *Store) Exists(branch string) bool {
	_, err := os.Stat(s.Path(branch))
	return err == nil
}

// Get returns branch's handoff. A missing file yields an empty handoff.
func (s *Store) Get(branch string) (*Handoff, error) {
	if branch == "" {
		return nil, ErrEmptyBranch
	}

	path := s.Path(branch)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Handoff{Branch: branch}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read handoff: %w", err)
	}

	h := &Handoff{Branch: branch}
	fm, body, ok := splitFrontMatter(data)
	if ok {
		h.CreatedAt = fm.Created
		h.LastCommit = fm.LastCommit
	}
	h.Body = body
	// Agents edit through the symlink and may drop the header.
	if h.CreatedAt.IsZero() {
		if info, err := os.Stat(path); err == nil {
			h.CreatedAt = info.ModTime()
		}
	}
	return h, nil
}

// Set writes body as branch's handoff.
func (s *Store) Set(branch, body, lastCommit string) error {
	if branch == "" {
		return ErrEmptyBranch
	}

	header, err := yaml.Marshal(frontMatter{
		Branch:     branch,
		Created:    s.now().UTC().Truncate(time.Second),
		LastCommit: lastCommit,
	})
	if err != nil {
		return fmt.Errorf("encode handoff header: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(header)
	buf.WriteString("---\n\n")
	buf.WriteString(body)

	if err := fsutil.WriteFileAtomic(s.Path(branch), buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write handoff: %w", err)
	}
	return nil
}

// Clear empties branch's handoff. The file is kept so worktree links stay valid.
func (s *Store) Clear(branch string) error {
	if branch == "" {
		return ErrEmptyBranch
	}
	if !s.Exists(branch) {
		return nil
	}
	if err := fsutil.WriteFileAtomic(s.Path(branch), nil, 0644); err != nil {
		return fmt.Errorf("clear handoff: %w", err)
	}
	return nil
}

// Delete removes branch's handoff file. Missing files are not an error.
func (s *Store) Delete(branch string) error {
	if branch == "" {
		return ErrEmptyBranch
	}
	if err := os.Remove(s.Path(branch)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete handoff: %w", err)
	}
	return nil
}

// Branches returns the branch of every stored handoff, sorted.
func (s *Store) Branches() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read handoff dir: %w", err)
	}

	var branches []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".md") || strings.Contains(name, ".tmp.") {
			continue
		}
		branch, err := worktree.UnescapeBranch(strings.TrimSuffix(name, ".md"))
		if err != nil {
			s.log.Debug("skipping unreadable handoff name", "file", name)
			continue
		}
		branches = append(branches, branch)
	}
	sort.Strings(branches)
	return branches, nil
}

// List returns stored handoffs sorted by branch. Empty ones are included
// only when includeEmpty is set.
func (s *Store) List(includeEmpty bool) ([]*Handoff, error) {
	branches, err := s.Branches()
	if err != nil {
		return nil, err
	}

	var out []*Handoff
	for _, branch := range branches {
		h, err := s.Get(branch)
		if err != nil {
			return nil, err
		}
		if h.Empty() && !includeEmpty {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

// Accessor is the slice of the worktree manager used for orphan detection.
type Accessor interface {
	List(ctx context.Context) ([]*worktree.Worktree, error)
	Branches(ctx context.Context) ([]string, error)
}

// protectedBranches are never treated as orphans.
var protectedBranches = map[string]bool{"main": true, "master": true}

// Orphans returns handoffs whose branch has neither a live worktree nor a
// local branch.
func (s *Store) Orphans(ctx context.Context, acc Accessor) ([]string, error) {
	live := map[string]bool{}
	worktrees, err := acc.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, wt := range worktrees {
		live[wt.Branch] = true
	}
	branches, err := acc.Branches(ctx)
	if err != nil {
		return nil, err
	}
	for _, b := range branches {
		live[b] = true
	}

	stored, err := s.Branches()
	if err != nil {
		return nil, err
	}
	var orphans []string
	for _, b := range stored {
		if !live[b] && !protectedBranches[b] {
			orphans = append(orphans, b)
		}
	}
	return orphans, nil
}

// CleanOrphans deletes orphaned handoffs and returns their branches. With
// dryRun nothing is deleted and the same set is returned.
func (s *Store) CleanOrphans(ctx context.Context, acc Accessor, dryRun bool) ([]string, error) {
	orphans, err := s.Orphans(ctx, acc)
	if err != nil {
		return nil, err
	}

	for _, branch := range orphans {
		if dryRun {
			s.log.Info("would remove orphaned handoff", "branch", branch)
			continue
		}
		if err := s.Delete(branch); err != nil {
			return nil, err
		}
		s.log.Info("removed orphaned handoff", "branch", branch)
	}
	return orphans, nil
}

// Link points worktreePath/LinkPath at branch's handoff file with a
// relative symlink. An existing link is replaced; a regular file is left alone.
func (s *Store) Link(worktreePath, branch string) error {
	if branch == "" {
		return ErrEmptyBranch
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create handoff dir: %w", err)
	}
	// An empty note keeps the link from dangling. O_EXCL leaves an existing
	// note alone.
	f, err := os.OpenFile(s.Path(branch), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	switch {
	case err == nil:
		f.Close()
	case !errors.Is(err, os.ErrExist):
		return fmt.Errorf("create handoff: %w", err)
	}

	link := filepath.Join(worktreePath, LinkPath)
	if err := os.MkdirAll(filepath.Dir(link), 0755); err != nil {
		return fmt.Errorf("create link dir: %w", err)
	}

	target, err := filepath.Rel(filepath.Dir(link), s.Path(branch))
	if err != nil {
		target = s.Path(branch)
	}

	if info, err := os.Lstat(link); err == nil {
		if info.Mode()&os.ModeSymlink == 0 {
			return fmt.Errorf("%s exists and is not a symlink", link)
		}
		if current, _ := os.Readlink(link); current == target {
			return nil
		}
		if err := os.Remove(link); err != nil {
			return fmt.Errorf("replace handoff link: %w", err)
		}
	}

	if err := os.Symlink(target, link); err != nil {
		return fmt.Errorf("create handoff link: %w", err)
	}
	return nil
}

// splitFrontMatter separates a YAML header from the body. ok is false when
// the file has no parseable header.
func splitFrontMatter(data []byte) (frontMatter, string, bool) {
	var fm frontMatter
	text := string(data)
	if !strings.HasPrefix(text, "---\n") {
		return fm, text, false
	}
	header, body, found := strings.Cut(text[len("---\n"):], "\n---\n")
	if !found {
		return fm, text, false
	}
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return fm, text, false
	}
	return fm, strings.TrimPrefix(body, "\n"), true
}
