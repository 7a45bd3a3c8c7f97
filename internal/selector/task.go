package selector

import (
	"context"
	"errors"

	"github.com/pengelbrecht/hive/internal/issues"
	"github.com/pengelbrecht/hive/internal/worktree"
)

// Creator creates worktrees.
type Creator interface {
	Create(ctx context.Context, branch, baseRef string) (*worktree.Worktree, error)
}

// Viewer fetches full issue details.
type Viewer interface {
	View(ctx context.Context, number int) (*issues.Issue, error)
}

// Materialize creates the worktree a NewBranch result asks for and, for
// issue branches, writes the task-context file. A failing post-create
// action is returned alongside the created worktree.
func Materialize(ctx context.Context, c Creator, v Viewer, nb *NewBranch) (*worktree.Worktree, error) {
	wt, err := c.Create(ctx, nb.Name, nb.Base)
	var postErr *worktree.PostCreateError
	if err != nil && !(errors.As(err, &postErr) && wt != nil) {
		return nil, err
	}
	if nb.Issue != nil {
		if _, terr := WriteTask(ctx, v, wt.Path, *nb.Issue); terr != nil {
			return wt, errors.Join(err, terr)
		}
	}
	return wt, err
}

// WriteTask writes the task file for issue into dir. The full issue is
// fetched through v; if that fails the cached title and link are used.
func WriteTask(ctx context.Context, v Viewer, dir string, issue issues.Issue) (string, error) {
	if v != nil {
		if full, err := v.View(ctx, issue.Number); err == nil && full != nil {
			issue = *full
		}
	}
	return issues.WriteTaskFile(dir, issue)
}
