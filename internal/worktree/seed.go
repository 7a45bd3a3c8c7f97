package worktree

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// PostCreateError reports the post-create action that failed. Actions after
// it were not run. The worktree itself stays in place.
type PostCreateError struct {
	Index   int
	Command string
	Output  string
	Err     error
}

func (e *PostCreateError) Error() string {
	msg := fmt.Sprintf("post-create action %d (%s) failed: %v", e.Index+1, e.Command, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += "\n" + out
	}
	return msg
}

func (e *PostCreateError) Unwrap() error {
	return e.Err
}

// Seed copies CopyFiles and symlinks SymlinkFiles from the main repository
// into path. Sources that do not exist are skipped.
func (m *Manager) Seed(path string) error {
	var errs []error

	for _, rel := range m.opts.CopyFiles {
		src := filepath.Join(m.mainRepo, rel)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := copyPath(src, filepath.Join(path, rel)); err != nil {
			errs = append(errs, fmt.Errorf("copy %s: %w", rel, err))
			continue
		}
		m.log.Debug("copied seed file", "file", rel)
	}

	for _, rel := range m.opts.SymlinkFiles {
		src := filepath.Join(m.mainRepo, rel)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		dst := filepath.Join(path, rel)
		if _, err := os.Lstat(dst); err == nil {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			errs = append(errs, fmt.Errorf("symlink %s: %w", rel, err))
			continue
		}
		if err := os.Symlink(src, dst); err != nil {
			errs = append(errs, fmt.Errorf("symlink %s: %w", rel, err))
			continue
		}
		m.log.Debug("linked seed file", "file", rel)
	}

	return errors.Join(errs...)
}

// runPostCreate runs configured actions in order, stopping at the first failure.
func (m *Manager) runPostCreate(ctx context.Context, path string) error {
	for i, action := range m.opts.PostCreate {
		if action.Command == "" {
			continue
		}
		if action.IfExists != "" {
			if _, err := os.Stat(filepath.Join(path, action.IfExists)); err != nil {
				m.log.Debug("skipping post-create action", "command", action.Command, "missing", action.IfExists)
				continue
			}
		}

		m.log.Info("running post-create action", "command", action.Command)
		cmd := exec.CommandContext(ctx, "sh", "-c", action.Command)
		cmd.Dir = path
		output, err := cmd.CombinedOutput()
		if err != nil {
			return &PostCreateError{Index: i, Command: action.Command, Output: string(output), Err: err}
		}
	}
	return nil
}

// copyPath copies a file or directory tree, preserving file modes.
func copyPath(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return copyFile(src, dst, info.Mode().Perm())
	}
	return filepath.Walk(src, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if fi.IsDir() {
			return os.MkdirAll(target, fi.Mode().Perm()|0700)
		}
		return copyFile(p, target, fi.Mode().Perm())
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
