package issues

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/pengelbrecht/hive/internal/fsutil"
)

// TaskFile is the task-context file written into worktrees created from an issue.
const TaskFile = ".claude/task.local.md"

// taskSummaryWidth caps TaskSummary in terminal cells.
const taskSummaryWidth = 60

// BranchPrefix returns the pre-filled branch name for an issue.
func BranchPrefix(number int) string {
	return fmt.Sprintf("gh-%d-", number)
}

// TaskContent renders the task-context file for issue.
func TaskContent(issue Issue) string {
	body := strings.TrimSpace(issue.Body)
	if body == "" {
		body = "_No description provided._"
	}
	return fmt.Sprintf("# Task: %s\n\n**Issue:** [#%d](%s)\n\n## Description\n\n%s\n",
		issue.Title, issue.Number, issue.URL, body)
}

// TaskPath returns the task file inside a worktree.
func TaskPath(worktreePath string) string {
	return filepath.Join(worktreePath, TaskFile)
}

// WriteTaskFile writes the task-context file into a worktree.
func WriteTaskFile(worktreePath string, issue Issue) (string, error) {
	path := TaskPath(worktreePath)
	if err := SetTask(worktreePath, TaskContent(issue)); err != nil {
		return "", err
	}
	return path, nil
}

// ReadTask returns a worktree's task file. A missing file is an empty task.
func ReadTask(worktreePath string) (string, error) {
	data, err := os.ReadFile(TaskPath(worktreePath))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read task file: %w", err)
	}
	return string(data), nil
}

// SetTask replaces a worktree's task file with content.
func SetTask(worktreePath, content string) error {
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if err := fsutil.WriteFileAtomic(TaskPath(worktreePath), []byte(content), 0644); err != nil {
		return fmt.Errorf("write task file: %w", err)
	}
	return nil
}

// ClearTask removes a worktree's task file. A missing file is not an error.
func ClearTask(worktreePath string) error {
	if err := os.Remove(TaskPath(worktreePath)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear task file: %w", err)
	}
	return nil
}

// TaskSummary returns one line describing a task: the title of a "# Task:"
// heading, otherwise the first line that is not a heading.
func TaskSummary(content string) string {
	var summary string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if title, ok := strings.CutPrefix(line, "# Task:"); ok {
			summary = strings.TrimSpace(title)
			break
		}
		if line != "" && !strings.HasPrefix(line, "#") {
			summary = line
			break
		}
	}
	return runewidth.Truncate(summary, taskSummaryWidth, "…")
}
