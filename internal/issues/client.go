// Package issues integrates with GitHub issues through the gh CLI and keeps
// a per-repository cache so the picker never waits on the network.
package issues

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ErrUnavailable is returned when the gh CLI is not installed.
var ErrUnavailable = errors.New("gh CLI not available")

// Client wraps the gh CLI for the few issue queries hive needs.
type Client struct {
	// Command is the path to the gh binary. Defaults to "gh".
	Command string
	// Dir is the repository the CLI runs in.
	Dir string
}

// NewClient creates a client for the repository at dir.
func NewClient(dir string) *Client {
	return &Client{Command: "gh", Dir: dir}
}

// Available checks if the gh CLI is installed and accessible.
func (c *Client) Available() bool {
	_, err := exec.LookPath(c.command())
	return err == nil
}

// ListAssigned returns open issues assigned to the authenticated user.
func (c *Client) ListAssigned(ctx context.Context, limit int) ([]Issue, error) {
	if limit <= 0 {
		limit = 20
	}
	out, err := c.run(ctx, "issue", "list",
		"--assignee", "@me",
		"--state", "open",
		"--json", "number,title,url",
		"--limit", strconv.Itoa(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("gh issue list: %w", err)
	}

	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return nil, nil
	}

	var list []Issue
	if err := json.Unmarshal(out, &list); err != nil {
		return nil, fmt.Errorf("parse issues JSON: %w", err)
	}
	return list, nil
}

// View returns one issue including its body.
func (c *Client) View(ctx context.Context, number int) (*Issue, error) {
	out, err := c.run(ctx, "issue", "view", strconv.Itoa(number), "--json", "number,title,url,body")
	if err != nil {
		return nil, fmt.Errorf("gh issue view %d: %w", number, err)
	}

	var issue Issue
	if err := json.Unmarshal(out, &issue); err != nil {
		return nil, fmt.Errorf("parse issue JSON: %w", err)
	}
	return &issue, nil
}

// command returns the gh command to use.
func (c *Client) command() string {
	if c.Command == "" {
		return "gh"
	}
	return c.Command
}

func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	if !c.Available() {
		return nil, ErrUnavailable
	}

	cmd := exec.CommandContext(ctx, c.command(), args...)
	cmd.Dir = c.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg == "" {
			errMsg = err.Error()
		}
		return nil, fmt.Errorf("%s", errMsg)
	}
	return stdout.Bytes(), nil
}
