package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pengelbrecht/hive/internal/agent"
	"github.com/pengelbrecht/hive/internal/selector"
	"github.com/pengelbrecht/hive/internal/worktree"
)

// Exit codes
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitNoAgent   = 10
	ExitNotFound  = 11
	ExitCancelled = 12
)

var (
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// exitError carries a child's exit code out of a command without a message.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// exitCodeFor maps an error to the process exit code.
func exitCodeFor(err error) int {
	var ee *exitError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &ee):
		return ee.code
	case errors.Is(err, selector.ErrCancelled):
		return ExitCancelled
	case errors.Is(err, agent.ErrNotFound):
		return ExitNoAgent
	case errors.Is(err, worktree.ErrWorktreeNotFound):
		return ExitNotFound
	default:
		return ExitFailure
	}
}

// recoverable lists failures the user can correct and retry without
// cleaning anything up first.
var recoverable = []error{
	agent.ErrNotFound,
	worktree.ErrWorktreeNotFound,
	worktree.ErrBranchInUse,
	worktree.ErrWorktreeDirty,
	worktree.ErrInvalidBase,
	worktree.ErrInvalidBranch,
	worktree.ErrMainWorktree,
	errNoTerminal,
}

// severity labels err as "recoverable" or "fatal". A failed post-create
// action is recoverable because the worktree is kept.
func severity(err error) string {
	var pce *worktree.PostCreateError
	if errors.As(err, &pce) {
		return "recoverable"
	}
	for _, target := range recoverable {
		if errors.Is(err, target) {
			return "recoverable"
		}
	}
	return "fatal"
}

// printError writes one red line labelled with the error's severity.
// Output of a failed post-create action is always shown below it; verbose
// mode adds every wrapped error.
func printError(w io.Writer, err error, verbose bool) {
	var ee *exitError
	if errors.As(err, &ee) {
		return
	}
	if errors.Is(err, selector.ErrCancelled) {
		fmt.Fprintln(w, dimStyle.Render("cancelled"))
		return
	}

	msg := err.Error()
	if !verbose {
		msg, _, _ = strings.Cut(msg, "\n")
	}
	fmt.Fprintln(w, errorStyle.Render(fmt.Sprintf("Error (%s): %s", severity(err), msg)))

	var pce *worktree.PostCreateError
	if !verbose && errors.As(err, &pce) {
		if out := strings.TrimSpace(pce.Output); out != "" {
			for _, line := range strings.Split(out, "\n") {
				fmt.Fprintln(w, dimStyle.Render("  "+line))
			}
		}
	}
	if !verbose {
		return
	}
	for _, e := range chain(err)[1:] {
		fmt.Fprintln(w, dimStyle.Render("  caused by: "+e.Error()))
	}
}

// chain flattens err and its wrapped errors, depth first.
func chain(err error) []error {
	out := []error{err}
	switch e := err.(type) {
	case interface{ Unwrap() error }:
		if inner := e.Unwrap(); inner != nil {
			out = append(out, chain(inner)...)
		}
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			out = append(out, chain(inner)...)
		}
	}
	return out
}
