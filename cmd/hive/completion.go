package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pengelbrecht/hive/internal/agent"
)

func init() {
	wtCreateCmd.ValidArgsFunction = completeBranches
	for _, c := range []*cobra.Command{
		wtDeleteCmd, wtPathCmd, wtCdCmd, wtExecCmd, wtExistsCmd,
		diffCmd, mergePreviewCmd,
		taskShowCmd, taskSetCmd, taskEditCmd, taskClearCmd,
	} {
		c.ValidArgsFunction = completeWorktrees
	}

	runCmd.RegisterFlagCompletionFunc("worktree", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		names, directive := completeBranches(cmd, nil, toComplete)
		return append([]string{"-"}, names...), directive
	})
	runCmd.RegisterFlagCompletionFunc("agent", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return withPrefix(agent.KnownAgents, toComplete), cobra.ShellCompDirectiveNoFileComp
	})
}

// completeBranches offers local and remote branch names for the branch and
// base arguments of wt create.
func completeBranches(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) >= 2 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	ctx := completionContext(cmd)
	a, err := loadApp(ctx, true)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	names, err := a.mgr.AllBranches(ctx)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	return withPrefix(names, toComplete), cobra.ShellCompDirectiveNoFileComp
}

// completeWorktrees offers the names of existing worktrees for the first
// argument.
func completeWorktrees(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveDefault
	}
	ctx := completionContext(cmd)
	a, err := loadApp(ctx, true)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	wts, err := a.mgr.List(ctx)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	names := make([]string, 0, len(wts))
	for _, wt := range wts {
		names = append(names, wt.Name())
	}
	return withPrefix(names, toComplete), cobra.ShellCompDirectiveNoFileComp
}

func completionContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func withPrefix(names []string, prefix string) []string {
	var out []string
	for _, n := range names {
		if strings.HasPrefix(n, prefix) {
			out = append(out, n)
		}
	}
	return out
}
