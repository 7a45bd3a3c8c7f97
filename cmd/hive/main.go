package main

import (
	"context"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var version = "dev"

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "hive",
	Short: "Run coding agents in isolated git worktrees",
	Long: `Hive launches an AI coding agent (claude, gemini, codex, ...) inside a git
worktree of the current repository, optionally picking or creating the
worktree interactively and restarting the agent whenever it exits.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging and full error chains")
}

// newLogger returns the root logger. HIVE_DEBUG or --verbose enables debug output.
func newLogger() *log.Logger {
	level := log.InfoLevel
	if verbose || os.Getenv("HIVE_DEBUG") != "" {
		level = log.DebugLevel
	}
	return log.NewWithOptions(os.Stderr, log.Options{
		Prefix: "hive",
		Level:  level,
	})
}

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	if err != nil {
		printError(os.Stderr, err, verbose)
	}
	os.Exit(exitCodeFor(err))
}
