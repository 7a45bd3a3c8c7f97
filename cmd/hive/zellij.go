package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/pengelbrecht/hive/internal/agent"
	"github.com/pengelbrecht/hive/internal/runner"
	"github.com/pengelbrecht/hive/internal/zellij"
)

var zellijOpts struct {
	agent   string
	layout  string
	session string
}

var zellijCmd = &cobra.Command{
	Use:   "zellij",
	Short: "Attach to (or create) the repository's zellij session",
	Long: `Zellij opens a session named after the repository and agent
(zellij.session_name, default "{repo}-{agent}"). The chosen agent is
exported as HIVE_AGENT so "hive run" inside the session picks it up.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := zellij.CheckNotNested(nil); err != nil {
			return err
		}
		ctx := cmd.Context()
		a, err := loadApp(ctx, false)
		if err != nil {
			return err
		}
		if _, err := exec.LookPath("zellij"); err != nil {
			return fmt.Errorf("zellij not installed: %w", err)
		}

		override := zellijOpts.agent
		if override == "" {
			override = os.Getenv(AgentEnv)
		}
		desc, err := agent.NewRegistry(a.cfg.Agents).Detect(a.cfg.Agents.Order, override)
		if err != nil {
			return err
		}

		session := zellijOpts.session
		if session == "" {
			session = zellij.SessionName(a.cfg.Zellij.SessionName, a.repoName(), desc.Name)
		}
		layout := zellijOpts.layout
		if layout == "" {
			layout = a.cfg.Zellij.Layout
		}

		dir := a.cwd
		if a.mainRepo != "" {
			dir = a.mainRepo
		}
		sess := runner.NewSession(zellij.Command(layout, session), dir)
		sess.Env = map[string]string{AgentEnv: desc.Name}

		r, stop := newRunner(a)
		defer stop()
		a.log.Debug("attaching zellij", "session", session, "layout", layout)
		code, err := r.Run(ctx, sess)
		if err != nil {
			return err
		}
		if code != 0 {
			return &exitError{code: code}
		}
		return nil
	},
}

func init() {
	f := zellijCmd.Flags()
	f.StringVarP(&zellijOpts.agent, "agent", "a", "", "Agent for the session (default: first installed)")
	f.StringVarP(&zellijOpts.layout, "layout", "l", "", "Zellij layout (default from config)")
	f.StringVarP(&zellijOpts.session, "session", "s", "", "Session name (default from config template)")

	rootCmd.AddCommand(zellijCmd)
}
