package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pengelbrecht/hive/internal/agent"
	"github.com/pengelbrecht/hive/internal/issues"
	"github.com/pengelbrecht/hive/internal/runner"
	"github.com/pengelbrecht/hive/internal/selector"
	"github.com/pengelbrecht/hive/internal/update"
	"github.com/pengelbrecht/hive/internal/worktree"
)

// AgentEnv tells the child which agent hive launched.
const AgentEnv = "HIVE_AGENT"

// interactiveWorktree is the -w value that opens the picker.
const interactiveWorktree = "-"

var errNoTerminal = errors.New("interactive worktree selection needs a terminal")

var runOpts struct {
	agent        string
	worktree     string
	resume       bool
	restart      bool
	restartDelay float64
	skipPerms    bool
	autoSelect   bool
}

var runCmd = &cobra.Command{
	Use:   "run [flags] [-- agent args]",
	Short: "Launch a coding agent",
	Long: `Run detects an installed agent and launches it with the terminal attached.

With --worktree the agent runs inside that branch's worktree, which is
created on first use; "-w -" opens an interactive picker instead. With
--restart the agent is relaunched after every exit until you interrupt it,
and with the picker enabled a new worktree can be chosen before each run.`,
	Args: cobra.ArbitraryArgs,
	RunE: runAgent,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runOpts.agent, "agent", "a", "", "Agent to launch (default: first installed, or $HIVE_AGENT)")
	f.StringVarP(&runOpts.worktree, "worktree", "w", "", `Worktree branch to run in ("-" to pick interactively)`)
	f.BoolVarP(&runOpts.resume, "resume", "r", false, "Resume the agent's previous conversation")
	f.BoolVar(&runOpts.restart, "restart", false, "Relaunch the agent whenever it exits")
	f.Float64Var(&runOpts.restartDelay, "restart-delay", 0, "Seconds to wait between restarts (default from config)")
	f.BoolVar(&runOpts.skipPerms, "skip-permissions", false, "Pass the agent's permission-bypass flags")
	f.BoolVar(&runOpts.autoSelect, "auto-select", false, "Auto-select the configured worktree in the picker")

	rootCmd.AddCommand(runCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx, false)
	if err != nil {
		return err
	}
	cfg := a.cfg

	registry := agent.NewRegistry(cfg.Agents)
	override := runOpts.agent
	if override == "" {
		override = os.Getenv(AgentEnv)
	}
	desc, err := registry.Detect(cfg.Agents.Order, override)
	if err != nil {
		return err
	}

	wtName := runOpts.worktree
	if runOpts.restart && wtName == "" && cfg.Worktrees.Enabled && a.mgr != nil {
		wtName = interactiveWorktree
	}
	if wtName != "" && a.mgr == nil {
		return worktree.ErrNotGitRepo
	}

	l := &launcher{
		app:        a,
		registry:   registry,
		agent:      desc,
		extra:      args,
		resume:     runOpts.resume || cfg.Resume.Enabled,
		skipPerms:  runOpts.skipPerms || (wtName != "" && cfg.Worktrees.SkipPermissions),
		autoSelect: runOpts.autoSelect,
	}
	target, err := l.target(ctx, wtName)
	if err != nil {
		return err
	}

	sess := runner.NewSession(target.Command, target.Dir)
	sess.Env = target.Env
	sess.Restart = runOpts.restart
	sess.Delay = cfg.Restart.DelayDuration()
	if cmd.Flags().Changed("restart-delay") {
		sess.Delay = secondsFlag(runOpts.restartDelay)
	}
	if runOpts.restart && wtName == interactiveWorktree {
		sess.Reselect = func(ctx context.Context) (runner.Target, error) {
			return l.target(ctx, interactiveWorktree)
		}
	}

	r, stop := newRunner(a)
	defer stop()
	if cfg.Restart.MaxFailures > 0 {
		guard := runner.NewCrashGuard(cfg.Restart.MaxFailures, cfg.Restart.WindowDuration())
		r = runner.WithCrashGuard(r, guard)
		r.OnRunStart = func(run int, _ runner.Target) {
			if n := guard.Failures(); run > 1 && n > 0 {
				a.log.Warn("restarting after failures", "failures", n, "max", guard.MaxFailures, "window", guard.Window)
			}
		}
	}

	a.log.Debug("launching agent", "agent", l.agent.Name, "dir", target.Dir, "session", sess.ID)
	code, err := r.Run(ctx, sess)
	if err != nil {
		return err
	}
	if runOpts.restart {
		return nil
	}

	if isTerminal(os.Stderr) {
		if notice := update.CheckPeriodically(ctx, version); notice != "" {
			fmt.Fprintln(os.Stderr, dimStyle.Render(notice))
		}
	}
	if code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// newRunner returns a runner that receives SIGINT and SIGTERM as
// interrupts. The returned func stops signal delivery.
func newRunner(a *app) (*runner.Runner, func()) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	r := runner.New(a.log)
	r.Interrupts = sigCh
	return r, func() { signal.Stop(sigCh) }
}

// launcher turns a worktree choice into a runner target. Picker changes to
// the agent and skip-permissions carry over to later restarts.
type launcher struct {
	app        *app
	registry   *agent.Registry
	agent      agent.Descriptor
	extra      []string
	resume     bool
	skipPerms  bool
	autoSelect bool
}

func (l *launcher) target(ctx context.Context, wtName string) (runner.Target, error) {
	dir := l.app.cwd
	resume := l.resume

	if wtName != "" {
		var (
			wt      *worktree.Worktree
			created bool
			err     error
		)
		if wtName == interactiveWorktree {
			wt, created, err = l.pick(ctx)
		} else {
			wt, created, err = l.open(ctx, wtName)
		}
		if err != nil {
			return runner.Target{}, err
		}
		dir = wt.Path
		switch {
		case created:
			// Nothing to resume in a fresh worktree.
			resume = false
		case l.app.cfg.Worktrees.Resume:
			resume = true
		}
	}

	if resume && !l.agent.CanResume() {
		l.app.log.Debug("agent has no resume args", "agent", l.agent.Name)
	}
	return runner.Target{
		Dir:     dir,
		Command: l.agent.Command(resume, l.skipPerms, l.extra),
		Env:     map[string]string{AgentEnv: l.agent.Name},
	}, nil
}

// open returns branch's worktree, creating it when missing.
func (l *launcher) open(ctx context.Context, branch string) (*worktree.Worktree, bool, error) {
	wt, err := l.app.mgr.Get(ctx, branch)
	if err == nil {
		return wt, false, nil
	}
	if !errors.Is(err, worktree.ErrWorktreeNotFound) {
		return nil, false, err
	}
	wt, err = selector.Materialize(ctx, l.app.mgr, nil, &selector.NewBranch{Name: branch})
	if err != nil {
		return nil, false, err
	}
	return wt, true, nil
}

// pick shows the worktree picker and materializes the choice.
func (l *launcher) pick(ctx context.Context) (*worktree.Worktree, bool, error) {
	if !isTerminal(os.Stdin) {
		return nil, false, errNoTerminal
	}
	cfg := l.app.cfg

	sel := selector.New(l.app.mgr, l.app.log)
	sel.Agent = l.agent.Name
	sel.Agents = l.registry.Available(cfg.Agents.Order)
	sel.SkipPermissions = l.skipPerms
	sel.AutoSelect = cfg.Worktrees.AutoSelect
	if l.autoSelect {
		sel.AutoSelect.Enabled = true
	}

	var viewer selector.Viewer
	if cfg.GitHub.FetchIssues {
		if client := l.attachIssues(ctx, sel); client != nil {
			viewer = client
		}
	}

	res, err := sel.Select(ctx)
	if err != nil {
		return nil, false, err
	}

	l.skipPerms = res.SkipPermissions
	if res.Agent != "" && res.Agent != l.agent.Name {
		desc, err := l.registry.Detect(nil, res.Agent)
		if err != nil {
			return nil, false, err
		}
		l.agent = desc
	}

	if res.Existing != nil {
		return res.Existing, false, nil
	}
	wt, err := selector.Materialize(ctx, l.app.mgr, viewer, res.NewBranch)
	if err != nil {
		return nil, false, err
	}
	return wt, true, nil
}

// attachIssues wires the GitHub issue cache into sel. It returns nil when
// gh is missing or the repository has no GitHub origin.
func (l *launcher) attachIssues(ctx context.Context, sel *selector.Selector) *issues.Client {
	client := issues.NewClient(l.app.mainRepo)
	if !client.Available() {
		l.app.log.Debug("gh not installed, skipping issues")
		return nil
	}
	repo, err := issues.OriginRepo(ctx, l.app.mainRepo)
	if err != nil {
		l.app.log.Debug("no GitHub origin, skipping issues", "err", err)
		return nil
	}
	sel.Cache = issues.NewCache(issues.CacheDir(), repo)
	sel.Remote = client
	sel.IssueLimit = l.app.cfg.GitHub.IssueLimit
	return client
}
