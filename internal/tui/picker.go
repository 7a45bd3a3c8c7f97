package tui

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"
)

// ItemKind distinguishes picker rows.
type ItemKind int

const (
	KindWorktree ItemKind = iota
	KindBranch
	KindIssue
)

// Item is one picker row. Value is the branch name for worktrees and
// branches, and the pre-filled branch prefix for issues.
type Item struct {
	Kind   ItemKind
	Label  string
	Detail string
	Value  string
	Main   bool
}

// item implements list.Item for picker display.
type item struct {
	Item
	index int
}

func (i item) Title() string       { return i.Label }
func (i item) Description() string { return i.Detail }
func (i item) FilterValue() string { return i.Label }

// Action is what the operator asked for when the picker closed.
type Action int

const (
	ActionCancel Action = iota
	ActionSelect
	ActionNewBranch
	ActionDelete
	ActionEditor
	ActionChangeAgent
)

// Outcome is the picker's result. Index refers to the items passed to
// NewPicker and is -1 when no row applies.
type Outcome struct {
	Action          Action
	Index           int
	Input           string
	SkipPermissions bool
}

// Options configures a picker.
type Options struct {
	Title           string
	Agent           string
	Agents          []string
	SkipPermissions bool
	// AutoSelect is the Value chosen after AutoSelectAfter without a keypress.
	AutoSelect      string
	AutoSelectAfter time.Duration
	// Status is shown under the title, e.g. a deleted-worktree notice.
	Status string
}

type mode int

const (
	modeList mode = iota
	modeConfirmDelete
	modeInput
	modeAgent
)

type autoSelectMsg struct{}

// Picker styles
var (
	pickerTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("205"))

	pickerStyle = lipgloss.NewStyle().
			Padding(1, 2)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")).
			Bold(true)
)

// Picker is the worktree selection model.
type Picker struct {
	list    list.Model
	agents  list.Model
	input   textinput.Model
	keys    KeyMap
	opts    Options
	items   []Item
	mode    mode
	pending int // row the confirm or input mode refers to
	status  string

	skipPerms     bool
	autoCancelled bool
	outcome       *Outcome
	width         int
	height        int
}

// NewPicker creates a picker over items.
func NewPicker(items []Item, opts Options) Picker {
	rows := make([]list.Item, len(items))
	for i, it := range items {
		rows[i] = item{Item: it, index: i}
	}

	delegate := list.NewDefaultDelegate()
	l := list.New(rows, delegate, 60, 20)
	l.Title = opts.Title
	if l.Title == "" {
		l.Title = "Select a worktree"
	}
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Filter = fuzzyFilter
	l.Styles.Title = pickerTitleStyle
	l.DisableQuitKeybindings()

	keys := DefaultKeyMap()
	l.AdditionalShortHelpKeys = func() []key.Binding {
		return []key.Binding{keys.NewBranch, keys.Delete, keys.Editor, keys.ChangeAgent, keys.SkipPerms}
	}

	agentRows := make([]list.Item, len(opts.Agents))
	for i, a := range opts.Agents {
		agentRows[i] = item{Item: Item{Label: a, Value: a}, index: i}
	}
	agentDelegate := list.NewDefaultDelegate()
	agentDelegate.ShowDescription = false
	al := list.New(agentRows, agentDelegate, 40, 12)
	al.Title = "Select agent"
	al.Styles.Title = pickerTitleStyle
	al.SetFilteringEnabled(false)
	al.DisableQuitKeybindings()

	ti := textinput.New()
	ti.Placeholder = "branch name"
	ti.CharLimit = 200

	return Picker{
		list:      l,
		agents:    al,
		input:     ti,
		keys:      keys,
		opts:      opts,
		items:     items,
		pending:   -1,
		status:    opts.Status,
		skipPerms: opts.SkipPermissions,
	}
}

// fuzzyFilter ranks rows with sahilm/fuzzy, best match first.
func fuzzyFilter(term string, targets []string) []list.Rank {
	matches := fuzzy.Find(term, targets)
	ranks := make([]list.Rank, len(matches))
	for i, m := range matches {
		ranks[i] = list.Rank{Index: m.Index, MatchedIndexes: m.MatchedIndexes}
	}
	return ranks
}

// Init implements tea.Model.
func (p Picker) Init() tea.Cmd {
	if p.opts.AutoSelect == "" || p.opts.AutoSelectAfter <= 0 {
		return nil
	}
	return tea.Tick(p.opts.AutoSelectAfter, func(time.Time) tea.Msg {
		return autoSelectMsg{}
	})
}

// Update implements tea.Model.
func (p Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case autoSelectMsg:
		if p.autoCancelled || p.mode != modeList {
			return p, nil
		}
		for i, it := range p.items {
			if it.Kind != KindIssue && it.Value == p.opts.AutoSelect {
				return p.finish(ActionSelect, i, "")
			}
		}
		return p, nil

	case tea.WindowSizeMsg:
		p.width = msg.Width
		p.height = msg.Height
		p.list.SetSize(msg.Width-4, msg.Height-6)
		p.agents.SetSize(msg.Width-4, msg.Height-6)
		return p, nil

	case tea.KeyMsg:
		p.autoCancelled = true
		if msg.String() == "ctrl+c" {
			return p.finish(ActionCancel, -1, "")
		}
		switch p.mode {
		case modeConfirmDelete:
			return p.updateConfirm(msg)
		case modeInput:
			return p.updateInput(msg)
		case modeAgent:
			return p.updateAgent(msg)
		}
		if next, cmd, handled := p.updateListKeys(msg); handled {
			return next, cmd
		}
	}

	var cmd tea.Cmd
	switch p.mode {
	case modeInput:
		p.input, cmd = p.input.Update(msg)
	case modeAgent:
		p.agents, cmd = p.agents.Update(msg)
	default:
		p.list, cmd = p.list.Update(msg)
	}
	return p, cmd
}

// updateListKeys handles picker actions. Keys are left to the list while
// the filter prompt is open.
func (p Picker) updateListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	if p.list.FilterState() == list.Filtering {
		return p, nil, false
	}

	current, hasCurrent := p.list.SelectedItem().(item)

	switch {
	case key.Matches(msg, p.keys.Quit):
		m, cmd := p.finish(ActionCancel, -1, "")
		return m, cmd, true

	case key.Matches(msg, p.keys.NewBranch):
		if p.list.FilterState() == list.FilterApplied {
			return p, nil, false
		}
		m, cmd := p.startInput(-1, "")
		return m, cmd, true

	case key.Matches(msg, p.keys.Select):
		if !hasCurrent {
			m, cmd := p.startInput(-1, "")
			return m, cmd, true
		}
		if current.Kind == KindIssue {
			m, cmd := p.startInput(current.index, current.Value)
			return m, cmd, true
		}
		m, cmd := p.finish(ActionSelect, current.index, "")
		return m, cmd, true

	case key.Matches(msg, p.keys.Delete):
		if !hasCurrent || current.Kind != KindWorktree || current.Main {
			p.status = "only secondary worktrees can be deleted"
			return p, nil, true
		}
		p.mode = modeConfirmDelete
		p.pending = current.index
		return p, nil, true

	case key.Matches(msg, p.keys.Editor):
		if !hasCurrent || current.Kind != KindWorktree {
			p.status = "select a worktree to open"
			return p, nil, true
		}
		m, cmd := p.finish(ActionEditor, current.index, "")
		return m, cmd, true

	case key.Matches(msg, p.keys.ChangeAgent):
		if len(p.opts.Agents) == 0 {
			p.status = "no other agents installed"
			return p, nil, true
		}
		p.mode = modeAgent
		return p, nil, true

	case key.Matches(msg, p.keys.SkipPerms):
		p.skipPerms = !p.skipPerms
		return p, nil, true
	}
	return p, nil, false
}

func (p Picker) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, p.keys.Confirm) {
		return p.finish(ActionDelete, p.pending, "")
	}
	p.mode = modeList
	p.pending = -1
	return p, nil
}

func (p Picker) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, p.keys.Back):
		p.mode = modeList
		p.pending = -1
		p.input.Blur()
		return p, nil
	case key.Matches(msg, p.keys.Select):
		name := strings.TrimSpace(p.input.Value())
		if name == "" {
			return p, nil
		}
		return p.finish(ActionNewBranch, p.pending, name)
	}
	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	return p, cmd
}

func (p Picker) updateAgent(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, p.keys.Back):
		p.mode = modeList
		return p, nil
	case key.Matches(msg, p.keys.Select):
		if it, ok := p.agents.SelectedItem().(item); ok {
			return p.finish(ActionChangeAgent, -1, it.Value)
		}
		return p, nil
	}
	var cmd tea.Cmd
	p.agents, cmd = p.agents.Update(msg)
	return p, cmd
}

func (p Picker) startInput(index int, prefill string) (tea.Model, tea.Cmd) {
	p.mode = modeInput
	p.pending = index
	p.input.SetValue(prefill)
	p.input.CursorEnd()
	cmd := p.input.Focus()
	return p, cmd
}

func (p Picker) finish(action Action, index int, input string) (tea.Model, tea.Cmd) {
	p.outcome = &Outcome{
		Action:          action,
		Index:           index,
		Input:           input,
		SkipPermissions: p.skipPerms,
	}
	return p, tea.Quit
}

// View implements tea.Model.
func (p Picker) View() string {
	if p.outcome != nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(p.header())
	b.WriteString("\n")

	switch p.mode {
	case modeConfirmDelete:
		it := p.items[p.pending]
		b.WriteString(warnStyle.Render(fmt.Sprintf("Delete worktree %s? [y/N]", it.Value)))
	case modeInput:
		label := "New branch"
		if p.pending >= 0 {
			label = "Branch for " + p.items[p.pending].Label
		}
		b.WriteString(promptStyle.Render(label+":") + " " + p.input.View())
	case modeAgent:
		b.WriteString(p.agents.View())
	default:
		b.WriteString(p.list.View())
	}
	return pickerStyle.Render(b.String())
}

func (p Picker) header() string {
	skip := "off"
	if p.skipPerms {
		skip = "on"
	}
	parts := []string{}
	if p.opts.Agent != "" {
		parts = append(parts, "agent: "+p.opts.Agent)
	}
	parts = append(parts, "skip-perms: "+skip)
	if !p.autoCancelled && p.opts.AutoSelect != "" && p.opts.AutoSelectAfter > 0 {
		parts = append(parts, fmt.Sprintf("auto-select %s in %s", p.opts.AutoSelect, p.opts.AutoSelectAfter))
	}
	line := statusStyle.Render(strings.Join(parts, " · "))
	if p.status != "" {
		line += "\n" + warnStyle.Render(p.status)
	}
	return line
}

// Outcome returns the result. A picker closed any other way reports a cancel.
func (p Picker) Outcome() Outcome {
	if p.outcome == nil {
		return Outcome{Action: ActionCancel, Index: -1, SkipPermissions: p.skipPerms}
	}
	return *p.outcome
}

// Run shows the picker on the terminal and blocks until it closes. The
// picker draws on stderr so stdout stays free for shell integration.
func Run(items []Item, opts Options) (Outcome, error) {
	program := tea.NewProgram(NewPicker(items, opts), tea.WithAltScreen(), tea.WithOutput(os.Stderr))
	final, err := program.Run()
	if err != nil {
		return Outcome{Action: ActionCancel, Index: -1}, fmt.Errorf("run picker: %w", err)
	}
	return final.(Picker).Outcome(), nil
}
