package tui

import (
	"github.com/charmbracelet/bubbles/key"
)

// KeyMap defines the key bindings for the picker.
type KeyMap struct {
	Select      key.Binding
	NewBranch   key.Binding
	Delete      key.Binding
	Editor      key.Binding
	ChangeAgent key.Binding
	SkipPerms   key.Binding
	Quit        key.Binding
	Confirm     key.Binding
	Back        key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "select"),
		),
		NewBranch: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "new branch"),
		),
		Delete: key.NewBinding(
			key.WithKeys("ctrl+d", "tab"),
			key.WithHelp("^d", "delete"),
		),
		Editor: key.NewBinding(
			key.WithKeys("ctrl+o"),
			key.WithHelp("^o", "open in editor"),
		),
		ChangeAgent: key.NewBinding(
			key.WithKeys("ctrl+a"),
			key.WithHelp("^a", "agent"),
		),
		SkipPerms: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("^s", "skip perms"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "q"),
			key.WithHelp("q", "quit"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("y", "Y"),
			key.WithHelp("y", "confirm"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
	}
}

// ShortHelp returns the bindings shown under the list.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Select, k.NewBranch, k.Delete, k.Editor, k.ChangeAgent, k.SkipPerms, k.Quit}
}

// FullHelp returns all key bindings for the help overlay.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Select, k.NewBranch, k.Quit},
		{k.Delete, k.Editor},
		{k.ChangeAgent, k.SkipPerms},
	}
}
