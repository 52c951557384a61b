package viewer

import "github.com/charmbracelet/bubbles/key"

// browseKeys holds key bindings for browse mode.
type browseKeys struct {
	Open       key.Binding
	Next       key.Binding
	Refresh    key.Binding
	Auto       key.Binding
	Retry      key.Binding
	Clear      key.Binding
	ClearCache key.Binding
	Focus      key.Binding
	Up         key.Binding
	Down       key.Binding
	Quit       key.Binding
}

// ShortHelp returns the browse mode bindings for the help bar.
func (k browseKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Open, k.Next, k.Refresh, k.Auto, k.Retry, k.Clear, k.ClearCache, k.Quit}
}

// FullHelp returns the browse mode bindings grouped for expanded help.
func (k browseKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Open, k.Next, k.Focus},
		{k.Refresh, k.Auto, k.Retry},
		{k.Clear, k.ClearCache},
		{k.Up, k.Down, k.Quit},
	}
}

// inputKeys holds key bindings while typing an id.
type inputKeys struct {
	Submit key.Binding
	Cancel key.Binding
}

// ShortHelp returns the input mode bindings for the help bar.
func (k inputKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.Cancel}
}

// FullHelp returns the input mode bindings grouped for expanded help.
func (k inputKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Submit, k.Cancel}}
}

// BrowseKeyMap returns the key bindings for browse mode.
func BrowseKeyMap() browseKeys {
	return browseKeys{
		Open: key.NewBinding(
			key.WithKeys("/", "o"),
			key.WithHelp("/", "open id"),
		),
		Next: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "next cached"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Auto: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "auto-refresh"),
		),
		Retry: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "retry"),
		),
		Clear: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "clear"),
		),
		ClearCache: key.NewBinding(
			key.WithKeys("C"),
			key.WithHelp("C", "clear cache"),
		),
		Focus: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "switch pane"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "scroll down"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// InputKeyMap returns the key bindings for input mode.
func InputKeyMap() inputKeys {
	return inputKeys{
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "load"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
	}
}
