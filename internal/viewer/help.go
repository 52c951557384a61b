package viewer

import "github.com/charmbracelet/bubbles/help"

// HelpBindings returns the help.KeyMap for the given mode,
// providing context-aware help bar content.
func HelpBindings(mode Mode) help.KeyMap {
	if mode == ModeInput {
		return InputKeyMap()
	}
	return BrowseKeyMap()
}
