package viewer

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/smileynet/sldview/internal/reloader"
)

// MinLeftWidth is the minimum character width for the left pane.
const MinLeftWidth = 28

var (
	colorOK      = lipgloss.AdaptiveColor{Light: "2", Dark: "10"}
	colorBusy    = lipgloss.AdaptiveColor{Light: "4", Dark: "12"}
	colorWarn    = lipgloss.AdaptiveColor{Light: "3", Dark: "11"}
	colorFail    = lipgloss.AdaptiveColor{Light: "1", Dark: "9"}
	colorDim     = lipgloss.AdaptiveColor{Light: "240", Dark: "245"}
	titleStyle   = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(colorDim)
	errorStyle   = lipgloss.NewStyle().Foreground(colorFail)
	warnStyle    = lipgloss.NewStyle().Foreground(colorWarn)
	currentStyle = lipgloss.NewStyle().Bold(true).Foreground(colorBusy)
)

// StateBadge returns the state name colored by outcome: green when loaded,
// blue while fetching, yellow when stale or waiting, red on error.
func StateBadge(s reloader.Snapshot) string {
	var c lipgloss.TerminalColor
	switch {
	case s.IsStale(), s.IsWaitingForRuntime():
		c = colorWarn
	case s.IsLoaded():
		c = colorOK
	case s.IsLoading(), s.IsRefreshing():
		c = colorBusy
	case s.IsError():
		c = colorFail
	default:
		c = colorDim
	}
	return lipgloss.NewStyle().Foreground(c).Bold(true).Render(string(s.State))
}

// FocusedBorder returns a lipgloss style with an accent-colored rounded border.
func FocusedBorder() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBusy)
}

// UnfocusedBorder returns a lipgloss style with a dim rounded border.
func UnfocusedBorder() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.AdaptiveColor{Light: "240", Dark: "240"})
}

// PaneWidths calculates the left and right pane widths from a total width.
// Left pane gets 1/3 (minimum MinLeftWidth), right pane gets the rest.
func PaneWidths(totalWidth int) (left, right int) {
	if totalWidth <= 0 {
		return 0, 0
	}
	left = max(totalWidth/3, MinLeftWidth)
	right = max(totalWidth-left, 0)
	return left, right
}
