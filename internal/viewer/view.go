package viewer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/smileynet/sldview/internal/diagram"
	"github.com/smileynet/sldview/internal/reloader"
)

// View renders the two-pane layout with the id input and help bar.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	leftWidth, rightWidth := PaneWidths(m.width)
	contentHeight := m.contentHeight()

	var leftStyle, rightStyle lipgloss.Style
	if m.focus == PaneLeft {
		leftStyle = FocusedBorder()
		rightStyle = UnfocusedBorder()
	} else {
		leftStyle = UnfocusedBorder()
		rightStyle = FocusedBorder()
	}

	leftStyle = leftStyle.
		Width(leftWidth - borderChrome).
		Height(contentHeight)
	rightStyle = rightStyle.
		Width(rightWidth - borderChrome).
		Height(contentHeight)

	leftPane := leftStyle.Render(m.viewLeft())
	rightPane := rightStyle.Render(m.viewport.View())
	panes := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, rightPane)

	inputLine := ""
	if m.mode == ModeInput {
		inputLine = m.input.View()
	}
	helpView := m.help.View(HelpBindings(m.mode))

	return lipgloss.JoinVertical(lipgloss.Left, inputLine, panes, helpView)
}

// viewLeft renders reload status followed by the cached ids.
func (m Model) viewLeft() string {
	s := m.snap
	var b strings.Builder

	status := StateBadge(s)
	if s.IsLoading() || s.IsRefreshing() {
		status = m.spinner.View() + " " + status
	}
	b.WriteString(status + "\n")

	if s.CurrentID != "" {
		b.WriteString(titleStyle.Render(s.CurrentID) + "\n")
	}
	if last := s.FormattedLastUpdate(); last != "" {
		b.WriteString(dimStyle.Render("updated "+last) + "\n")
	}

	auto := "off"
	if s.AutoRefreshEnabled {
		auto = "on"
	}
	b.WriteString(dimStyle.Render("auto-refresh "+auto) + "\n")

	switch {
	case !s.HasRuntime:
		b.WriteString(warnStyle.Render("no runtime") + "\n")
	case m.source != "":
		b.WriteString(dimStyle.Render("source "+m.source) + "\n")
	}

	if s.Err != "" {
		style := errorStyle
		if s.IsStale() {
			style = warnStyle
		}
		b.WriteString("\n" + style.Render(s.Err) + "\n")
	}

	fmt.Fprintf(&b, "\nCached (%d)\n", s.CacheSize)
	for _, id := range s.CachedIDs {
		if id == s.CurrentID {
			b.WriteString(currentStyle.Render("> "+id) + "\n")
			continue
		}
		b.WriteString("  " + id + "\n")
	}
	return b.String()
}

// renderDetail renders the loaded diagram's metadata for the right pane.
func renderDetail(s reloader.Snapshot, width int) string {
	d := s.Diagram
	if d == nil {
		switch {
		case s.IsWaitingForRuntime():
			return dimStyle.Render("Waiting for a runtime to load " + s.CurrentID)
		case s.IsLoading():
			return dimStyle.Render("Loading " + s.CurrentID + "...")
		case s.IsError():
			return errorStyle.Render("Failed to load "+s.CurrentID) + "\n" + dimStyle.Render("press R to retry")
		}
		return dimStyle.Render("No diagram. Press / to open one.")
	}

	var b strings.Builder
	md := d.Metadata
	b.WriteString(titleStyle.Render(d.ID) + "\n")
	fmt.Fprintf(&b, "svg %s, %d nodes, %d wires, %d feeders\n",
		byteSize(len(d.SVG)), len(md.Nodes), len(md.Wires), len(md.FeederInfos))

	if counts := componentCounts(md); len(counts) > 0 {
		b.WriteString("\n" + titleStyle.Render("Components") + "\n")
		for _, c := range counts {
			fmt.Fprintf(&b, "  %-22s %d\n", c.kind, c.n)
		}
	}

	if sw := md.Switches(); len(sw) > 0 {
		fmt.Fprintf(&b, "\n%s (%d open)\n", titleStyle.Render("Switches"), md.OpenSwitches())
		for _, n := range sw {
			state := "closed"
			if n.Open {
				state = warnStyle.Render("open")
			}
			fmt.Fprintf(&b, "  %s %s\n", truncate(label(n), width-10), state)
		}
	}

	if len(md.FeederInfos) > 0 {
		b.WriteString("\n" + titleStyle.Render("Feeders") + "\n")
		for _, f := range md.FeederInfos {
			line := f.EquipmentID
			if f.Side != "" {
				line += " (" + f.Side + ")"
			}
			fmt.Fprintf(&b, "  %s %s\n", truncate(line, width-4), dimStyle.Render(f.ComponentType))
		}
	}
	return b.String()
}

type componentCount struct {
	kind string
	n    int
}

// componentCounts tallies nodes by component type, most frequent first.
func componentCounts(md diagram.Metadata) []componentCount {
	tally := make(map[string]int)
	for _, n := range md.Nodes {
		kind := n.ComponentType
		if kind == "" {
			kind = "UNKNOWN"
		}
		tally[kind]++
	}
	out := make([]componentCount, 0, len(tally))
	for kind, n := range tally {
		out = append(out, componentCount{kind: kind, n: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].n != out[j].n {
			return out[i].n > out[j].n
		}
		return out[i].kind < out[j].kind
	})
	return out
}

func label(n diagram.Node) string {
	if n.EquipmentID != "" {
		return n.EquipmentID
	}
	return n.ID
}

func truncate(s string, width int) string {
	if width <= 1 || len(s) <= width {
		return s
	}
	return s[:width-1] + "…"
}

func byteSize(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}
