package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"go-annotate/theme"
)

// RenderProgress draws a bar width cells wide filled to progress (0-1)
func RenderProgress(th *theme.Theme, width int, progress float64) string {
	if width <= 0 {
		return ""
	}
	filled := int(min(max(progress, 0), 1) * float64(width))
	full := lipgloss.NewStyle().Foreground(th.Accent())
	empty := lipgloss.NewStyle().Foreground(th.Muted())
	return full.Render(strings.Repeat(string(th.Symbols.BarFull), filled)) +
		empty.Render(strings.Repeat(string(th.Symbols.BarEmpty), width-filled))
}

// ProgressTime maps a click at x cells into a bar of width cells to a
// position in a piece of total seconds
func ProgressTime(x, width int, total float64) float64 {
	if width <= 0 {
		return 0
	}
	frac := (float64(x) + 0.5) / float64(width)
	return min(max(frac, 0), 1) * total
}

// FormatTime renders seconds as m:ss.s
func FormatTime(sec float64) string {
	sec = max(sec, 0)
	m := int(sec) / 60
	return fmt.Sprintf("%d:%04.1f", m, sec-float64(m*60))
}
