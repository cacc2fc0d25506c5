package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"go-annotate/store"
	"go-annotate/widgets"
)

// lines outside the piano roll: header, two info lines, a gap, the
// progress bar, help and status
const chromeHeight = 8

var helpKeys = []widgets.KeyBinding{
	{Key: "space", Desc: "pause/resume"},
	{Key: "p", Desc: "play"},
	{Key: "s", Desc: "stop"},
	{Key: "←/→", Desc: "±5s"},
	{Key: "[/]", Desc: "speed"},
	{Key: "+/-", Desc: "volume"},
	{Key: "a/d", Desc: "agree/disagree"},
	{Key: "n", Desc: "next unannotated"},
	{Key: "j/k", Desc: "next/prev"},
	{Key: "/", Desc: "go to"},
	{Key: "q", Desc: "quit"},
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	th := m.deps.Theme

	headerStyle := lipgloss.NewStyle().Foreground(th.Accent()).Bold(true)
	labelStyle := lipgloss.NewStyle().Foreground(th.Muted())
	valueStyle := lipgloss.NewStyle().Foreground(th.FG())
	dimStyle := lipgloss.NewStyle().Foreground(th.Muted())

	state := m.deps.Manager.Snapshot()
	playState := "STOP"
	switch {
	case state.Playing:
		playState = "PLAY"
	case state.CursorVisible && state.Position > 0:
		playState = "PAUSE"
	}

	rec := m.current()
	name := "(no file)"
	mark := ""
	if rec != nil {
		name = rec.FileID
		if s := rec.Mark(); s != "" {
			mark = " " + s
		}
	}
	if m.loading != "" {
		name += " (loading)"
	}

	var out strings.Builder
	out.WriteString(headerStyle.Render(fmt.Sprintf("go-annotate  %s%s", name, mark)))
	out.WriteString(dimStyle.Render(fmt.Sprintf("  [%d/%d]  unannotated:%d  %s  x%.2f  vol:%d%%",
		m.index+1, len(m.records), m.unannotated, playState, m.speed, m.volume)))
	out.WriteString("\n")

	field := func(label, value string) string {
		if value == "" {
			value = "-"
		}
		return labelStyle.Render(label+": ") + valueStyle.Render(value)
	}
	if rec != nil {
		out.WriteString(strings.Join([]string{
			field("predicted", rec.PredictedMusicStyle),
			field("confidence", rec.ConfidenceScores),
			field("significant", rec.SignificantPrediction),
			field("tokens", rec.NumTokens),
		}, "  "))
		out.WriteString("\n")
		section := store.SectionAt(m.rollSections(), state.Position)
		out.WriteString(strings.Join([]string{
			field("changes", rec.StyleChangeTimestamps),
			field("section", section),
		}, "  "))
	} else {
		out.WriteString("\n")
	}
	out.WriteString("\n\n")

	rollView := m.roll.View(th, state.Position, state.CursorVisible)
	m.bounds.rollTop = 4
	m.bounds.rollHeight = lipgloss.Height(rollView) - 1 // ruler
	out.WriteString(rollView)
	out.WriteString("\n")

	elapsed := widgets.FormatTime(state.Position)
	total := widgets.FormatTime(state.TotalDuration)
	barWidth := max(m.roll.KeyWidth+m.roll.Width-len(elapsed)-len(total)-2, 10)
	m.bounds.barTop = m.bounds.rollTop + lipgloss.Height(rollView)
	m.bounds.barLeft = len(elapsed) + 1
	m.bounds.barWidth = barWidth
	out.WriteString(valueStyle.Render(elapsed) + " ")
	out.WriteString(widgets.RenderProgress(th, barWidth, state.Progress()))
	out.WriteString(" " + valueStyle.Render(total))
	out.WriteString("\n")

	out.WriteString(dimStyle.Render(widgets.RenderKeyLine(helpKeys)))
	out.WriteString("\n")

	switch {
	case m.gotoMode:
		out.WriteString(m.gotoInput.View())
	case m.status != "":
		out.WriteString(m.statusStyle().Render(m.status))
	}

	return out.String()
}

func (m Model) statusStyle() lipgloss.Style {
	th := m.deps.Theme
	style := lipgloss.NewStyle().Padding(0, 1)
	switch m.statusKind {
	case statusSuccess:
		return style.Foreground(th.BG()).Background(th.Success())
	case statusError:
		return style.Foreground(th.BG()).Background(th.Warning())
	}
	return style.Foreground(th.FG()).Background(th.Surface())
}

func (m Model) rollSections() []store.Section {
	rec := m.current()
	if rec == nil {
		return nil
	}
	total := m.deps.Manager.Snapshot().TotalDuration
	return store.Sections(store.ParseTimestamps(rec.StyleChangeTimestamps), total)
}
