package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/xiaot623/agentflow/internal/domain"
	"github.com/xiaot623/agentflow/internal/feed"
)

var (
	colorTitle   = lipgloss.Color("#7aa2f7")
	colorRunning = lipgloss.Color("#e0af68")
	colorDone    = lipgloss.Color("#9ece6a")
	colorError   = lipgloss.Color("#f7768e")
	colorFg      = lipgloss.Color("#c0caf5")
	colorDim     = lipgloss.Color("#565f89")
	colorSelBg   = lipgloss.Color("#283457")
	colorBorder  = lipgloss.Color("#3b4261")
	colorBarBg   = lipgloss.Color("#1a1b26")
)

func statusColor(s domain.StageStatus) lipgloss.Color {
	switch s {
	case domain.StageStatusInProgress:
		return colorRunning
	case domain.StageStatusCompleted:
		return colorDone
	case domain.StageStatusError:
		return colorError
	}
	return colorDim
}

func renderBar(pct, width int) string {
	barW := width - 5
	if barW < 4 {
		barW = 4
	}
	filled := barW * pct / 100
	bar := lipgloss.NewStyle().Foreground(colorDone).Render(strings.Repeat("█", filled)) +
		lipgloss.NewStyle().Foreground(colorBarBg).Render(strings.Repeat("░", barW-filled))
	return bar + lipgloss.NewStyle().Foreground(colorFg).Render(fmt.Sprintf(" %3d%%", pct))
}

func (m *model) View() string {
	w := m.width
	if w <= 0 {
		w = 100
	}

	var sections []string
	title := lipgloss.NewStyle().Bold(true).Foreground(colorTitle).Render("agentflow")
	sections = append(sections, title)

	var tabs []string
	for i, k := range m.keys {
		style := lipgloss.NewStyle().Padding(0, 1).Foreground(colorDim)
		if i == m.cursor {
			style = style.Background(colorSelBg).Foreground(colorFg).Bold(true)
		}
		tabs = append(tabs, style.Render(k))
	}
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top, tabs...))

	sections = append(sections, m.renderRun(w))

	if m.notice != "" {
		sections = append(sections, lipgloss.NewStyle().Foreground(colorRunning).Render(m.notice))
	}
	sections = append(sections, lipgloss.NewStyle().Foreground(colorDim).Render(m.help.View(keys)))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *model) renderRun(w int) string {
	v := m.view
	border := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 1).
		Width(w - 2)

	var b strings.Builder
	state := v.State
	if domain.ControllerState(state) == domain.ControllerRunning {
		state = m.spinner.View() + " " + state
	}
	fmt.Fprintf(&b, "%s  %s  %s\n", lipgloss.NewStyle().Bold(true).Render(v.RunKey), state, lipgloss.NewStyle().Foreground(colorDim).Render(string(v.Mode)))
	b.WriteString(renderBar(v.Progress.Percent, w-8))
	if v.Progress.Label != "" {
		b.WriteString("  " + v.Progress.Label)
	}
	b.WriteString("\n\n")

	for _, s := range v.Stages {
		b.WriteString(renderStage(s))
		b.WriteString("\n")
	}

	if v.MessageLine != "" {
		style := lipgloss.NewStyle().Foreground(colorFg)
		if v.Terminal {
			style = style.Bold(true)
		}
		b.WriteString("\n" + style.Render(v.MessageLine) + "\n")
	}
	if v.Error != "" {
		b.WriteString(lipgloss.NewStyle().Foreground(colorError).Render("✗ "+v.Error) + "\n")
	}
	if v.Result != nil {
		r := v.Result
		fmt.Fprintf(&b, "\n%s from %s: %d line items, amount due %.2f\n",
			r.Metadata.InvoiceNumber, r.Metadata.VendorName, len(r.LineItems), r.Summary.AmountDue)
	}
	return border.Render(strings.TrimRight(b.String(), "\n"))
}

func renderStage(s feed.StageView) string {
	mark := "○"
	switch s.Status {
	case domain.StageStatusInProgress:
		mark = "◐"
	case domain.StageStatusCompleted:
		mark = "●"
	case domain.StageStatusError:
		mark = "✗"
	}
	status := lipgloss.NewStyle().Foreground(statusColor(s.Status))
	line := fmt.Sprintf("%s %-28s %d/%d", status.Render(mark), s.DisplayName, s.Done, s.Total)

	if s.Status == domain.StageStatusInProgress {
		for _, a := range s.SubActions {
			if !a.Completed {
				line += lipgloss.NewStyle().Foreground(colorDim).Render("  " + a.Text)
				break
			}
		}
	}
	if s.Decision != nil {
		line += fmt.Sprintf("  → %s (%d%%)", s.Decision.Label, s.Decision.ConfidenceScore)
	}
	if s.Error != "" {
		line += lipgloss.NewStyle().Foreground(colorError).Render("  " + s.Error)
	}
	return line
}
