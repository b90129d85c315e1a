package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"duo/internal/app"
	"duo/internal/config"
	"duo/internal/todo"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#A78BFA"))
	cursorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FBBF24")).Bold(true)
	doneStyle      = lipgloss.NewStyle().Strikethrough(true).Foreground(lipgloss.Color("#6B7280"))
	grabStyle      = lipgloss.NewStyle().Reverse(true)
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	activeTabStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Todo List"))
	b.WriteString("  ")
	b.WriteString(m.renderTabs())
	b.WriteString("\n\n")

	if m.mode == modeAdd || m.mode == modeLogin {
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
	}

	items := m.Items()
	if len(items) == 0 {
		if m.ctrl.View() == todo.Active {
			b.WriteString(mutedStyle.Render(fmt.Sprintf("No tasks yet. Press '%s' to add one.", m.cfg.Keys.Add)))
		} else {
			b.WriteString(mutedStyle.Render("Nothing completed yet."))
		}
		b.WriteString("\n")
	} else {
		b.WriteString(m.renderItems(items))
	}

	b.WriteString("\n")
	b.WriteString(m.renderStats())
	b.WriteString("\n")
	b.WriteString(m.status)
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(renderHelp(m.cfg.Keys)))
	return b.String()
}

func (m Model) renderTabs() string {
	tabs := []todo.ListName{todo.Active, todo.Completed}
	parts := make([]string, len(tabs))
	for i, t := range tabs {
		label := fmt.Sprintf("%s (%d)", t, m.ctrl.Len(t))
		if t == m.ctrl.View() {
			parts[i] = activeTabStyle.Render(label)
		} else {
			parts[i] = mutedStyle.Render(label)
		}
	}
	return strings.Join(parts, " | ")
}

func (m Model) renderItems(items todo.List) string {
	var b strings.Builder
	completed := m.ctrl.View() == todo.Completed
	for i, it := range items {
		cursor := " "
		if i == m.cursor && m.mode != modeAdd {
			cursor = cursorStyle.Render(">")
		}
		box := "[ ]"
		if completed {
			box = "[x]"
		}

		text := it.Text
		switch {
		case m.mode == modeEdit && it.ID == m.editID:
			text = m.input.View()
		case m.drag != nil && it.ID == m.drag.id:
			text = grabStyle.Render(text)
		case completed:
			text = doneStyle.Render(text)
		}
		b.WriteString(fmt.Sprintf("%s %s %s\n", cursor, box, text))
	}
	return b.String()
}

func (m Model) renderStats() string {
	storage := "SQLite"
	if m.ctrl.Backend() == app.BackendRemote {
		storage = "Postgres"
		if id, ok := m.ctrl.Identity(); ok {
			storage += " (" + id.Email + ")"
		}
	}
	return mutedStyle.Render(fmt.Sprintf("Todos: %d • Storage: %s", len(m.ctrl.Selected()), storage))
}

func renderHelp(k config.Keymap) string {
	return fmt.Sprintf("%s/%s move • %s add • %s edit • space complete • %s delete • %s grab • %s switch • %s clear • %s login • %s logout • %s quit",
		k.Up, k.Down, k.Add, k.Edit, k.Delete, k.Grab, k.SwitchView, k.Clear, k.Login, k.Logout, k.Quit)
}
