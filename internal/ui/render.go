package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"taskflow/internal/config"
	"taskflow/internal/task"
)

var styles = struct {
	title     lipgloss.Style
	subtle    lipgloss.Style
	selected  lipgloss.Style
	done      lipgloss.Style
	errorText lipgloss.Style
	panel     lipgloss.Style
	spinner   lipgloss.Style
	bar       lipgloss.Style
}{
	title:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8B5CF6")),
	subtle:    lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")),
	selected:  lipgloss.NewStyle().Bold(true).Underline(true),
	done:      lipgloss.NewStyle().Strikethrough(true).Foreground(lipgloss.Color("#6B7280")),
	errorText: lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")),
	panel:     lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).Padding(0, 1),
	spinner:   lipgloss.NewStyle().Foreground(lipgloss.Color("#8B5CF6")),
	bar:       lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")),
}

var priorityColors = map[task.Priority]lipgloss.Color{
	task.PriorityHigh:   lipgloss.Color("#EF4444"),
	task.PriorityMedium: lipgloss.Color("#F59E0B"),
	task.PriorityLow:    lipgloss.Color("#10B981"),
}

var bucketColors = map[task.Bucket]lipgloss.Color{
	task.BucketToday:    lipgloss.Color("#3B82F6"),
	task.BucketTomorrow: lipgloss.Color("#F59E0B"),
	task.BucketOverdue:  lipgloss.Color("#EF4444"),
	task.BucketFuture:   lipgloss.Color("#6B7280"),
}

const progressWidth = 20

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(styles.title.Render("Taskflow"))
	b.WriteString("  ")
	b.WriteString(renderProgress(m.view.Stats))
	b.WriteString("\n\n")

	switch {
	case !m.view.Loaded && (m.view.Loading || m.view.LoadErr == nil):
		b.WriteString(m.spinner.View())
		b.WriteString(" Loading tasks...")
		b.WriteString("\n")
		return b.String()
	case !m.view.Loaded && m.view.LoadErr != nil:
		b.WriteString(styles.errorText.Render("Could not load your tasks."))
		b.WriteString("\n")
		b.WriteString(styles.subtle.Render(m.view.LoadErr.Error()))
		b.WriteString("\n\n")
		b.WriteString(fmt.Sprintf("Press %s to retry, %s to quit.", m.cfg.Keys.Reload, m.cfg.Keys.Quit))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(m.renderQuickFilters())
	b.WriteString("\n")
	b.WriteString(m.renderCategories())
	b.WriteString("\n")
	b.WriteString(m.renderCriteria())
	b.WriteString("\n\n")

	if len(m.view.Visible) == 0 {
		b.WriteString(styles.subtle.Render(m.emptyMessage()))
		b.WriteString("\n")
	} else {
		b.WriteString(m.renderTaskList())
	}

	b.WriteString("\n")

	switch {
	case m.form != nil:
		b.WriteString(styles.panel.Render(m.renderForm()))
		b.WriteString("\n")
		b.WriteString("Field: " + m.form.currentLabel())
		b.WriteString("\n")
		b.WriteString(m.input.View())
	case m.mode == modeSearch || m.mode == modeAddCategory:
		b.WriteString(m.input.View())
	default:
		b.WriteString(m.renderDetail())
	}

	b.WriteString("\n\n")
	if m.view.Loading {
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
	}
	b.WriteString(m.status)
	b.WriteString("\n")
	b.WriteString(styles.subtle.Render(renderHelp(m.cfg.Keys)))

	return b.String()
}

func renderProgress(s task.Stats) string {
	filled := 0
	if s.Total > 0 {
		filled = progressWidth * s.Completed / s.Total
	}
	bar := styles.bar.Render(strings.Repeat("█", filled)) + styles.subtle.Render(strings.Repeat("░", progressWidth-filled))
	return fmt.Sprintf("%s %d/%d done (%d%%)", bar, s.Completed, s.Total, s.Percentage)
}

func (m Model) renderQuickFilters() string {
	parts := make([]string, 0, len(task.QuickFilters()))
	for _, q := range task.QuickFilters() {
		label := quickFilterLabel(q)
		if n, ok := m.view.Counts.For(q); ok {
			label = fmt.Sprintf("%s %d", label, n)
		}
		if q == m.view.Criteria.QuickFilter {
			label = styles.selected.Render(label)
		}
		parts = append(parts, label)
	}
	return strings.Join(parts, " · ")
}

func (m Model) renderCategories() string {
	parts := []string{"All"}
	if m.view.Criteria.CategoryID == task.All {
		parts[0] = styles.selected.Render("All")
	}
	for _, c := range m.view.Categories {
		label := fmt.Sprintf("%s (%d)", c.Name, m.view.CategoryCounts[c.ID])
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(c.Color))
		if c.ID == m.view.Criteria.CategoryID {
			style = style.Bold(true).Underline(true)
		}
		parts = append(parts, style.Render(label))
	}
	return strings.Join(parts, " · ")
}

func (m Model) renderCriteria() string {
	c := m.view.Criteria
	line := "priority: " + c.Priority
	if c.SearchTerm != "" {
		line += fmt.Sprintf("  search: %q", c.SearchTerm)
	}
	return styles.subtle.Render(line)
}

func (m Model) emptyMessage() string {
	if m.view.FiltersActive {
		return "No tasks match your filters."
	}
	return fmt.Sprintf("No tasks yet. Press '%s' to add one.", m.cfg.Keys.Add)
}

func (m Model) renderTaskList() string {
	var b strings.Builder
	for i, t := range m.view.Visible {
		cursor := " "
		if m.cursor == i && m.mode == modeList {
			cursor = ">"
		}

		checkbox := "[ ]"
		title := t.Title
		if t.Completed {
			checkbox = "[x]"
			title = styles.done.Render(title)
		}

		parts := []string{cursor, checkbox, title, priorityBadge(t.Priority)}
		if c, ok := m.view.Category(t.CategoryID); ok {
			parts = append(parts, lipgloss.NewStyle().Foreground(lipgloss.Color(c.Color)).Render("#"+c.Name))
		}
		if badge := dateBadge(m.view.DateInfo(t)); badge != "" {
			parts = append(parts, badge)
		}
		b.WriteString(strings.Join(parts, " "))
		b.WriteString("\n")
	}
	return b.String()
}

func priorityBadge(p task.Priority) string {
	color, ok := priorityColors[p]
	if !ok {
		return string(p)
	}
	return lipgloss.NewStyle().Foreground(color).Render(string(p))
}

func dateBadge(info task.DateInfo) string {
	if info.Bucket == task.BucketNone {
		return ""
	}
	return lipgloss.NewStyle().Foreground(bucketColors[info.Bucket]).Render(info.Label)
}

func (m Model) renderDetail() string {
	t, ok := m.selected()
	if !ok {
		return "No task selected"
	}
	now := m.now()
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Title     : %s\n", t.Title))
	b.WriteString(fmt.Sprintf("Status    : %s\n", humanDone(t.Completed)))
	b.WriteString(fmt.Sprintf("Priority  : %s\n", t.Priority))
	b.WriteString(fmt.Sprintf("Category  : %s\n", emptyPlaceholder(m.categoryName(t.CategoryID))))
	b.WriteString(fmt.Sprintf("Due       : %s\n", emptyPlaceholder(formatDate(t.DueDate))))
	if !t.CreatedAt.IsZero() {
		b.WriteString(fmt.Sprintf("Created   : %s\n", humanize.RelTime(t.CreatedAt, now, "ago", "from now")))
	}
	if t.CompletedAt != nil {
		b.WriteString(fmt.Sprintf("Completed : %s\n", humanize.RelTime(*t.CompletedAt, now, "ago", "from now")))
	}
	return b.String()
}

func (m Model) renderForm() string {
	if m.form == nil {
		return ""
	}
	heading := "New task"
	if m.form.taskID != "" {
		heading = "Edit task"
	}
	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	values := m.form.values()
	for i, name := range formFields() {
		prefix := " "
		if i == m.form.index {
			prefix = ">"
		}
		b.WriteString(fmt.Sprintf("%s %-26s : %s\n", prefix, name, emptyPlaceholder(values[i])))
	}
	return strings.TrimRight(b.String(), "\n")
}

func quickFilterLabel(q task.QuickFilter) string {
	switch q {
	case task.QuickToday:
		return "Today"
	case task.QuickUpcoming:
		return "Upcoming"
	case task.QuickOverdue:
		return "Overdue"
	case task.QuickCompleted:
		return "Completed"
	case task.QuickActive:
		return "Active"
	default:
		return "All"
	}
}

func renderHelp(k config.Keymap) string {
	return fmt.Sprintf("%s/%s move • %s add • %s toggle • %s delete • %s edit • %s search • %s filter • %s priority • %s category • %s new category • %s reload • %s quit",
		k.Up, k.Down, k.Add, keyLabel(k.Toggle), k.Delete, k.Edit, k.Search, k.QuickFilter, k.Priority, k.Category, k.AddCategory, k.Reload, k.Quit)
}

func emptyPlaceholder(v string) string {
	if strings.TrimSpace(v) == "" {
		return "(empty)"
	}
	return v
}

func humanDone(done bool) string {
	if done {
		return "done"
	}
	return "pending"
}
