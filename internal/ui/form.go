package ui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"taskflow/internal/session"
	"taskflow/internal/task"
)

// formState backs both the add form and the task editor. taskID is empty
// when adding.
type formState struct {
	taskID   string
	title    string
	priority string
	category string
	due      string
	index    int

	// categoryID is the id the form opened with; kept when the category
	// field is left untouched, even if it no longer resolves.
	categoryID string
}

func formFields() []string {
	return []string{"title", "priority (high/medium/low)", "category", "due date (YYYY-MM-DD)"}
}

func (fs formState) currentLabel() string {
	return formFields()[fs.index]
}

func (fs formState) currentValue() string {
	switch fs.index {
	case 0:
		return fs.title
	case 1:
		return fs.priority
	case 2:
		return fs.category
	case 3:
		return fs.due
	default:
		return ""
	}
}

func (fs *formState) setCurrentValue(v string) {
	switch fs.index {
	case 0:
		fs.title = v
	case 1:
		fs.priority = v
	case 2:
		fs.category = v
	case 3:
		fs.due = v
	}
}

func (fs formState) values() []string {
	return []string{fs.title, fs.priority, fs.category, fs.due}
}

// startForm opens the add form when t is nil and the editor otherwise.
func (m Model) startForm(t *task.Task) (tea.Model, tea.Cmd) {
	fs := &formState{priority: m.cfg.DefaultPriority, categoryID: m.view.DefaultCategory}
	fs.category = m.categoryName(fs.categoryID)
	m.status = "Add task: enter to advance, ctrl+s to save, esc to cancel"
	if t != nil {
		fs = &formState{
			taskID:   t.ID,
			title:    t.Title,
			priority: string(t.Priority),
			category: m.categoryName(t.CategoryID),
			due:      formatDate(t.DueDate),

			categoryID: t.CategoryID,
		}
		m.status = "Edit task: tab to move, enter to save/next, esc to cancel"
	}
	m.form = fs
	m.mode = modeForm
	m.input.SetValue(fs.currentValue())
	m.input.Placeholder = fs.currentLabel()
	m.input.Focus()
	return m, nil
}

func (m Model) updateForm(key string, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key {
	case m.cfg.Keys.Cancel, "esc":
		if m.form.taskID != "" {
			m.sess.CancelEdit()
		}
		m.closeForm()
		m.status = "Cancelled"
		return m, nil
	case "tab", "down":
		m.moveField(1)
		return m, nil
	case "shift+tab", "up":
		m.moveField(-1)
		return m, nil
	case "ctrl+s":
		m.form.setCurrentValue(m.input.Value())
		return m.saveForm()
	case m.cfg.Keys.Confirm, "enter":
		m.form.setCurrentValue(m.input.Value())
		if m.form.index >= len(formFields())-1 {
			return m.saveForm()
		}
		m.moveField(1)
		return m, nil
	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
}

func (m *Model) moveField(delta int) {
	m.form.setCurrentValue(m.input.Value())
	m.form.index = wrapIndex(m.form.index+delta, len(formFields()))
	m.input.SetValue(m.form.currentValue())
	m.input.Placeholder = m.form.currentLabel()
	m.status = m.formPrompt()
}

func (m *Model) closeForm() {
	m.form = nil
	m.mode = modeList
	m.input.SetValue("")
	m.input.Blur()
}

func (m Model) saveForm() (tea.Model, tea.Cmd) {
	fs := *m.form
	categoryID, ok := fs.categoryID, true
	if fs.category != m.categoryName(fs.categoryID) {
		categoryID, ok = m.resolveCategory(fs.category)
	}
	if !ok {
		m.status = fmt.Sprintf("unknown category %q", strings.TrimSpace(fs.category))
		return m, nil
	}

	if fs.taskID == "" {
		if strings.TrimSpace(fs.title) == "" {
			m.status = "Title cannot be empty"
			return m, nil
		}
		draft := session.Draft{Title: fs.title, Priority: fs.priority, CategoryID: categoryID, DueDate: fs.due}
		m.closeForm()
		return m, m.mutate("", func(ctx context.Context) error {
			_, err := m.sess.AddTask(ctx, draft)
			return err
		})
	}

	priority, err := task.ParsePriority(fs.priority)
	if err != nil {
		m.status = fmt.Sprintf("priority invalid: %v", err)
		return m, nil
	}
	title := fs.title
	p := task.Patch{Title: &title, Priority: &priority, CategoryID: &categoryID}
	if strings.TrimSpace(fs.due) == "" {
		p.ClearDueDate = true
	} else {
		due, err := task.ParseDate(fs.due)
		if err != nil {
			m.status = fmt.Sprintf("due date invalid: %v", err)
			return m, nil
		}
		p.DueDate = &due
	}
	id := fs.taskID
	m.closeForm()
	return m, m.mutate(id, func(ctx context.Context) error {
		_, err := m.sess.UpdateTask(ctx, id, p)
		return err
	})
}

// resolveCategory maps the typed category to an id. Names match
// case-insensitively; an empty value means uncategorized.
func (m Model) resolveCategory(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", true
	}
	for _, c := range m.view.Categories {
		if c.ID == v || strings.EqualFold(c.Name, v) {
			return c.ID, true
		}
	}
	return "", false
}

func (m Model) categoryName(id string) string {
	if c, ok := m.view.Category(id); ok {
		return c.Name
	}
	return ""
}

func (m Model) formPrompt() string {
	if m.form == nil {
		return ""
	}
	return fmt.Sprintf("Editing %s (field %d of %d). Enter to advance, Esc to cancel, tab to move.",
		m.form.currentLabel(), m.form.index+1, len(formFields()))
}

func formatDate(d *task.Date) string {
	if d == nil {
		return ""
	}
	return d.Format("2006-01-02")
}
