package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"

	"taskflow/internal/config"
	"taskflow/internal/session"
	"taskflow/internal/task"
)

type mode int

const (
	modeList mode = iota
	modeSearch
	modeAddCategory
	modeForm
)

type loadedMsg struct{ err error }

// mutationMsg is returned by every session call the model issues. focusID
// names the task the cursor should follow after the refresh.
type mutationMsg struct {
	err     error
	focusID string
}

type outcomeMsg session.Outcome

type Model struct {
	ctx     context.Context
	sess    *session.Session
	cfg     config.Config
	now     func() time.Time
	view    session.View
	cursor  int
	mode    mode
	input   textinput.Model
	spinner spinner.Model
	status  string

	confirmDel bool
	pendingDel *task.Task
	form       *formState
}

// Notifier forwards session outcomes into a running program. Outcomes that
// arrive while no program is attached are dropped.
type Notifier struct {
	mu sync.Mutex
	p  *tea.Program
}

func (n *Notifier) Notify(o session.Outcome) {
	n.mu.Lock()
	p := n.p
	n.mu.Unlock()
	if p != nil {
		p.Send(outcomeMsg(o))
	}
}

func (n *Notifier) attach(p *tea.Program) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.p = p
}

func New(ctx context.Context, sess *session.Session, cfg config.Config) Model {
	ti := textinput.New()
	ti.Placeholder = "Task title"
	ti.CharLimit = 256
	ti.Width = 40

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.spinner

	return Model{
		ctx:     ctx,
		sess:    sess,
		cfg:     cfg,
		now:     time.Now,
		view:    sess.Snapshot(),
		input:   ti,
		spinner: sp,
		mode:    modeList,
		status:  fmt.Sprintf("Press '%s' to add, '%s' to toggle, '%s' to delete.", cfg.Keys.Add, keyLabel(cfg.Keys.Toggle), cfg.Keys.Delete),
	}
}

// Run starts the terminal UI and blocks until the user quits.
func Run(ctx context.Context, sess *session.Session, cfg config.Config, n *Notifier) error {
	program := tea.NewProgram(New(ctx, sess, cfg), tea.WithContext(ctx))
	if n != nil {
		n.attach(program)
		defer n.attach(nil)
	}
	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadCmd())
}

func (m Model) loadCmd() tea.Cmd {
	return func() tea.Msg {
		return loadedMsg{err: m.sess.Load(m.ctx)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.view.Loaded && m.mode == modeList {
			return m.updateUnloaded(msg.String())
		}
		if m.form != nil {
			return m.updateForm(msg.String(), msg)
		}
		if m.confirmDel {
			return m.updateDeleteConfirm(msg.String())
		}
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.input.Width = msg.Width - 10
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case loadedMsg:
		m.refresh("")
		if msg.err != nil {
			m.status = fmt.Sprintf("load failed: %v", msg.err)
		} else {
			m.status = fmt.Sprintf("Loaded %d tasks", len(m.view.Tasks))
		}
	case mutationMsg:
		m.refresh(msg.focusID)
		var skip *session.ValidationSkip
		if errors.As(msg.err, &skip) {
			m.status = skipMessage(skip)
		} else if msg.err != nil {
			m.status = msg.err.Error()
		}
	case outcomeMsg:
		m.status = outcomeMessage(session.Outcome(msg))
	}
	return m, nil
}

func (m Model) updateUnloaded(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "ctrl+c", m.cfg.Keys.Quit:
		return m, tea.Quit
	case m.cfg.Keys.Reload, "enter":
		if m.view.Loading {
			return m, nil
		}
		m.status = "Retrying..."
		m.view.Loading = true
		return m, tea.Batch(m.spinner.Tick, m.loadCmd())
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch m.mode {
	case modeSearch:
		return m.updateSearchMode(key, msg)
	case modeAddCategory:
		return m.updateCategoryMode(key, msg)
	}
	return m.updateListMode(key)
}

func (m Model) updateListMode(key string) (tea.Model, tea.Cmd) {
	visible := m.view.Visible
	switch key {
	case "ctrl+c", m.cfg.Keys.Quit:
		return m, tea.Quit
	case m.cfg.Keys.Down, "down":
		if len(visible) == 0 {
			return m, nil
		}
		m.cursor = clampCursor(m.cursor+1, len(visible))
	case m.cfg.Keys.Up, "up":
		if m.cursor > 0 {
			m.cursor = clampCursor(m.cursor-1, len(visible))
		}
	case m.cfg.Keys.Add:
		return m.startForm(nil)
	case m.cfg.Keys.Toggle:
		t, ok := m.selected()
		if !ok {
			return m, nil
		}
		return m, m.mutate(t.ID, func(ctx context.Context) error {
			_, err := m.sess.ToggleCompletion(ctx, t.ID)
			return err
		})
	case m.cfg.Keys.Delete:
		t, ok := m.selected()
		if !ok {
			return m, nil
		}
		m.confirmDel = true
		m.pendingDel = &t
		m.status = fmt.Sprintf("Delete \"%s\"? y/n", t.Title)
	case m.cfg.Keys.Edit:
		t, ok := m.selected()
		if !ok {
			m.status = "No tasks to edit"
			return m, nil
		}
		if err := m.sess.BeginEdit(t.ID); err != nil {
			m.status = err.Error()
			return m, nil
		}
		return m.startForm(&t)
	case m.cfg.Keys.Search:
		m.mode = modeSearch
		m.input.SetValue(m.view.Criteria.SearchTerm)
		m.input.Placeholder = "Search tasks"
		m.input.Focus()
		m.status = "Search: type to filter, enter to keep, esc to clear"
	case m.cfg.Keys.QuickFilter:
		next := nextQuickFilter(m.view.Criteria.QuickFilter)
		if err := m.sess.SetQuickFilter(next); err != nil {
			m.status = err.Error()
			return m, nil
		}
		m.refresh("")
		m.status = "Filter: " + quickFilterLabel(next)
	case m.cfg.Keys.Priority:
		next := nextPriorityFilter(m.view.Criteria.Priority)
		if err := m.sess.SetPriorityFilter(next); err != nil {
			m.status = err.Error()
			return m, nil
		}
		m.refresh("")
		m.status = "Priority: " + next
	case m.cfg.Keys.Category:
		next := nextCategoryFilter(m.view.Criteria.CategoryID, m.view.Categories)
		m.sess.SetCategoryFilter(next)
		m.refresh("")
		m.status = "Category: " + m.categoryLabel(next)
	case m.cfg.Keys.AddCategory:
		m.mode = modeAddCategory
		m.input.SetValue("")
		m.input.Placeholder = "Category name"
		m.input.Focus()
		m.status = "New category: type a name and press Enter"
	case m.cfg.Keys.Reload:
		m.status = "Reloading..."
		m.view.Loading = true
		return m, tea.Batch(m.spinner.Tick, m.loadCmd())
	}
	return m, nil
}

func (m Model) updateSearchMode(key string, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key {
	case m.cfg.Keys.Cancel:
		m.sess.SetSearchTerm("")
		m.leaveInput()
		m.refresh("")
		m.status = "Search cleared"
		return m, nil
	case m.cfg.Keys.Confirm:
		m.leaveInput()
		m.status = "Search: " + m.view.Criteria.SearchTerm
		return m, nil
	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		m.sess.SetSearchTerm(m.input.Value())
		m.refresh("")
		return m, cmd
	}
}

func (m Model) updateCategoryMode(key string, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key {
	case m.cfg.Keys.Cancel:
		m.leaveInput()
		m.status = "Cancelled"
		return m, nil
	case m.cfg.Keys.Confirm:
		name := strings.TrimSpace(m.input.Value())
		m.leaveInput()
		if name == "" {
			m.status = "Category name cannot be empty"
			return m, nil
		}
		return m, m.mutate("", func(ctx context.Context) error {
			_, err := m.sess.AddCategory(ctx, name, "", "")
			return err
		})
	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
}

func (m Model) updateDeleteConfirm(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "n", "N", m.cfg.Keys.Cancel:
		m.status = "Delete cancelled"
		m.confirmDel = false
		m.pendingDel = nil
		return m, nil
	case "y", "Y":
		pending := m.pendingDel
		m.confirmDel = false
		m.pendingDel = nil
		if pending == nil {
			m.status = "Nothing to delete"
			return m, nil
		}
		id := pending.ID
		return m, m.mutate("", func(ctx context.Context) error {
			return m.sess.DeleteTask(ctx, id)
		})
	default:
		return m, nil
	}
}

func (m *Model) leaveInput() {
	m.mode = modeList
	m.input.SetValue("")
	m.input.Blur()
}

// mutate runs fn off the update loop and reports back with a mutationMsg.
func (m Model) mutate(focusID string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		err := fn(ctx)
		if err != nil {
			log.WithError(err).Debug("ui mutation returned error")
		}
		return mutationMsg{err: err, focusID: focusID}
	}
}

// refresh takes a new snapshot and keeps the cursor on focusID, or on the
// same position when focusID is empty or no longer visible.
func (m *Model) refresh(focusID string) {
	m.view = m.sess.Snapshot()
	if focusID != "" {
		for i, t := range m.view.Visible {
			if t.ID == focusID {
				m.cursor = i
				return
			}
		}
	}
	m.cursor = clampCursor(m.cursor, len(m.view.Visible))
}

func (m Model) selected() (task.Task, bool) {
	if len(m.view.Visible) == 0 {
		return task.Task{}, false
	}
	return m.view.Visible[clampCursor(m.cursor, len(m.view.Visible))], true
}

func (m Model) categoryLabel(id string) string {
	if id == task.All || id == "" {
		return "all"
	}
	if c, ok := m.view.Category(id); ok {
		return c.Name
	}
	return id
}

func nextQuickFilter(cur task.QuickFilter) task.QuickFilter {
	filters := task.QuickFilters()
	for i, q := range filters {
		if q == cur {
			return filters[wrapIndex(i+1, len(filters))]
		}
	}
	return filters[0]
}

func nextPriorityFilter(cur string) string {
	order := []string{task.All, string(task.PriorityHigh), string(task.PriorityMedium), string(task.PriorityLow)}
	for i, p := range order {
		if p == cur {
			return order[wrapIndex(i+1, len(order))]
		}
	}
	return task.All
}

func nextCategoryFilter(cur string, categories []task.Category) string {
	ids := make([]string, 0, len(categories)+1)
	ids = append(ids, task.All)
	for _, c := range categories {
		ids = append(ids, c.ID)
	}
	for i, id := range ids {
		if id == cur {
			return ids[wrapIndex(i+1, len(ids))]
		}
	}
	return task.All
}

func skipMessage(skip *session.ValidationSkip) string {
	switch skip.Field {
	case "title":
		return "Title cannot be empty"
	case "name":
		return "Name cannot be empty"
	default:
		return fmt.Sprintf("Invalid %s", skip.Field)
	}
}

func outcomeMessage(o session.Outcome) string {
	if !o.Succeeded() {
		return fmt.Sprintf("%s failed: %v", o.Op, o.Err)
	}
	switch o.Op {
	case session.OpLoad:
		return "Loaded"
	case session.OpAddTask:
		return "Added task"
	case session.OpToggleTask:
		if o.TaskCompleted {
			return "Task completed"
		}
		return "Task reopened"
	case session.OpUpdateTask:
		return "Task saved"
	case session.OpDeleteTask:
		return "Deleted task"
	case session.OpAddCategory:
		return "Added category"
	case session.OpUpdateCategory:
		return "Category saved"
	case session.OpDeleteCategory:
		return "Deleted category"
	}
	return string(o.Op)
}

func wrapIndex(idx, n int) int {
	if n <= 0 {
		return 0
	}
	idx %= n
	if idx < 0 {
		idx += n
	}
	return idx
}

func clampCursor(cur, n int) int {
	if n <= 0 {
		return 0
	}
	if cur < 0 {
		return 0
	}
	if cur >= n {
		return n - 1
	}
	return cur
}

func keyLabel(k string) string {
	if k == " " {
		return "space"
	}
	return k
}
