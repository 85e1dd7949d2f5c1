package session

import "taskflow/internal/task"

// View is an immutable copy of the session state plus everything derived
// from it. Renderers work off a View so they never hold the session lock.
type View struct {
	Tasks           []task.Task     `json:"tasks"`
	Categories      []task.Category `json:"categories"`
	Criteria        task.Criteria   `json:"criteria"`
	Visible         []task.Task     `json:"visible"`
	Stats           task.Stats      `json:"stats"`
	Counts          task.Counts     `json:"counts"`
	CategoryCounts  map[string]int  `json:"categoryCounts"`
	FiltersActive   bool            `json:"filtersActive"`
	DefaultCategory string          `json:"defaultCategory"`
	Editing         string          `json:"editing,omitempty"`
	Loading         bool            `json:"loading"`
	Loaded          bool            `json:"loaded"`
	LoadErr         error           `json:"-"`
	Today           task.Date       `json:"today"`
}

// Snapshot copies the current state and recomputes derived values.
func (s *Session) Snapshot() View {
	today := s.today()

	s.mu.Lock()
	tasks := append([]task.Task(nil), s.tasks...)
	categories := append([]task.Category(nil), s.categories...)
	v := View{
		Criteria:        s.criteria,
		DefaultCategory: s.defaultCategory,
		Editing:         s.editing,
		Loading:         s.loading,
		Loaded:          s.loaded,
		LoadErr:         s.loadErr,
		Today:           today,
	}
	s.mu.Unlock()

	if tasks == nil {
		tasks = []task.Task{}
	}
	if categories == nil {
		categories = []task.Category{}
	}
	v.Tasks = tasks
	v.Categories = categories
	v.Visible = task.Visible(tasks, v.Criteria, today)
	v.Stats = task.CompletionStats(tasks)
	v.Counts = task.QuickFilterCounts(tasks, today)
	v.CategoryCounts = task.CategoryCounts(tasks)
	v.FiltersActive = v.Criteria.Active()
	return v
}

func (v View) DateInfo(t task.Task) task.DateInfo {
	return task.Describe(t.DueDate, v.Today)
}

func (v View) Category(id string) (task.Category, bool) {
	return task.FindCategory(v.Categories, id)
}
