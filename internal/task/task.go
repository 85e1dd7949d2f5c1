package task

import (
	"fmt"
	"strings"
	"time"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// All is the criteria value that disables the category or priority filter.
const All = "all"

const (
	DefaultCategoryColor = "#8B5CF6"
	DefaultCategoryIcon  = "Folder"
)

// ParsePriority maps user input to a Priority. Empty input yields medium.
func ParsePriority(v string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(v))); p {
	case "":
		return PriorityMedium, nil
	case PriorityHigh, PriorityMedium, PriorityLow:
		return p, nil
	default:
		return "", fmt.Errorf("unknown priority %q", v)
	}
}

func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

func (p Priority) Valid() bool {
	return p.Rank() > 0
}

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Completed   bool       `json:"completed"`
	Priority    Priority   `json:"priority"`
	CategoryID  string     `json:"categoryId"`
	DueDate     *Date      `json:"dueDate"`
	Order       int        `json:"order"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt"`
}

type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
	Order int    `json:"order"`
}

// Patch carries a partial task update. Nil fields are left unchanged; the
// Clear flags set the matching nullable field to null.
type Patch struct {
	Title            *string
	Completed        *bool
	CompletedAt      *time.Time
	ClearCompletedAt bool
	Priority         *Priority
	CategoryID       *string
	DueDate          *Date
	ClearDueDate     bool
	Order            *int
}

func (p Patch) Empty() bool {
	return p.Title == nil && p.Completed == nil && p.CompletedAt == nil && !p.ClearCompletedAt &&
		p.Priority == nil && p.CategoryID == nil && p.DueDate == nil && !p.ClearDueDate && p.Order == nil
}

// Apply returns t with the patch applied. Stores use it to build the record
// they hand back after an update.
func (p Patch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.CompletedAt != nil {
		at := *p.CompletedAt
		t.CompletedAt = &at
	}
	if p.ClearCompletedAt {
		t.CompletedAt = nil
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.CategoryID != nil {
		t.CategoryID = *p.CategoryID
	}
	if p.DueDate != nil {
		d := *p.DueDate
		t.DueDate = &d
	}
	if p.ClearDueDate {
		t.DueDate = nil
	}
	if p.Order != nil {
		t.Order = *p.Order
	}
	return t
}

type CategoryPatch struct {
	Name  *string
	Color *string
	Icon  *string
	Order *int
}

func (p CategoryPatch) Empty() bool {
	return p.Name == nil && p.Color == nil && p.Icon == nil && p.Order == nil
}

func (p CategoryPatch) Apply(c Category) Category {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Color != nil {
		c.Color = *p.Color
	}
	if p.Icon != nil {
		c.Icon = *p.Icon
	}
	if p.Order != nil {
		c.Order = *p.Order
	}
	return c
}

// FindCategory resolves a task's weak category reference. A dangling or
// empty id reports false.
func FindCategory(categories []Category, id string) (Category, bool) {
	if id == "" {
		return Category{}, false
	}
	for _, c := range categories {
		if c.ID == id {
			return c, true
		}
	}
	return Category{}, false
}

func FindTask(tasks []Task, id string) (Task, int, bool) {
	for i, t := range tasks {
		if t.ID == id {
			return t, i, true
		}
	}
	return Task{}, -1, false
}
