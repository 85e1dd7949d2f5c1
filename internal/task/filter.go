package task

import (
	"fmt"
	"math"
	"strings"
)

type QuickFilter string

const (
	QuickAll       QuickFilter = "all"
	QuickToday     QuickFilter = "today"
	QuickUpcoming  QuickFilter = "upcoming"
	QuickOverdue   QuickFilter = "overdue"
	QuickCompleted QuickFilter = "completed"
	QuickActive    QuickFilter = "active"
)

// QuickFilters lists the quick filters in menu order.
func QuickFilters() []QuickFilter {
	return []QuickFilter{QuickToday, QuickUpcoming, QuickOverdue, QuickCompleted, QuickActive, QuickAll}
}

func ParseQuickFilter(v string) (QuickFilter, error) {
	q := QuickFilter(strings.ToLower(strings.TrimSpace(v)))
	if q == "" {
		return QuickAll, nil
	}
	for _, known := range QuickFilters() {
		if q == known {
			return q, nil
		}
	}
	return "", fmt.Errorf("unknown quick filter %q", v)
}

type Criteria struct {
	SearchTerm  string      `json:"searchTerm"`
	CategoryID  string      `json:"categoryId"`
	Priority    string      `json:"priority"`
	QuickFilter QuickFilter `json:"quickFilter"`
}

func DefaultCriteria() Criteria {
	return Criteria{CategoryID: All, Priority: All, QuickFilter: QuickAll}
}

// Normalize fills empty criteria fields with their "all" defaults.
func (c Criteria) Normalize() Criteria {
	if c.CategoryID == "" {
		c.CategoryID = All
	}
	if c.Priority == "" {
		c.Priority = All
	}
	if c.QuickFilter == "" {
		c.QuickFilter = QuickAll
	}
	return c
}

// Active reports whether any criterion narrows the list.
func (c Criteria) Active() bool {
	c = c.Normalize()
	return c.SearchTerm != "" || c.CategoryID != All || c.Priority != All || c.QuickFilter != QuickAll
}

// Match reports whether t passes every criterion.
func (c Criteria) Match(t Task, today Date) bool {
	c = c.Normalize()
	if c.SearchTerm != "" && !strings.Contains(strings.ToLower(t.Title), strings.ToLower(c.SearchTerm)) {
		return false
	}
	if c.CategoryID != All && t.CategoryID != c.CategoryID {
		return false
	}
	if c.Priority != All && string(t.Priority) != c.Priority {
		return false
	}
	switch c.QuickFilter {
	case QuickToday:
		return dueToday(t, today)
	case QuickUpcoming:
		return dueUpcoming(t, today)
	case QuickOverdue:
		return overdue(t, today)
	case QuickCompleted:
		return t.Completed
	case QuickActive:
		return !t.Completed
	}
	return true
}

// Visible returns the tasks matching c, keeping their input order.
func Visible(all []Task, c Criteria, today Date) []Task {
	out := make([]Task, 0, len(all))
	for _, t := range all {
		if c.Match(t, today) {
			out = append(out, t)
		}
	}
	return out
}

type Stats struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Percentage int `json:"percentage"`
}

func CompletionStats(all []Task) Stats {
	s := Stats{Total: len(all)}
	for _, t := range all {
		if t.Completed {
			s.Completed++
		}
	}
	if s.Total > 0 {
		s.Percentage = int(math.Round(100 * float64(s.Completed) / float64(s.Total)))
	}
	return s
}

type Counts struct {
	Today     int `json:"today"`
	Upcoming  int `json:"upcoming"`
	Overdue   int `json:"overdue"`
	Completed int `json:"completed"`
}

// For returns the badge count for a quick filter. Active and all have no badge.
func (c Counts) For(q QuickFilter) (int, bool) {
	switch q {
	case QuickToday:
		return c.Today, true
	case QuickUpcoming:
		return c.Upcoming, true
	case QuickOverdue:
		return c.Overdue, true
	case QuickCompleted:
		return c.Completed, true
	default:
		return 0, false
	}
}

// QuickFilterCounts counts the quick filter buckets over the whole
// collection, ignoring whatever criteria the list view has applied.
func QuickFilterCounts(all []Task, today Date) Counts {
	var c Counts
	for _, t := range all {
		if dueToday(t, today) {
			c.Today++
		}
		if dueUpcoming(t, today) {
			c.Upcoming++
		}
		if overdue(t, today) {
			c.Overdue++
		}
		if t.Completed {
			c.Completed++
		}
	}
	return c
}

// CategoryCounts counts tasks per category id. Uncategorized tasks are
// counted under the empty id.
func CategoryCounts(all []Task) map[string]int {
	out := make(map[string]int)
	for _, t := range all {
		out[t.CategoryID]++
	}
	return out
}

func dueToday(t Task, today Date) bool {
	return t.DueDate != nil && t.DueDate.Equal(today)
}

func dueUpcoming(t Task, today Date) bool {
	return t.DueDate != nil && t.DueDate.After(today)
}

func overdue(t Task, today Date) bool {
	return t.DueDate != nil && t.DueDate.Before(today) && !t.Completed
}
