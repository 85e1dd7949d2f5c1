package api

import (
	"time"

	"github.com/bytedance/sonic"

	"taskflow/internal/session"
	"taskflow/internal/task"
)

// optional distinguishes an absent JSON field from an explicit null.
type optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

func (o *optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Null = true
		return nil
	}
	return sonic.Unmarshal(b, &o.Value)
}

type createTaskRequest struct {
	Title      string `json:"title"`
	Priority   string `json:"priority"`
	CategoryID string `json:"categoryId"`
	DueDate    string `json:"dueDate"`
}

func (r createTaskRequest) draft() session.Draft {
	return session.Draft{Title: r.Title, Priority: r.Priority, CategoryID: r.CategoryID, DueDate: r.DueDate}
}

type patchTaskRequest struct {
	Title       *string             `json:"title"`
	Completed   *bool               `json:"completed"`
	Priority    *string             `json:"priority"`
	Order       *int                `json:"order"`
	CategoryID  optional[string]    `json:"categoryId"`
	DueDate     optional[task.Date] `json:"dueDate"`
	CompletedAt optional[time.Time] `json:"completedAt"`
}

func (r patchTaskRequest) patch() task.Patch {
	p := task.Patch{Title: r.Title, Completed: r.Completed, Order: r.Order}
	if r.Priority != nil {
		pr := task.Priority(*r.Priority)
		p.Priority = &pr
	}
	if r.CategoryID.Set {
		id := r.CategoryID.Value
		p.CategoryID = &id
	}
	if r.DueDate.Set {
		if r.DueDate.Null || r.DueDate.Value.IsZero() {
			p.ClearDueDate = true
		} else {
			d := r.DueDate.Value
			p.DueDate = &d
		}
	}
	if r.CompletedAt.Set {
		if r.CompletedAt.Null {
			p.ClearCompletedAt = true
		} else {
			at := r.CompletedAt.Value
			p.CompletedAt = &at
		}
	}
	return p
}

type categoryRequest struct {
	Name  *string `json:"name"`
	Color *string `json:"color"`
	Icon  *string `json:"icon"`
	Order *int    `json:"order"`
}

func (r categoryRequest) patch() task.CategoryPatch {
	return task.CategoryPatch{Name: r.Name, Color: r.Color, Icon: r.Icon, Order: r.Order}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type stateResponse struct {
	session.View
	DateInfo  map[string]task.DateInfo `json:"dateInfo"`
	LoadError string                   `json:"loadError,omitempty"`
}

func newStateResponse(v session.View) stateResponse {
	resp := stateResponse{View: v, DateInfo: make(map[string]task.DateInfo, len(v.Visible))}
	for _, t := range v.Visible {
		resp.DateInfo[t.ID] = v.DateInfo(t)
	}
	if v.LoadErr != nil {
		resp.LoadError = v.LoadErr.Error()
	}
	return resp
}
