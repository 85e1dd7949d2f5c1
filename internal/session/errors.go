package session

import "fmt"

// LoadError reports that one of the collection fetches failed during Load.
type LoadError struct {
	Source string // "tasks" or "categories"
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// MutationError reports a failed create, update or delete. The in-memory
// collections are unchanged when it is returned.
type MutationError struct {
	Op  Op
	ID  string
	Err error
}

func (e *MutationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// ValidationSkip is returned when a client-side guard rejected the request
// before the store was called. It is not a failure and is never notified.
type ValidationSkip struct {
	Field string
}

func (e *ValidationSkip) Error() string {
	return fmt.Sprintf("skipped: invalid %s", e.Field)
}

// NotFoundError reports an id unknown to the in-memory collection.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}
