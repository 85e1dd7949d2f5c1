package session

type Op string

const (
	OpLoad           Op = "load"
	OpAddTask        Op = "add-task"
	OpToggleTask     Op = "toggle-task"
	OpUpdateTask     Op = "update-task"
	OpDeleteTask     Op = "delete-task"
	OpAddCategory    Op = "add-category"
	OpUpdateCategory Op = "update-category"
	OpDeleteCategory Op = "delete-category"
)

// Outcome describes how a store-backed operation ended.
type Outcome struct {
	Op  Op
	ID  string
	Err error
	// TaskCompleted is set only when a toggle moved a task from open to done.
	TaskCompleted bool
}

func (o Outcome) Succeeded() bool { return o.Err == nil }

type Notifier interface {
	Notify(Outcome)
}

type NotifierFunc func(Outcome)

func (f NotifierFunc) Notify(o Outcome) { f(o) }

type nopNotifier struct{}

func (nopNotifier) Notify(Outcome) {}
