package session

import (
	"context"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"taskflow/internal/task"
)

// Store is the persistence the session mirrors. Create and update return the
// stored record, which the session treats as authoritative.
type Store interface {
	FetchTasks(ctx context.Context) ([]task.Task, error)
	CreateTask(ctx context.Context, t task.Task) (task.Task, error)
	UpdateTask(ctx context.Context, id string, p task.Patch) (task.Task, error)
	DeleteTask(ctx context.Context, id string) error
	FetchCategories(ctx context.Context) ([]task.Category, error)
	CreateCategory(ctx context.Context, c task.Category) (task.Category, error)
	UpdateCategory(ctx context.Context, id string, p task.CategoryPatch) (task.Category, error)
	DeleteCategory(ctx context.Context, id string) error
}

// Draft is the raw input of the quick-add form.
type Draft struct {
	Title      string
	Priority   string
	CategoryID string
	DueDate    string
}

// Session owns the in-memory task and category collections for one user
// session. Store calls run without the lock held; results are committed
// only after the store confirms them.
type Session struct {
	store    Store
	notifier Notifier
	now      func() time.Time
	log      *log.Entry

	categoryColor string
	categoryIcon  string

	mu              sync.Mutex
	tasks           []task.Task
	categories      []task.Category
	criteria        task.Criteria
	defaultCategory string
	editing         string
	loading         bool
	loaded          bool
	loadErr         error
}

type Option func(*Session)

func WithNotifier(n Notifier) Option {
	return func(s *Session) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(l *log.Entry) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

func WithCategoryDefaults(color, icon string) Option {
	return func(s *Session) {
		if color != "" {
			s.categoryColor = color
		}
		if icon != "" {
			s.categoryIcon = icon
		}
	}
}

func WithCriteria(c task.Criteria) Option {
	return func(s *Session) {
		s.criteria = c.Normalize()
	}
}

func New(store Store, opts ...Option) *Session {
	s := &Session{
		store:         store,
		notifier:      nopNotifier{},
		now:           time.Now,
		log:           log.WithField("component", "session"),
		categoryColor: task.DefaultCategoryColor,
		categoryIcon:  task.DefaultCategoryIcon,
		criteria:      task.DefaultCriteria(),
		tasks:         []task.Task{},
		categories:    []task.Category{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load fetches tasks and categories concurrently and replaces both
// collections only if both fetches succeed.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	var tasks []task.Task
	var categories []task.Category
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := s.store.FetchTasks(gctx)
		if err != nil {
			return &LoadError{Source: "tasks", Err: err}
		}
		tasks = t
		return nil
	})
	g.Go(func() error {
		c, err := s.store.FetchCategories(gctx)
		if err != nil {
			return &LoadError{Source: "categories", Err: err}
		}
		categories = c
		return nil
	})
	err := g.Wait()

	s.mu.Lock()
	s.loading = false
	if err != nil {
		s.loaded = false
		s.loadErr = err
		s.mu.Unlock()
		s.log.WithError(err).Error("load failed")
		s.notifier.Notify(Outcome{Op: OpLoad, Err: err})
		return err
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	if categories == nil {
		categories = []task.Category{}
	}
	s.tasks = tasks
	s.categories = categories
	s.loaded = true
	s.loadErr = nil
	if len(categories) > 0 && s.defaultCategory == "" {
		s.defaultCategory = categories[0].ID
	}
	s.mu.Unlock()

	s.log.WithFields(log.Fields{"tasks": len(tasks), "categories": len(categories)}).Debug("session loaded")
	s.notifier.Notify(Outcome{Op: OpLoad})
	return nil
}

// AddTask validates the draft and creates the task. Category falls back to
// the session default, then to the first category.
func (s *Session) AddTask(ctx context.Context, d Draft) (task.Task, error) {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		return task.Task{}, &ValidationSkip{Field: "title"}
	}
	priority, err := task.ParsePriority(d.Priority)
	if err != nil {
		return task.Task{}, &ValidationSkip{Field: "priority"}
	}
	var due *task.Date
	if strings.TrimSpace(d.DueDate) != "" {
		parsed, err := task.ParseDate(d.DueDate)
		if err != nil {
			return task.Task{}, &ValidationSkip{Field: "dueDate"}
		}
		due = &parsed
	}

	s.mu.Lock()
	categoryID := d.CategoryID
	if categoryID == "" {
		categoryID = s.defaultCategory
	}
	if categoryID == "" && len(s.categories) > 0 {
		categoryID = s.categories[0].ID
	}
	draft := task.Task{
		Title:      title,
		Completed:  false,
		Priority:   priority,
		CategoryID: categoryID,
		DueDate:    due,
		Order:      len(s.tasks),
	}
	s.mu.Unlock()

	created, err := s.store.CreateTask(ctx, draft)
	if err != nil {
		return task.Task{}, s.fail(OpAddTask, "", err)
	}

	s.mu.Lock()
	s.tasks = append(s.tasks, created)
	s.mu.Unlock()

	s.log.WithField("task", created.ID).Debug("task created")
	s.notifier.Notify(Outcome{Op: OpAddTask, ID: created.ID})
	return created, nil
}

// ToggleCompletion flips the completed flag and stamps or clears completedAt.
func (s *Session) ToggleCompletion(ctx context.Context, id string) (task.Task, error) {
	s.mu.Lock()
	current, _, ok := task.FindTask(s.tasks, id)
	s.mu.Unlock()
	if !ok {
		return task.Task{}, &NotFoundError{Kind: "task", ID: id}
	}

	completed := !current.Completed
	p := task.Patch{Completed: &completed}
	if completed {
		now := s.now()
		p.CompletedAt = &now
	} else {
		p.ClearCompletedAt = true
	}

	updated, err := s.store.UpdateTask(ctx, id, p)
	if err != nil {
		return task.Task{}, s.fail(OpToggleTask, id, err)
	}
	s.replaceTask(updated)

	s.notifier.Notify(Outcome{Op: OpToggleTask, ID: id, TaskCompleted: completed})
	return updated, nil
}

// UpdateTask forwards a partial update. Completion fields are normalised
// first so that completed and completedAt never disagree.
func (s *Session) UpdateTask(ctx context.Context, id string, p task.Patch) (task.Task, error) {
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return task.Task{}, &ValidationSkip{Field: "title"}
		}
		p.Title = &title
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return task.Task{}, &ValidationSkip{Field: "priority"}
	}
	s.mu.Lock()
	current, _, known := task.FindTask(s.tasks, id)
	s.mu.Unlock()
	s.normalizeCompletion(&p, current, known)

	updated, err := s.store.UpdateTask(ctx, id, p)
	if err != nil {
		return task.Task{}, s.fail(OpUpdateTask, id, err)
	}
	s.replaceTask(updated)

	s.mu.Lock()
	if s.editing == id {
		s.editing = ""
	}
	s.mu.Unlock()

	s.notifier.Notify(Outcome{Op: OpUpdateTask, ID: id})
	return updated, nil
}

// normalizeCompletion makes Completed decide completedAt. A patch carrying
// only a completedAt change derives Completed from it. An already completed
// task keeps its original completion time.
func (s *Session) normalizeCompletion(p *task.Patch, current task.Task, known bool) {
	if p.Completed == nil {
		switch {
		case p.ClearCompletedAt:
			done := false
			p.Completed = &done
		case p.CompletedAt != nil:
			done := true
			p.Completed = &done
		default:
			return
		}
	}
	if !*p.Completed {
		p.CompletedAt = nil
		p.ClearCompletedAt = true
		return
	}
	p.ClearCompletedAt = false
	if p.CompletedAt != nil {
		return
	}
	if known && current.Completed && current.CompletedAt != nil {
		at := *current.CompletedAt
		p.CompletedAt = &at
		return
	}
	now := s.now()
	p.CompletedAt = &now
}

// DeleteTask removes the task. Remaining tasks keep their order values.
func (s *Session) DeleteTask(ctx context.Context, id string) error {
	if err := s.store.DeleteTask(ctx, id); err != nil {
		return s.fail(OpDeleteTask, id, err)
	}

	s.mu.Lock()
	kept := s.tasks[:0:0]
	for _, t := range s.tasks {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	s.tasks = kept
	if s.editing == id {
		s.editing = ""
	}
	s.mu.Unlock()

	s.notifier.Notify(Outcome{Op: OpDeleteTask, ID: id})
	return nil
}

func (s *Session) AddCategory(ctx context.Context, name, color, icon string) (task.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return task.Category{}, &ValidationSkip{Field: "name"}
	}
	if color == "" {
		color = s.categoryColor
	}
	if icon == "" {
		icon = s.categoryIcon
	}

	s.mu.Lock()
	draft := task.Category{Name: name, Color: color, Icon: icon, Order: len(s.categories)}
	s.mu.Unlock()

	created, err := s.store.CreateCategory(ctx, draft)
	if err != nil {
		return task.Category{}, s.fail(OpAddCategory, "", err)
	}

	s.mu.Lock()
	s.categories = append(s.categories, created)
	if s.defaultCategory == "" {
		s.defaultCategory = created.ID
	}
	s.mu.Unlock()

	s.notifier.Notify(Outcome{Op: OpAddCategory, ID: created.ID})
	return created, nil
}

func (s *Session) UpdateCategory(ctx context.Context, id string, p task.CategoryPatch) (task.Category, error) {
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return task.Category{}, &ValidationSkip{Field: "name"}
		}
		p.Name = &name
	}

	updated, err := s.store.UpdateCategory(ctx, id, p)
	if err != nil {
		return task.Category{}, s.fail(OpUpdateCategory, id, err)
	}

	s.mu.Lock()
	for i, c := range s.categories {
		if c.ID == id {
			s.categories[i] = updated
			break
		}
	}
	s.mu.Unlock()

	s.notifier.Notify(Outcome{Op: OpUpdateCategory, ID: id})
	return updated, nil
}

// DeleteCategory removes a category. Tasks that reference it keep the id
// and render as uncategorized.
func (s *Session) DeleteCategory(ctx context.Context, id string) error {
	if err := s.store.DeleteCategory(ctx, id); err != nil {
		return s.fail(OpDeleteCategory, id, err)
	}

	s.mu.Lock()
	kept := s.categories[:0:0]
	for _, c := range s.categories {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	s.categories = kept
	if s.defaultCategory == id {
		s.defaultCategory = ""
		if len(kept) > 0 {
			s.defaultCategory = kept[0].ID
		}
	}
	if s.criteria.CategoryID == id {
		s.criteria.CategoryID = task.All
	}
	s.mu.Unlock()

	s.notifier.Notify(Outcome{Op: OpDeleteCategory, ID: id})
	return nil
}

func (s *Session) SetSearchTerm(term string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.criteria.SearchTerm = term
}

func (s *Session) SetCategoryFilter(id string) {
	if id == "" {
		id = task.All
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.criteria.CategoryID = id
}

func (s *Session) SetPriorityFilter(p string) error {
	if p == "" {
		p = task.All
	}
	if p != task.All && !task.Priority(p).Valid() {
		return &ValidationSkip{Field: "priority"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.criteria.Priority = p
	return nil
}

func (s *Session) SetQuickFilter(q task.QuickFilter) error {
	parsed, err := task.ParseQuickFilter(string(q))
	if err != nil {
		return &ValidationSkip{Field: "quickFilter"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.criteria.QuickFilter = parsed
	return nil
}

// SetCriteria replaces every criterion at once.
func (s *Session) SetCriteria(c task.Criteria) error {
	c = c.Normalize()
	if c.Priority != task.All && !task.Priority(c.Priority).Valid() {
		return &ValidationSkip{Field: "priority"}
	}
	q, err := task.ParseQuickFilter(string(c.QuickFilter))
	if err != nil {
		return &ValidationSkip{Field: "quickFilter"}
	}
	c.QuickFilter = q
	s.mu.Lock()
	defer s.mu.Unlock()
	s.criteria = c
	return nil
}

func (s *Session) Criteria() task.Criteria {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.criteria
}

// SetDefaultCategory picks the category new tasks fall back to.
func (s *Session) SetDefaultCategory(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" {
		if _, ok := task.FindCategory(s.categories, id); !ok {
			return &NotFoundError{Kind: "category", ID: id}
		}
	}
	s.defaultCategory = id
	return nil
}

// BeginEdit marks a task as being edited. UpdateTask clears the mark.
func (s *Session) BeginEdit(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, _, ok := task.FindTask(s.tasks, id); !ok {
		return &NotFoundError{Kind: "task", ID: id}
	}
	s.editing = id
	return nil
}

func (s *Session) CancelEdit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editing = ""
}

// DateInfo returns the due date badge for t relative to the session clock.
func (s *Session) DateInfo(t task.Task) task.DateInfo {
	return task.Describe(t.DueDate, s.today())
}

func (s *Session) today() task.Date {
	return task.DateOf(s.now())
}

func (s *Session) replaceTask(updated task.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// A task deleted while the update was in flight stays deleted.
	if _, i, ok := task.FindTask(s.tasks, updated.ID); ok {
		s.tasks[i] = updated
	}
}

func (s *Session) fail(op Op, id string, err error) error {
	merr := &MutationError{Op: op, ID: id, Err: err}
	s.log.WithFields(log.Fields{"op": op, "id": id}).WithError(err).Error("store call failed")
	s.notifier.Notify(Outcome{Op: op, ID: id, Err: merr})
	return merr
}
