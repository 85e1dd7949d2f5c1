package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"taskflow/internal/task"
)

// ErrNotFound is returned when an update or delete names a missing record.
var ErrNotFound = errors.New("record not found")

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func Open(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, errors.New("db path is empty")
	}
	if !strings.HasPrefix(dbPath, "file:") {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, err
		}
	}
	dsn := sqliteDSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	completed INTEGER NOT NULL DEFAULT 0,
	priority TEXT NOT NULL DEFAULT 'medium',
	category_id TEXT NOT NULL DEFAULT '',
	due_date TEXT DEFAULT NULL,
	sort_order INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS categories (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	color TEXT NOT NULL DEFAULT '',
	icon TEXT NOT NULL DEFAULT '',
	sort_order INTEGER NOT NULL DEFAULT 0
);`
	if _, err := s.db.Exec(ddl); err != nil {
		return err
	}
	return s.ensureColumns("tasks", map[string]string{
		"completed_at": "ALTER TABLE tasks ADD COLUMN completed_at TEXT DEFAULT NULL;",
	})
}

// ensureColumns adds columns introduced after a table was first created.
func (s *Store) ensureColumns(table string, required map[string]string) error {
	existing := map[string]struct{}{}
	rows, err := s.db.Query(`PRAGMA table_info(` + table + `);`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return err
		}
		existing[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for col, alter := range required {
		if _, ok := existing[col]; ok {
			continue
		}
		if _, err := s.db.Exec(alter); err != nil {
			return err
		}
	}
	return nil
}

const taskColumns = `id, title, completed, priority, category_id, due_date, sort_order, created_at, completed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (task.Task, error) {
	var t task.Task
	var completed int
	var priority, createdStr string
	var dueStr, completedStr sql.NullString

	if err := row.Scan(&t.ID, &t.Title, &completed, &priority, &t.CategoryID, &dueStr, &t.Order, &createdStr, &completedStr); err != nil {
		return task.Task{}, err
	}
	t.Completed = completed == 1
	t.Priority = task.Priority(priority)
	if dueStr.Valid && dueStr.String != "" {
		if d, err := task.ParseDate(dueStr.String); err == nil {
			t.DueDate = &d
		}
	}
	if created, err := time.Parse(time.RFC3339Nano, createdStr); err == nil {
		t.CreatedAt = created
	}
	if completedStr.Valid {
		if at, err := time.Parse(time.RFC3339Nano, completedStr.String); err == nil {
			t.CompletedAt = &at
		}
	}
	return t, nil
}

func (s *Store) FetchTasks(ctx context.Context) ([]task.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY sort_order, rowid;`)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []task.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *Store) getTask(ctx context.Context, q queryer, id string) (task.Task, error) {
	t, err := scanTask(q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?;`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return task.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return t, err
}

// CreateTask inserts t and returns the stored record with its assigned id
// and creation time.
func (s *Store) CreateTask(ctx context.Context, t task.Task) (task.Task, error) {
	t.ID = uuid.NewString()
	t.CreatedAt = s.now().UTC()
	if t.Priority == "" {
		t.Priority = task.PriorityMedium
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, title, completed, priority, category_id, due_date, sort_order, created_at, completed_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		t.ID, t.Title, boolToInt(t.Completed), string(t.Priority), t.CategoryID, dateValue(t.DueDate), t.Order,
		t.CreatedAt.Format(time.RFC3339Nano), timeValue(t.CompletedAt))
	if err != nil {
		return task.Task{}, fmt.Errorf("insert task: %w", err)
	}
	return t, nil
}

// UpdateTask applies the set fields of p and returns the full updated record.
func (s *Store) UpdateTask(ctx context.Context, id string, p task.Patch) (task.Task, error) {
	sets := make([]string, 0, 7)
	args := make([]any, 0, 8)
	if p.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *p.Title)
	}
	if p.Completed != nil {
		sets = append(sets, "completed = ?")
		args = append(args, boolToInt(*p.Completed))
	}
	if p.ClearCompletedAt {
		sets = append(sets, "completed_at = NULL")
	} else if p.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, timeValue(p.CompletedAt))
	}
	if p.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, string(*p.Priority))
	}
	if p.CategoryID != nil {
		sets = append(sets, "category_id = ?")
		args = append(args, *p.CategoryID)
	}
	if p.ClearDueDate {
		sets = append(sets, "due_date = NULL")
	} else if p.DueDate != nil {
		sets = append(sets, "due_date = ?")
		args = append(args, dateValue(p.DueDate))
	}
	if p.Order != nil {
		sets = append(sets, "sort_order = ?")
		args = append(args, *p.Order)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return task.Task{}, err
	}
	defer tx.Rollback()

	if len(sets) > 0 {
		args = append(args, id)
		res, err := tx.ExecContext(ctx, `UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id = ?;`, args...)
		if err != nil {
			return task.Task{}, fmt.Errorf("update task %s: %w", id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return task.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
	}
	t, err := s.getTask(ctx, tx, id)
	if err != nil {
		return task.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return task.Task{}, err
	}
	return t, nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

const categoryColumns = `id, name, color, icon, sort_order`

func scanCategory(row scanner) (task.Category, error) {
	var c task.Category
	err := row.Scan(&c.ID, &c.Name, &c.Color, &c.Icon, &c.Order)
	return c, err
}

func (s *Store) FetchCategories(ctx context.Context) ([]task.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY sort_order, rowid;`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	categories := []task.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) CreateCategory(ctx context.Context, c task.Category) (task.Category, error) {
	c.ID = uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (id, name, color, icon, sort_order) VALUES (?, ?, ?, ?, ?);`,
		c.ID, c.Name, c.Color, c.Icon, c.Order)
	if err != nil {
		return task.Category{}, fmt.Errorf("insert category: %w", err)
	}
	return c, nil
}

func (s *Store) UpdateCategory(ctx context.Context, id string, p task.CategoryPatch) (task.Category, error) {
	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)
	if p.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *p.Name)
	}
	if p.Color != nil {
		sets = append(sets, "color = ?")
		args = append(args, *p.Color)
	}
	if p.Icon != nil {
		sets = append(sets, "icon = ?")
		args = append(args, *p.Icon)
	}
	if p.Order != nil {
		sets = append(sets, "sort_order = ?")
		args = append(args, *p.Order)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return task.Category{}, err
	}
	defer tx.Rollback()

	if len(sets) > 0 {
		args = append(args, id)
		res, err := tx.ExecContext(ctx, `UPDATE categories SET `+strings.Join(sets, ", ")+` WHERE id = ?;`, args...)
		if err != nil {
			return task.Category{}, fmt.Errorf("update category %s: %w", id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return task.Category{}, fmt.Errorf("category %s: %w", id, ErrNotFound)
		}
	}
	c, err := scanCategory(tx.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?;`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return task.Category{}, fmt.Errorf("category %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return task.Category{}, err
	}
	if err := tx.Commit(); err != nil {
		return task.Category{}, err
	}
	return c, nil
}

// DeleteCategory removes the category only. Tasks keep their category id.
func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("delete category %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("category %s: %w", id, ErrNotFound)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func dateValue(d *task.Date) sql.NullString {
	if d == nil || d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func timeValue(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func sqliteDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	abs, err := filepath.Abs(path)
	if err == nil {
		path = abs
	}
	u := url.URL{
		Scheme: "file",
		Path:   path,
	}
	q := u.Query()
	q.Set("mode", "rwc")
	q.Set("_pragma", "busy_timeout(5000)")
	u.RawQuery = q.Encode()
	return u.String()
}
