package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskflow/internal/session"
	"taskflow/internal/storage"
	"taskflow/internal/task"
)

var fixedNow = time.Date(2024, time.June, 15, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*echo.Echo, *session.Session) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	s := session.New(store, session.WithClock(func() time.Time { return fixedNow }))
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	e := echo.New()
	Register(e, s, log.New())
	return e, s
}

func do(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := sonic.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	e, _ := newTestServer(t)
	if rec := do(t, e, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}

func TestTaskRoundTrip(t *testing.T) {
	e, s := newTestServer(t)

	rec := do(t, e, http.MethodPost, "/api/tasks", `{"title":"Write report","priority":"high","dueDate":"2024-06-15"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	var created task.Task
	decodeBody(t, rec, &created)
	if created.ID == "" || created.Priority != task.PriorityHigh || created.DueDate == nil {
		t.Fatalf("unexpected task %+v", created)
	}

	rec = do(t, e, http.MethodPost, "/api/tasks/"+created.ID+"/toggle", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle: expected 200 got %d", rec.Code)
	}
	var toggled task.Task
	decodeBody(t, rec, &toggled)
	if !toggled.Completed || toggled.CompletedAt == nil {
		t.Fatalf("expected completed task, got %+v", toggled)
	}

	rec = do(t, e, http.MethodGet, "/api/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("state: expected 200 got %d", rec.Code)
	}
	var state struct {
		Tasks    []task.Task `json:"tasks"`
		Stats    task.Stats  `json:"stats"`
		DateInfo map[string]struct {
			Bucket string `json:"bucket"`
			Label  string `json:"label"`
		} `json:"dateInfo"`
	}
	decodeBody(t, rec, &state)
	if len(state.Tasks) != 1 || state.Stats.Percentage != 100 {
		t.Fatalf("unexpected state %+v", state)
	}
	if info := state.DateInfo[created.ID]; info.Label != "Today" {
		t.Fatalf("unexpected date info %+v", info)
	}

	rec = do(t, e, http.MethodDelete, "/api/tasks/"+created.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204 got %d", rec.Code)
	}
	if n := len(s.Snapshot().Tasks); n != 0 {
		t.Fatalf("expected empty collection, got %d", n)
	}
}

func TestCreateTaskSkipReturnsNoContent(t *testing.T) {
	e, s := newTestServer(t)
	rec := do(t, e, http.MethodPost, "/api/tasks", `{"title":"   "}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rec.Code)
	}
	if n := len(s.Snapshot().Tasks); n != 0 {
		t.Fatalf("skip created a task")
	}
}

func TestCreateTaskRejectsMalformedFields(t *testing.T) {
	e, s := newTestServer(t)
	for _, body := range []string{
		`{"title":"plan","priority":"urgent"}`,
		`{"title":"plan","dueDate":"next week"}`,
	} {
		rec := do(t, e, http.MethodPost, "/api/tasks", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", body, rec.Code)
		}
	}
	if n := len(s.Snapshot().Tasks); n != 0 {
		t.Fatalf("malformed request created %d tasks", n)
	}
}

func TestCreateTaskBadBody(t *testing.T) {
	e, _ := newTestServer(t)
	if rec := do(t, e, http.MethodPost, "/api/tasks", `{"title":`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if rec := do(t, e, http.MethodPost, "/api/tasks", `{"title":"x","colour":"red"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field got %d", rec.Code)
	}
}

func TestToggleUnknownTask(t *testing.T) {
	e, _ := newTestServer(t)
	if rec := do(t, e, http.MethodPost, "/api/tasks/missing/toggle", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestPatchTaskNullClearsDueDate(t *testing.T) {
	e, s := newTestServer(t)
	created, err := s.AddTask(context.Background(), session.Draft{Title: "plan", DueDate: "2024-06-20"})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	rec := do(t, e, http.MethodPatch, "/api/tasks/"+created.ID, `{"title":"plan trip","dueDate":null}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var updated task.Task
	decodeBody(t, rec, &updated)
	if updated.Title != "plan trip" || updated.DueDate != nil {
		t.Fatalf("unexpected update %+v", updated)
	}

	if rec := do(t, e, http.MethodPatch, "/api/tasks/"+created.ID, `{"title":""}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("blank title: expected 400 got %d", rec.Code)
	}
	if rec := do(t, e, http.MethodPatch, "/api/tasks/missing", `{"title":"x"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("missing task: expected 404 got %d", rec.Code)
	}
}

func TestPatchTaskCompletionStaysConsistent(t *testing.T) {
	e, s := newTestServer(t)
	created, err := s.AddTask(context.Background(), session.Draft{Title: "ship"})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if _, err := s.ToggleCompletion(context.Background(), created.ID); err != nil {
		t.Fatalf("ToggleCompletion: %v", err)
	}

	rec := do(t, e, http.MethodPatch, "/api/tasks/"+created.ID, `{"completedAt":null}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var reopened task.Task
	decodeBody(t, rec, &reopened)
	if reopened.Completed || reopened.CompletedAt != nil {
		t.Fatalf("expected reopened task, got %+v", reopened)
	}

	rec = do(t, e, http.MethodPatch, "/api/tasks/"+created.ID, `{"completedAt":"2024-06-01T08:00:00Z"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var completed task.Task
	decodeBody(t, rec, &completed)
	if !completed.Completed || completed.CompletedAt == nil {
		t.Fatalf("expected completed task, got %+v", completed)
	}
}

func TestCategoryEndpoints(t *testing.T) {
	e, s := newTestServer(t)
	rec := do(t, e, http.MethodPost, "/api/categories", `{"name":"Work"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201 got %d", rec.Code)
	}
	var cat task.Category
	decodeBody(t, rec, &cat)
	if cat.Color != task.DefaultCategoryColor || cat.Icon != task.DefaultCategoryIcon {
		t.Fatalf("unexpected category %+v", cat)
	}

	rec = do(t, e, http.MethodPatch, "/api/categories/"+cat.ID, `{"name":"Office"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: expected 200 got %d", rec.Code)
	}
	if c, _ := s.Snapshot().Category(cat.ID); c.Name != "Office" {
		t.Fatalf("category not renamed: %+v", c)
	}

	if rec := do(t, e, http.MethodDelete, "/api/categories/"+cat.ID, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204 got %d", rec.Code)
	}
	if rec := do(t, e, http.MethodDelete, "/api/categories/"+cat.ID, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404 got %d", rec.Code)
	}
}

func TestPutCriteria(t *testing.T) {
	e, s := newTestServer(t)
	ctx := context.Background()
	for _, title := range []string{"Buy milk", "Call mom"} {
		if _, err := s.AddTask(ctx, session.Draft{Title: title}); err != nil {
			t.Fatalf("AddTask: %v", err)
		}
	}

	rec := do(t, e, http.MethodPut, "/api/criteria", `{"searchTerm":"milk"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var state struct {
		Visible       []task.Task `json:"visible"`
		FiltersActive bool        `json:"filtersActive"`
	}
	decodeBody(t, rec, &state)
	if len(state.Visible) != 1 || state.Visible[0].Title != "Buy milk" || !state.FiltersActive {
		t.Fatalf("unexpected filtered state %+v", state)
	}

	if rec := do(t, e, http.MethodPut, "/api/criteria", `{"quickFilter":"someday"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

type failingStore struct {
	*storage.Store
	err error
}

func (f failingStore) FetchCategories(ctx context.Context) ([]task.Category, error) {
	return nil, f.err
}

func (f failingStore) CreateTask(ctx context.Context, t task.Task) (task.Task, error) {
	return task.Task{}, f.err
}

func TestStoreFailures(t *testing.T) {
	base, err := storage.Open(filepath.Join(t.TempDir(), "fail.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = base.Close() })
	s := session.New(failingStore{Store: base, err: errors.New("disk on fire")})
	e := echo.New()
	Register(e, s, log.New())

	if rec := do(t, e, http.MethodPost, "/api/reload", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("reload: expected 503 got %d", rec.Code)
	}
	var state struct {
		Loaded    bool   `json:"loaded"`
		LoadError string `json:"loadError"`
	}
	decodeBody(t, do(t, e, http.MethodGet, "/api/state", ""), &state)
	if state.Loaded || !strings.Contains(state.LoadError, "categories") {
		t.Fatalf("unexpected state %+v", state)
	}
	if rec := do(t, e, http.MethodPost, "/api/tasks", `{"title":"x"}`); rec.Code != http.StatusBadGateway {
		t.Fatalf("create: expected 502 got %d", rec.Code)
	}
}
