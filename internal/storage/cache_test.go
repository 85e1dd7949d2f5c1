package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"taskflow/internal/task"
)

type stubBackend struct {
	tasks         []task.Task
	categories    []task.Category
	fetchTasks    int
	fetchCats     int
	createErr     error
	deleteErr     error
	fetchTasksErr error

	// afterFetchTasks runs once the snapshot has been taken, before it is
	// returned.
	afterFetchTasks func()
}

func (s *stubBackend) FetchTasks(ctx context.Context) ([]task.Task, error) {
	s.fetchTasks++
	if s.fetchTasksErr != nil {
		return nil, s.fetchTasksErr
	}
	snapshot := append([]task.Task(nil), s.tasks...)
	if hook := s.afterFetchTasks; hook != nil {
		s.afterFetchTasks = nil
		hook()
	}
	return snapshot, nil
}

func (s *stubBackend) CreateTask(ctx context.Context, t task.Task) (task.Task, error) {
	if s.createErr != nil {
		return task.Task{}, s.createErr
	}
	t.ID = "new"
	s.tasks = append(s.tasks, t)
	return t, nil
}

func (s *stubBackend) UpdateTask(ctx context.Context, id string, p task.Patch) (task.Task, error) {
	for i, t := range s.tasks {
		if t.ID == id {
			s.tasks[i] = p.Apply(t)
			return s.tasks[i], nil
		}
	}
	return task.Task{}, ErrNotFound
}

func (s *stubBackend) DeleteTask(ctx context.Context, id string) error {
	return s.deleteErr
}

func (s *stubBackend) FetchCategories(ctx context.Context) ([]task.Category, error) {
	s.fetchCats++
	return append([]task.Category(nil), s.categories...), nil
}

func (s *stubBackend) CreateCategory(ctx context.Context, c task.Category) (task.Category, error) {
	c.ID = "cat"
	s.categories = append(s.categories, c)
	return c, nil
}

func (s *stubBackend) UpdateCategory(ctx context.Context, id string, p task.CategoryPatch) (task.Category, error) {
	return task.Category{ID: id}, nil
}

func (s *stubBackend) DeleteCategory(ctx context.Context, id string) error {
	return nil
}

func newTestCache(t *testing.T, base backend) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(base, client, time.Minute, "test"), mr
}

func TestCacheFetchTasksMissThenHit(t *testing.T) {
	due := task.NewDate(2024, time.June, 15)
	base := &stubBackend{tasks: []task.Task{{ID: "t1", Title: "Write code", DueDate: &due}}}
	cache, mr := newTestCache(t, base)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		tasks, err := cache.FetchTasks(ctx)
		if err != nil {
			t.Fatalf("fetch tasks: %v", err)
		}
		if len(tasks) != 1 || tasks[0].ID != "t1" || tasks[0].DueDate == nil || !tasks[0].DueDate.Equal(due) {
			t.Fatalf("unexpected tasks: %#v", tasks)
		}
	}
	if base.fetchTasks != 1 {
		t.Fatalf("expected 1 call to backend, got %d", base.fetchTasks)
	}
	if ttl := mr.TTL("test:tasks"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}
}

func TestCacheMutationEvicts(t *testing.T) {
	base := &stubBackend{tasks: []task.Task{{ID: "t1", Title: "a"}}, categories: []task.Category{{ID: "c1"}}}
	cache, mr := newTestCache(t, base)
	ctx := context.Background()

	if _, err := cache.FetchTasks(ctx); err != nil {
		t.Fatalf("fetch tasks: %v", err)
	}
	if _, err := cache.FetchCategories(ctx); err != nil {
		t.Fatalf("fetch categories: %v", err)
	}
	if _, err := cache.CreateTask(ctx, task.Task{Title: "b"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if mr.Exists("test:tasks") || mr.Exists("test:categories") {
		t.Fatalf("expected cache keys evicted")
	}
	tasks, err := cache.FetchTasks(ctx)
	if err != nil {
		t.Fatalf("fetch tasks: %v", err)
	}
	if len(tasks) != 2 || base.fetchTasks != 2 {
		t.Fatalf("expected fresh read after eviction, got %d tasks and %d calls", len(tasks), base.fetchTasks)
	}
}

func TestCacheSkipsFillAfterConcurrentWrite(t *testing.T) {
	base := &stubBackend{tasks: []task.Task{{ID: "t1", Title: "a"}}}
	cache, mr := newTestCache(t, base)
	ctx := context.Background()

	base.afterFetchTasks = func() {
		if _, err := cache.CreateTask(ctx, task.Task{Title: "b"}); err != nil {
			t.Errorf("create: %v", err)
		}
	}
	tasks, err := cache.FetchTasks(ctx)
	if err != nil {
		t.Fatalf("fetch tasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected the pre-write snapshot, got %d tasks", len(tasks))
	}
	if mr.Exists("test:tasks") {
		t.Fatalf("stale snapshot was cached")
	}

	tasks, err = cache.FetchTasks(ctx)
	if err != nil {
		t.Fatalf("fetch tasks: %v", err)
	}
	if len(tasks) != 2 || base.fetchTasks != 2 {
		t.Fatalf("expected fresh read with the new task, got %d tasks and %d calls", len(tasks), base.fetchTasks)
	}
	if !mr.Exists("test:tasks") {
		t.Fatalf("fresh read should fill the cache")
	}
}

func TestCacheFailedMutationKeepsEntries(t *testing.T) {
	base := &stubBackend{tasks: []task.Task{{ID: "t1"}}, deleteErr: errors.New("boom")}
	cache, mr := newTestCache(t, base)
	ctx := context.Background()

	if _, err := cache.FetchTasks(ctx); err != nil {
		t.Fatalf("fetch tasks: %v", err)
	}
	if err := cache.DeleteTask(ctx, "t1"); err == nil {
		t.Fatalf("expected delete error")
	}
	if !mr.Exists("test:tasks") {
		t.Fatalf("failed mutation should not evict")
	}
}

func TestCacheCorruptEntryFallsBack(t *testing.T) {
	base := &stubBackend{tasks: []task.Task{{ID: "t1"}}}
	cache, mr := newTestCache(t, base)
	if err := mr.Set("test:tasks", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	tasks, err := cache.FetchTasks(context.Background())
	if err != nil {
		t.Fatalf("fetch tasks: %v", err)
	}
	if len(tasks) != 1 || base.fetchTasks != 1 {
		t.Fatalf("expected backend fallback, got %v after %d calls", tasks, base.fetchTasks)
	}
}

func TestCacheBackendErrorNotCached(t *testing.T) {
	base := &stubBackend{fetchTasksErr: errors.New("offline")}
	cache, mr := newTestCache(t, base)
	if _, err := cache.FetchTasks(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if mr.Exists("test:tasks") {
		t.Fatalf("error result was cached")
	}
}

func TestCacheWithoutRedisPassesThrough(t *testing.T) {
	base := &stubBackend{tasks: []task.Task{{ID: "t1"}}}
	cache := NewCache(base, nil, time.Minute, "")
	for i := 0; i < 2; i++ {
		if _, err := cache.FetchTasks(context.Background()); err != nil {
			t.Fatalf("fetch tasks: %v", err)
		}
	}
	if base.fetchTasks != 2 {
		t.Fatalf("expected every read to hit the backend, got %d", base.fetchTasks)
	}
}
