package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskflow/internal/task"
)

type backend interface {
	FetchTasks(ctx context.Context) ([]task.Task, error)
	CreateTask(ctx context.Context, t task.Task) (task.Task, error)
	UpdateTask(ctx context.Context, id string, p task.Patch) (task.Task, error)
	DeleteTask(ctx context.Context, id string) error
	FetchCategories(ctx context.Context) ([]task.Category, error)
	CreateCategory(ctx context.Context, c task.Category) (task.Category, error)
	UpdateCategory(ctx context.Context, id string, p task.CategoryPatch) (task.Category, error)
	DeleteCategory(ctx context.Context, id string) error
}

// Cache wraps a store with Redis-backed caching for the two collection reads.
// Every successful write evicts both cached collections and bumps a
// generation counter. A read only fills the cache when the generation it saw
// before hitting the backend is still current.
type Cache struct {
	base      backend
	redis     *redis.Client
	ttl       time.Duration
	namespace string
}

func NewCache(base backend, client *redis.Client, ttl time.Duration, namespace string) *Cache {
	if base == nil {
		panic("storage.NewCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	if namespace == "" {
		namespace = "taskflow"
	}
	return &Cache{base: base, redis: client, ttl: ttl, namespace: namespace}
}

func (c *Cache) FetchTasks(ctx context.Context) ([]task.Task, error) {
	var tasks []task.Task
	if c.load(ctx, c.tasksKey(), &tasks) {
		return tasks, nil
	}
	gen, fill := c.generation(ctx)
	tasks, err := c.base.FetchTasks(ctx)
	if err != nil {
		return nil, err
	}
	if fill {
		c.store(ctx, c.tasksKey(), gen, tasks)
	}
	return tasks, nil
}

func (c *Cache) FetchCategories(ctx context.Context) ([]task.Category, error) {
	var categories []task.Category
	if c.load(ctx, c.categoriesKey(), &categories) {
		return categories, nil
	}
	gen, fill := c.generation(ctx)
	categories, err := c.base.FetchCategories(ctx)
	if err != nil {
		return nil, err
	}
	if fill {
		c.store(ctx, c.categoriesKey(), gen, categories)
	}
	return categories, nil
}

func (c *Cache) CreateTask(ctx context.Context, t task.Task) (task.Task, error) {
	created, err := c.base.CreateTask(ctx, t)
	if err != nil {
		return task.Task{}, err
	}
	c.evict(ctx)
	return created, nil
}

func (c *Cache) UpdateTask(ctx context.Context, id string, p task.Patch) (task.Task, error) {
	updated, err := c.base.UpdateTask(ctx, id, p)
	if err != nil {
		return task.Task{}, err
	}
	c.evict(ctx)
	return updated, nil
}

func (c *Cache) DeleteTask(ctx context.Context, id string) error {
	if err := c.base.DeleteTask(ctx, id); err != nil {
		return err
	}
	c.evict(ctx)
	return nil
}

func (c *Cache) CreateCategory(ctx context.Context, cat task.Category) (task.Category, error) {
	created, err := c.base.CreateCategory(ctx, cat)
	if err != nil {
		return task.Category{}, err
	}
	c.evict(ctx)
	return created, nil
}

func (c *Cache) UpdateCategory(ctx context.Context, id string, p task.CategoryPatch) (task.Category, error) {
	updated, err := c.base.UpdateCategory(ctx, id, p)
	if err != nil {
		return task.Category{}, err
	}
	c.evict(ctx)
	return updated, nil
}

func (c *Cache) DeleteCategory(ctx context.Context, id string) error {
	if err := c.base.DeleteCategory(ctx, id); err != nil {
		return err
	}
	c.evict(ctx)
	return nil
}

func (c *Cache) load(ctx context.Context, key string, dst any) bool {
	if c.redis == nil || c.ttl == 0 {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing store without failing.
			log.WithError(err).WithField("key", key).Warn("cache read failed")
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := sonic.Unmarshal(data, dst); err != nil {
		log.WithError(err).WithField("key", key).Warn("dropping corrupt cache entry")
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

var errStaleFill = errors.New("cache generation moved")

// generation reports the current write generation. fill is false when the
// cache is disabled or unreachable.
func (c *Cache) generation(ctx context.Context) (gen int64, fill bool) {
	if c.redis == nil || c.ttl == 0 {
		return 0, false
	}
	gen, err := c.redis.Get(ctx, c.genKey()).Int64()
	if err == redis.Nil {
		return 0, true
	}
	if err != nil {
		log.WithError(err).Warn("cache generation read failed")
		return 0, false
	}
	return gen, true
}

// store writes v under key unless a write has bumped the generation since
// gen was read.
func (c *Cache) store(ctx context.Context, key string, gen int64, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	err = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, c.genKey()).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		if cur != gen {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, c.ttl)
			return nil
		})
		return err
	}, c.genKey())
	switch {
	case err == nil:
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		log.WithField("key", key).Debug("skipping cache fill after concurrent write")
	default:
		log.WithError(err).WithField("key", key).Warn("cache write failed")
	}
}

func (c *Cache) evict(ctx context.Context) {
	if c.redis == nil {
		return
	}
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.genKey())
		pipe.Del(ctx, c.tasksKey(), c.categoriesKey())
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("cache eviction failed")
	}
}

func (c *Cache) tasksKey() string {
	return c.namespace + ":tasks"
}

func (c *Cache) categoriesKey() string {
	return c.namespace + ":categories"
}

func (c *Cache) genKey() string {
	return c.namespace + ":gen"
}
