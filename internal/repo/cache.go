package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BuzzLyutic/taskflow/internal/model"
)

// Cache оборачивает TaskRepository кэшем списков в Redis.
// Кэшируется только нефильтрованный список владельца; любая мутация
// задач владельца инвалидирует его запись целиком (гранулярность —
// владелец, не задача).
type Cache struct {
	TaskRepository
	redis *redis.Client
	ttl   time.Duration
}

func NewCache(base TaskRepository, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("repo.NewCache: base repository is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{
		TaskRepository: base,
		redis:          client,
		ttl:            ttl,
	}
}

func (c *Cache) ListByOwner(ctx context.Context, ownerID int64, filter model.TaskFilter) ([]model.Task, error) {
	if !filter.IsZero() {
		return c.TaskRepository.ListByOwner(ctx, ownerID, filter)
	}

	if tasks, ok := c.loadFromCache(ctx, ownerID); ok {
		return tasks, nil
	}

	tasks, err := c.TaskRepository.ListByOwner(ctx, ownerID, filter)
	if err != nil {
		return nil, err
	}

	c.store(ctx, ownerID, tasks)
	return tasks, nil
}

func (c *Cache) Create(ctx context.Context, t model.Task) (model.Task, error) {
	created, err := c.TaskRepository.Create(ctx, t)
	if err != nil {
		return created, err
	}
	c.Evict(ctx, created.UserID)
	return created, nil
}

func (c *Cache) Update(ctx context.Context, t model.Task) (model.Task, error) {
	updated, err := c.TaskRepository.Update(ctx, t)
	if err != nil {
		return updated, err
	}
	c.Evict(ctx, updated.UserID)
	return updated, nil
}

func (c *Cache) SoftDelete(ctx context.Context, id int64) (bool, error) {
	ownerID := c.ownerOf(ctx, id)
	ok, err := c.TaskRepository.SoftDelete(ctx, id)
	if err == nil && ok {
		c.Evict(ctx, ownerID)
	}
	return ok, err
}

func (c *Cache) Restore(ctx context.Context, id int64) (bool, error) {
	ownerID := c.ownerOf(ctx, id)
	ok, err := c.TaskRepository.Restore(ctx, id)
	if err == nil && ok {
		c.Evict(ctx, ownerID)
	}
	return ok, err
}

func (c *Cache) Purge(ctx context.Context, id int64) error {
	ownerID := c.ownerOf(ctx, id)
	if err := c.TaskRepository.Purge(ctx, id); err != nil {
		return err
	}
	c.Evict(ctx, ownerID)
	return nil
}

func (c *Cache) BulkSetOrder(ctx context.Context, ownerID int64, orders []model.TaskOrder) error {
	if err := c.TaskRepository.BulkSetOrder(ctx, ownerID, orders); err != nil {
		return err
	}
	c.Evict(ctx, ownerID)
	return nil
}

// Evict сбрасывает кэш списка владельца
func (c *Cache) Evict(ctx context.Context, ownerID int64) {
	if c.redis == nil || ownerID == 0 {
		return
	}
	_ = c.redis.Del(ctx, tasksCacheKey(ownerID)).Err()
}

func (c *Cache) loadFromCache(ctx context.Context, ownerID int64) ([]model.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, tasksCacheKey(ownerID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// При ошибке redis падаем в БД, не роняя запрос
			_ = c.redis.Del(ctx, tasksCacheKey(ownerID)).Err()
		}
		return nil, false
	}
	var tasks []model.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, tasksCacheKey(ownerID)).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) store(ctx context.Context, ownerID int64, tasks []model.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, tasksCacheKey(ownerID), data, c.ttl).Err()
}

func (c *Cache) ownerOf(ctx context.Context, id int64) int64 {
	t, err := c.TaskRepository.GetAny(ctx, id)
	if err != nil {
		return 0
	}
	return t.UserID
}

func tasksCacheKey(ownerID int64) string {
	return fmt.Sprintf("tasks:%d", ownerID)
}
