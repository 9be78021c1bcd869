package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/evercrisp-ai/Ben-OS-sub001/domain"
)

type backend interface {
	FetchBoard(ctx context.Context, userID, boardID string) (domain.Board, error)
	SaveBoard(ctx context.Context, userID string, b domain.Board) error
	ListTasks(ctx context.Context, userID, boardID string) ([]domain.Task, error)
	GetTask(ctx context.Context, userID, taskID string) (domain.Task, error)
	PutTask(ctx context.Context, userID string, t domain.Task) error
	DeleteTask(ctx context.Context, userID, taskID string) error
}

// Cache wraps a backend with Redis-backed caching for board reads. Every
// write evicts the user's cached boards and task lists.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) FetchBoard(ctx context.Context, userID, boardID string) (domain.Board, error) {
	var b domain.Board
	if c.load(ctx, boardsCacheKey(userID), boardID, &b) {
		return b, nil
	}
	b, err := c.base.FetchBoard(ctx, userID, boardID)
	if err != nil {
		return domain.Board{}, err
	}
	c.store(ctx, boardsCacheKey(userID), boardID, b)
	return b, nil
}

func (c *Cache) ListTasks(ctx context.Context, userID, boardID string) ([]domain.Task, error) {
	var tasks []domain.Task
	if c.load(ctx, tasksCacheKey(userID), boardID, &tasks) {
		return tasks, nil
	}
	tasks, err := c.base.ListTasks(ctx, userID, boardID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, tasksCacheKey(userID), boardID, tasks)
	return tasks, nil
}

// GetTask is not cached; single-row reads go straight to the backend.
func (c *Cache) GetTask(ctx context.Context, userID, taskID string) (domain.Task, error) {
	return c.base.GetTask(ctx, userID, taskID)
}

func (c *Cache) SaveBoard(ctx context.Context, userID string, b domain.Board) error {
	defer c.evict(ctx, userID)
	return c.base.SaveBoard(ctx, userID, b)
}

func (c *Cache) PutTask(ctx context.Context, userID string, t domain.Task) error {
	defer c.evict(ctx, userID)
	return c.base.PutTask(ctx, userID, t)
}

func (c *Cache) DeleteTask(ctx context.Context, userID, taskID string) error {
	defer c.evict(ctx, userID)
	return c.base.DeleteTask(ctx, userID, taskID)
}

func (c *Cache) load(ctx context.Context, key, field string, dst any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.HGet(ctx, key, field).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.HDel(ctx, key, field).Err()
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		_ = c.redis.HDel(ctx, key, field).Err()
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, key, field string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, field, data)
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
}

func (c *Cache) evict(ctx context.Context, userID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, tasksCacheKey(userID), boardsCacheKey(userID)).Result()
}

func tasksCacheKey(userID string) string {
	return "tasks:" + userID
}

func boardsCacheKey(userID string) string {
	return "boards:" + userID
}
