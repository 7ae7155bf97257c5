package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"fieldboard-api/domain"
)

type backend interface {
	FetchBoard(ctx context.Context, tenantID string) (domain.BoardPayload, error)
	CreateColumn(ctx context.Context, tenantID, title string) (domain.Column, error)
	RenameColumn(ctx context.Context, tenantID, columnID, title string) error
	ReorderColumns(ctx context.Context, tenantID string, order []string) error
	DeleteColumn(ctx context.Context, tenantID, columnID string) ([]string, error)
	CreateTask(ctx context.Context, tenantID, columnID string, t domain.Task) (domain.Task, error)
	UpdateTask(ctx context.Context, tenantID string, t domain.Task) error
	MoveTask(ctx context.Context, tenantID, taskID, from, to string, pos int) error
	DeleteTask(ctx context.Context, tenantID, taskID string) error
	RescheduleTask(ctx context.Context, tenantID, taskID, start, due string) error
}

// Cache wraps a Storage instance with Redis-backed caching of the per-tenant
// board payload. Every mutation evicts the tenant's entry so the next read
// rebuilds it from table storage.
type Cache struct {
	*Storage
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Storage wrapper using the provided Redis client
// and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}

	c := &Cache{
		base:  base,
		redis: client,
		ttl:   ttl,
	}
	if s, ok := base.(*Storage); ok {
		c.Storage = s
	}
	return c
}

func (c *Cache) FetchBoard(ctx context.Context, tenantID string) (domain.BoardPayload, error) {
	if payload, ok := c.loadFromCache(ctx, tenantID); ok {
		return payload, nil
	}

	payload, err := c.base.FetchBoard(ctx, tenantID)
	if err != nil {
		return domain.BoardPayload{}, err
	}

	c.store(ctx, tenantID, payload)
	return payload, nil
}

func (c *Cache) CreateColumn(ctx context.Context, tenantID, title string) (domain.Column, error) {
	col, err := c.base.CreateColumn(ctx, tenantID, title)
	if err != nil {
		return domain.Column{}, err
	}
	c.evict(ctx, tenantID)
	return col, nil
}

func (c *Cache) RenameColumn(ctx context.Context, tenantID, columnID, title string) error {
	if err := c.base.RenameColumn(ctx, tenantID, columnID, title); err != nil {
		return err
	}
	c.evict(ctx, tenantID)
	return nil
}

func (c *Cache) ReorderColumns(ctx context.Context, tenantID string, order []string) error {
	if err := c.base.ReorderColumns(ctx, tenantID, order); err != nil {
		return err
	}
	c.evict(ctx, tenantID)
	return nil
}

func (c *Cache) DeleteColumn(ctx context.Context, tenantID, columnID string) ([]string, error) {
	cascaded, err := c.base.DeleteColumn(ctx, tenantID, columnID)
	if err != nil {
		return nil, err
	}
	c.evict(ctx, tenantID)
	return cascaded, nil
}

func (c *Cache) CreateTask(ctx context.Context, tenantID, columnID string, t domain.Task) (domain.Task, error) {
	task, err := c.base.CreateTask(ctx, tenantID, columnID, t)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, tenantID)
	return task, nil
}

func (c *Cache) UpdateTask(ctx context.Context, tenantID string, t domain.Task) error {
	if err := c.base.UpdateTask(ctx, tenantID, t); err != nil {
		return err
	}
	c.evict(ctx, tenantID)
	return nil
}

func (c *Cache) MoveTask(ctx context.Context, tenantID, taskID, from, to string, pos int) error {
	if err := c.base.MoveTask(ctx, tenantID, taskID, from, to, pos); err != nil {
		return err
	}
	c.evict(ctx, tenantID)
	return nil
}

func (c *Cache) DeleteTask(ctx context.Context, tenantID, taskID string) error {
	if err := c.base.DeleteTask(ctx, tenantID, taskID); err != nil {
		return err
	}
	c.evict(ctx, tenantID)
	return nil
}

func (c *Cache) RescheduleTask(ctx context.Context, tenantID, taskID, start, due string) error {
	if err := c.base.RescheduleTask(ctx, tenantID, taskID, start, due); err != nil {
		return err
	}
	c.evict(ctx, tenantID)
	return nil
}

func (c *Cache) loadFromCache(ctx context.Context, tenantID string) (domain.BoardPayload, bool) {
	if c.redis == nil {
		return domain.BoardPayload{}, false
	}
	data, err := c.redis.Get(ctx, boardCacheKey(tenantID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, boardCacheKey(tenantID)).Err()
		}
		return domain.BoardPayload{}, false
	}
	var payload domain.BoardPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		_ = c.redis.Del(ctx, boardCacheKey(tenantID)).Err()
		return domain.BoardPayload{}, false
	}
	return payload, true
}

func (c *Cache) store(ctx context.Context, tenantID string, payload domain.BoardPayload) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, boardCacheKey(tenantID), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, tenantID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, boardCacheKey(tenantID)).Result()
}

func boardCacheKey(tenantID string) string {
	return "board:" + tenantID
}
