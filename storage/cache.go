package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"tessera-modules-api/domain"
)

type backend interface {
	GetModule(ctx context.Context, moduleID string) (*domain.ModuleDefinition, error)
}

// Cache wraps a Storage instance with Redis-backed caching of the module
// catalog. The catalog is read on every apply and changes rarely, so a short
// TTL removes most of the table round-trips.
type Cache struct {
	*Storage
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Storage wrapper using the provided Redis client
// and TTL. When base is a *Storage its remaining methods are promoted through
// the embedded field; any other backend serves GetModule only, and the
// promoted methods must not be called.
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

func (c *Cache) GetModule(ctx context.Context, moduleID string) (*domain.ModuleDefinition, error) {
	if mod, ok := c.loadModuleFromCache(ctx, moduleID); ok {
		return mod, nil
	}

	mod, err := c.base.GetModule(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	if mod != nil {
		c.storeModule(ctx, mod)
	}
	return mod, nil
}

func (c *Cache) loadModuleFromCache(ctx context.Context, moduleID string) (*domain.ModuleDefinition, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, moduleCacheKey(moduleID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, moduleCacheKey(moduleID)).Err()
		}
		return nil, false
	}
	var mod domain.ModuleDefinition
	if err := json.Unmarshal(data, &mod); err != nil {
		_ = c.redis.Del(ctx, moduleCacheKey(moduleID)).Err()
		return nil, false
	}
	return &mod, true
}

func (c *Cache) storeModule(ctx context.Context, mod *domain.ModuleDefinition) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(mod)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, moduleCacheKey(mod.ID), data, c.ttl).Err()
}

func moduleCacheKey(moduleID string) string {
	return "module:" + moduleID
}
