package consent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nikolayk812/checkoutflow/internal/domain"
	"github.com/nikolayk812/checkoutflow/internal/port"
	"github.com/redis/go-redis/v9"
)

type memoryCache struct {
	mu      sync.RWMutex
	entries map[domain.ConsentKey][]domain.ConsentDocument
}

func NewMemoryCache() port.ConsentCache {
	return &memoryCache{
		entries: make(map[domain.ConsentKey][]domain.ConsentDocument),
	}
}

func (c *memoryCache) Get(_ context.Context, key domain.ConsentKey) ([]domain.ConsentDocument, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	docs, ok := c.entries[key]
	return slices.Clone(docs), ok, nil
}

func (c *memoryCache) Set(_ context.Context, key domain.ConsentKey, docs []domain.ConsentDocument) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = slices.Clone(docs)
	return nil
}

func (c *memoryCache) Invalidate(_ context.Context, key domain.ConsentKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	return nil
}

type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) (port.ConsentCache, error) {
	if client == nil {
		return nil, errors.New("client is nil")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl is not positive")
	}

	return &redisCache{client: client, ttl: ttl}, nil
}

func (c *redisCache) Get(ctx context.Context, key domain.ConsentKey) ([]domain.ConsentDocument, bool, error) {
	data, err := c.client.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("client.Get: %w", err)
	}

	var docs []domain.ConsentDocument
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, false, fmt.Errorf("json.Unmarshal: %w", err)
	}

	return docs, true, nil
}

func (c *redisCache) Set(ctx context.Context, key domain.ConsentKey, docs []domain.ConsentDocument) error {
	if docs == nil {
		docs = []domain.ConsentDocument{}
	}

	data, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}

	if err := c.client.Set(ctx, key.String(), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("client.Set: %w", err)
	}

	return nil
}

func (c *redisCache) Invalidate(ctx context.Context, key domain.ConsentKey) error {
	if err := c.client.Del(ctx, key.String()).Err(); err != nil {
		return fmt.Errorf("client.Del: %w", err)
	}
	return nil
}
