package directory

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"ammScope/internal/model"
)

// RedisCache shares resolved pools between indexer and reader processes.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache uses keys "<prefix>pool:<address>". ttl <= 0 keeps entries forever.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) key(address string) string {
	return c.prefix + "pool:" + address
}

func (c *RedisCache) GetPool(ctx context.Context, address string) (*model.Pool, error) {
	data, err := c.client.Get(ctx, c.key(address)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var pool model.Pool
	if err := json.Unmarshal(data, &pool); err != nil {
		return nil, err
	}
	return &pool, nil
}

func (c *RedisCache) SetPool(ctx context.Context, pool model.Pool) error {
	data, err := json.Marshal(pool)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(pool.Address), data, c.ttl).Err()
}
