package odds

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache guarda a odd calculada por objetivo; o Postgres continua sendo a fonte da verdade
type Cache struct {
	R   *redis.Client
	TTL time.Duration
}

func NewCache(r *redis.Client, ttl time.Duration) *Cache { return &Cache{R: r, TTL: ttl} }

func keyObjective(objectiveID string) string { return "odds:objective:" + objectiveID }

// Get retorna (odd, true) em cache hit; miss não é erro
func (c *Cache) Get(ctx context.Context, objectiveID string) (int64, bool, error) {
	v, err := c.R.Get(ctx, keyObjective(objectiveID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func (c *Cache) Set(ctx context.Context, objectiveID string, odds int64) error {
	return c.R.Set(ctx, keyObjective(objectiveID), strconv.FormatInt(odds, 10), c.TTL).Err()
}
