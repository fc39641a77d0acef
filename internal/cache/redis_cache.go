package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"possale/backend/internal/domain"
)

const (
	saleKeyPrefix    = "possale:sale:"
	versionKeyPrefix = "possale:sale-version:"
	versionKeyTTL    = 24 * time.Hour
)

type RedisSaleCache struct {
	client *redis.Client
}

func NewRedisSaleCache(addr string, password string, db int) *RedisSaleCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisSaleCache{client: client}
}

func (c *RedisSaleCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisSaleCache) Close() error {
	return c.client.Close()
}

func (c *RedisSaleCache) Get(ctx context.Context, saleID string) (*domain.Sale, bool, error) {
	val, err := c.client.Get(ctx, saleKeyPrefix+saleID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var sale domain.Sale
	if err := json.Unmarshal(val, &sale); err != nil {
		return nil, false, err
	}
	return &sale, true, nil
}

func (c *RedisSaleCache) Version(ctx context.Context, saleID string) (int64, error) {
	v, err := c.client.Get(ctx, versionKeyPrefix+saleID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// SetIfVersion writes under WATCH on the version key; an Invalidate in between aborts
// the transaction.
func (c *RedisSaleCache) SetIfVersion(ctx context.Context, sale *domain.Sale, version int64, ttl time.Duration) (bool, error) {
	if sale == nil {
		return false, nil
	}
	payload, err := json.Marshal(sale)
	if err != nil {
		return false, err
	}

	versionKey := versionKeyPrefix + sale.ID
	stored := false
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, versionKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, saleKeyPrefix+sale.ID, payload, ttl)
			return nil
		})
		if err == nil {
			stored = true
		}
		return err
	}, versionKey)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	return stored, err
}

func (c *RedisSaleCache) Invalidate(ctx context.Context, saleID string) error {
	versionKey := versionKeyPrefix + saleID
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, saleKeyPrefix+saleID)
		pipe.Incr(ctx, versionKey)
		pipe.Expire(ctx, versionKey, versionKeyTTL)
		return nil
	})
	return err
}
