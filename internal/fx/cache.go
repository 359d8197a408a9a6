package fx

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const cacheKeyPrefix = "fx:"

// CacheKey is the Redis key holding the rate for a pair.
func CacheKey(from, to string) string {
	return cacheKeyPrefix + NormalizeCurrency(from) + ":" + NormalizeCurrency(to)
}

// CachedLookup reads through Redis before asking Next. Redis failures fall back
// to Next; only hits are cached.
type CachedLookup struct {
	Next Lookup
	Rdb  *redis.Client
	TTL  time.Duration
}

func (c *CachedLookup) WithTx(tx *gorm.DB) Lookup {
	return &CachedLookup{Next: Bind(c.Next, tx), Rdb: c.Rdb, TTL: c.TTL}
}

func (c *CachedLookup) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	key := CacheKey(from, to)
	if c.Rdb != nil {
		cached, err := c.Rdb.Get(ctx, key).Result()
		switch {
		case err == nil:
			if rate, perr := decimal.NewFromString(cached); perr == nil {
				return rate, nil
			}
			log.Warn().Str("key", key).Msg("discarding unparsable cached fx rate")
		case !errors.Is(err, redis.Nil):
			log.Warn().Err(err).Str("key", key).Msg("fx cache read failed")
		}
	}

	rate, err := c.Next.Rate(ctx, from, to)
	if err != nil {
		return rate, err
	}
	if c.Rdb != nil {
		if err := c.Rdb.Set(ctx, key, rate.String(), c.TTL).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("fx cache write failed")
		}
	}
	return rate, nil
}

// Invalidate drops the cached rate for a pair.
func (c *CachedLookup) Invalidate(ctx context.Context, from, to string) error {
	if c.Rdb == nil {
		return nil
	}
	return c.Rdb.Del(ctx, CacheKey(from, to)).Err()
}
