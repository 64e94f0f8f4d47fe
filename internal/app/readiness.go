package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Pinger is the minimal interface of anything capable of a context Ping,
// which covers both the pgx pool and the franz-go client.
type Pinger interface{ Ping(ctx context.Context) error }

// RedisPingResult is the minimal return type of a Redis client's Ping.
type RedisPingResult interface{ Err() error }

// RedisClient is the minimal interface of a Redis client needed for
// readiness.
type RedisClient interface{ Ping(ctx context.Context) RedisPingResult }

// GoRedis adapts a go-redis client to RedisClient; the concrete Ping return
// type cannot satisfy the interface directly.
type GoRedis struct{ C *redis.Client }

// Ping delegates to the underlying client.
func (g GoRedis) Ping(ctx context.Context) RedisPingResult { return g.C.Ping(ctx) }

// BuildReadinessChecks returns the API server's readiness checks: db, redis
// and kafka. Redis is optional; a nil client reports not configured only if
// a check is still wired, so callers pass nil for the whole check instead
// when the cache is disabled.
func BuildReadinessChecks(pool Pinger, rdb RedisClient, kafka Pinger) (
	func(ctx context.Context) error,
	func(ctx context.Context) error,
	func(ctx context.Context) error,
) {
	dbCheck := func(ctx context.Context) error {
		if pool == nil {
			return fmt.Errorf("db not configured")
		}
		return pool.Ping(ctx)
	}
	redisCheck := func(ctx context.Context) error {
		if rdb == nil {
			return fmt.Errorf("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}
	kafkaCheck := func(ctx context.Context) error {
		if kafka == nil {
			return fmt.Errorf("kafka not configured")
		}
		return kafka.Ping(ctx)
	}
	return dbCheck, redisCheck, kafkaCheck
}
