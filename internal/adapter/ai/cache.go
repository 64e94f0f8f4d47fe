package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

// responseCache wraps a provider client with a Redis read-through cache.
// Identical prompts against the same provider/model reuse the stored
// completion instead of spending tokens again.
type responseCache struct {
	base domain.ProviderClient
	rdb  *redis.Client
	// name discriminates cache entries between providers and models sharing
	// one Redis instance, e.g. "openai:gpt-4o-mini".
	name string
	ttl  time.Duration
}

// NewResponseCache returns base wrapped with caching, or base unchanged when
// no Redis client is configured or the TTL is non-positive.
func NewResponseCache(base domain.ProviderClient, rdb *redis.Client, name string, ttl time.Duration) domain.ProviderClient {
	if rdb == nil || ttl <= 0 {
		return base
	}
	return &responseCache{base: base, rdb: rdb, name: name, ttl: ttl}
}

func (c *responseCache) Call(ctx context.Context, prompt domain.ChatPrompt) (string, error) {
	key := c.keyFor(prompt)

	cached, err := c.rdb.Get(ctx, key).Result()
	if err == nil {
		observability.LoggerFromContext(ctx).Debug("ai cache hit", slog.String("name", c.name))
		return cached, nil
	}
	if err != redis.Nil {
		// Cache trouble must not fail the call.
		observability.LoggerFromContext(ctx).Debug("ai cache read failed",
			slog.String("name", c.name), slog.Any("error", err))
	}

	out, err := c.base.Call(ctx, prompt)
	if err != nil {
		return "", err
	}
	if err := c.rdb.Set(ctx, key, out, c.ttl).Err(); err != nil {
		observability.LoggerFromContext(ctx).Debug("ai cache write failed",
			slog.String("name", c.name), slog.Any("error", err))
	}
	return out, nil
}

func (c *responseCache) keyFor(prompt domain.ChatPrompt) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%d", c.name, prompt.System, prompt.User, prompt.MaxTokens)
	return "ai:response:" + hex.EncodeToString(h.Sum(nil))
}
