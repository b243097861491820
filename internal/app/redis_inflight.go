package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tiffinbox/subscription-edit-service/internal/domain"
)

var releaseInFlightScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisInFlightGuard shares in-flight flags between service instances. Each
// flag expires after ttl so a crashed instance cannot block edits forever.
type RedisInFlightGuard struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisInFlightGuard(client redis.UniversalClient, prefix string, ttl time.Duration, logger *slog.Logger) *RedisInFlightGuard {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "subscription_edit:in_flight"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")
	if ttl < time.Second {
		ttl = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RedisInFlightGuard{
		client: client,
		prefix: trimmedPrefix,
		ttl:    ttl,
		logger: logger,
	}
}

func (g *RedisInFlightGuard) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := fmt.Sprintf("%s:%s", g.prefix, key)
	token := uuid.NewString()

	ok, err := g.client.SetNX(ctx, redisKey, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to set in-flight flag: %w", err)
	}
	if !ok {
		return nil, domain.ErrEditInFlight
	}

	return func() {
		// Release must run even when the request context is already cancelled.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseInFlightScript.Run(releaseCtx, g.client, []string{redisKey}, token).Err(); err != nil {
			g.logger.Warn("failed to release in-flight flag", "key", redisKey, "error", err)
		}
	}, nil
}
