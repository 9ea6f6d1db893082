package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/ticket-gateway/pkg/utils"
)

const keyPrefix = "ticket-gateway:inflight:"

// releaseScript deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisConfig describes the Redis connection parameters
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisGuard shares in-flight keys between gateway instances using SET NX PX
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Entry
}

// NewRedisGuard connects to Redis and verifies the connection
func NewRedisGuard(cfg RedisConfig) (*RedisGuard, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisGuard{client: client, ttl: ttl, logger: utils.ComponentLogger("locks")}, nil
}

// TryAcquire implements Guard
func (g *RedisGuard) TryAcquire(ctx context.Context, key string) (Release, error) {
	token := utils.GenerateID()
	ok, err := g.client.SetNX(ctx, keyPrefix+key, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrHeld
	}

	return func() {
		// The caller's context may already be done once the operation finishes
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, g.client, []string{keyPrefix + key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			g.logger.WithFields(logrus.Fields{
				"key":   key,
				"error": err,
			}).Warn("Failed to release in-flight key")
		}
	}, nil
}

// Close closes the Redis connection
func (g *RedisGuard) Close() error {
	if g == nil || g.client == nil {
		return nil
	}
	return g.client.Close()
}
