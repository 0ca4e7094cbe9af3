package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"oraculo/oraculo/utils/logging"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	lockKeyPrefix = "oraculo:lock:"
	genKeyPrefix  = "oraculo:gen:"
)

// releaseScript deletes the lock only if we still hold it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the lock only if we still hold it.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisCoordinator extends the local lock across replicas sharing one Redis.
type RedisCoordinator struct {
	client     *redis.Client
	local      *keyedLock
	lockTTL    time.Duration
	retryDelay time.Duration
}

// NewRedisClient parses url and checks the connection.
func NewRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func NewRedisCoordinator(client *redis.Client, lockTTL time.Duration) *RedisCoordinator {
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	return &RedisCoordinator{
		client:     client,
		local:      newKeyedLock(),
		lockTTL:    lockTTL,
		retryDelay: 50 * time.Millisecond,
	}
}

func (c *RedisCoordinator) Acquire(ctx context.Context, sessionID string) (func(), error) {
	releaseLocal, err := c.local.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	key := lockKeyPrefix + sessionID
	token := uuid.NewString()

	for {
		ok, err := c.client.SetNX(ctx, key, token, c.lockTTL).Result()
		if err != nil {
			releaseLocal()
			return nil, fmt.Errorf("redis lock %s: %w", sessionID, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			releaseLocal()
			return nil, ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go c.keepAlive(sessionID, key, token, stop, done)

	return func() {
		close(stop)
		<-done
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, c.client, []string{key}, token).Err(); err != nil {
			logging.ErrorLogger.Error("redis lock release failed", zap.String("session_id", sessionID), zap.Error(err))
		}
		releaseLocal()
	}, nil
}

// keepAlive renews the lock every third of its TTL until stop is closed, so
// a long exchange never outlives it.
func (c *RedisCoordinator) keepAlive(sessionID, key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.lockTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.lockTTL/3)
			held, err := refreshScript.Run(ctx, c.client, []string{key}, token, c.lockTTL.Milliseconds()).Int()
			cancel()
			if err != nil {
				logging.ErrorLogger.Error("redis lock refresh failed", zap.String("session_id", sessionID), zap.Error(err))
				continue
			}
			if held == 0 {
				logging.ErrorLogger.Error("redis lock lost", zap.String("session_id", sessionID))
				return
			}
		}
	}
}

func (c *RedisCoordinator) Generation(ctx context.Context, sessionID string) (int64, error) {
	gen, err := c.client.Get(ctx, genKeyPrefix+sessionID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *RedisCoordinator) Advance(ctx context.Context, sessionID string) (int64, error) {
	return c.client.Incr(ctx, genKeyPrefix+sessionID).Result()
}
