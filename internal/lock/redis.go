package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned when another holder owns the lock.
var ErrLocked = errors.New("lock: already held")

// releaseScript deletes the key only if it still holds our token, so an
// expired lock taken over by someone else is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker grants exclusive ownership of a named resource.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (Lease, error)
}

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

// redisAPI is the subset of *redis.Client used by RedisLocker.
type redisAPI interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// Connect initializes a Redis client from URL or host:port input.
func Connect(redisURL string) (*redis.Client, error) {
	redisURL = strings.TrimSpace(redisURL)
	if redisURL == "" {
		return nil, errors.New("lock: redis url must not be empty")
	}
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("lock: parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// RedisLocker implements Locker with SET NX PX and a token-checked release.
type RedisLocker struct {
	client redisAPI
	prefix string
	token  func() string
}

func NewRedisLocker(client redisAPI, prefix string) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("lock: redis client must not be nil")
	}
	return &RedisLocker{client: client, prefix: prefix, token: uuid.NewString}, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (Lease, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("lock: ttl must be positive, got %s", ttl)
	}
	key := l.prefix + name
	token := l.token()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock: acquire %s: %w", key, ErrLocked)
	}
	return &redisLease{client: l.client, key: key, token: token}, nil
}

type redisLease struct {
	client redisAPI
	key    string
	token  string
}

func (l *redisLease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("lock: release %s: %w", l.key, err)
	}
	if n == 0 {
		return fmt.Errorf("lock: release %s: lease expired before release", l.key)
	}
	return nil
}

// Noop hands out leases unconditionally. Used when no Redis is configured.
type Noop struct{}

func (Noop) Acquire(context.Context, string, time.Duration) (Lease, error) {
	return noopLease{}, nil
}

type noopLease struct{}

func (noopLease) Release(context.Context) error { return nil }
