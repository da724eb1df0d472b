package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker serializes processing cycles. TryLock never blocks: ok is false
// when another cycle holds the lock.
type Locker interface {
	TryLock(ctx context.Context) (unlock func(), ok bool, err error)
}

// LocalLocker serializes cycles inside one process.
type LocalLocker struct {
	mu sync.Mutex
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{}
}

func (l *LocalLocker) TryLock(context.Context) (func(), bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	return l.mu.Unlock, true, nil
}

// Only the holder's token may delete the key.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker serializes cycles across replicas sharing one Redis. While
// held, the lease is extended every refresh so a long cycle keeps it; the
// TTL only bounds how long a crashed holder blocks the others.
type RedisLocker struct {
	client  *redis.Client
	key     string
	ttl     time.Duration
	refresh time.Duration
	logger  *zap.Logger
}

func NewRedisLocker(client *redis.Client, key string, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{
		client:  client,
		key:     key,
		ttl:     ttl,
		refresh: ttl / 3,
		logger:  logger,
	}
}

func (l *RedisLocker) TryLock(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis lock %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go l.keepAlive(token, stop, stopped)

	var once sync.Once
	unlock := func() {
		once.Do(func() { l.release(token, stop, stopped) })
	}

	return unlock, true, nil
}

// keepAlive extends the lease until stop closes or the lease is lost.
func (l *RedisLocker) keepAlive(token string, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(l.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), l.refresh)
		n, err := extendScript.Run(ctx, l.client, []string{l.key}, token, l.ttl.Milliseconds()).Int()
		cancel()

		switch {
		case err != nil:
			l.logger.Warn("failed to extend cycle lock",
				zap.String("key", l.key),
				zap.Error(err),
			)
		case n == 0:
			l.logger.Error("cycle lock lost before release",
				zap.String("key", l.key),
			)
			return
		}
	}
}

func (l *RedisLocker) release(token string, stop chan<- struct{}, stopped <-chan struct{}) {
	close(stop)
	<-stopped

	releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := releaseScript.Run(releaseCtx, l.client, []string{l.key}, token).Err(); err != nil {
		l.logger.Warn("failed to release cycle lock",
			zap.String("key", l.key),
			zap.Error(err),
		)
	}
}
