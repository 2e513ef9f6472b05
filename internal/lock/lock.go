// Package lock provides leases that keep one scheduler tick running at a
// time across replicas.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lease is a held lock. Release is safe to call more than once.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker hands out leases. ok is false when another holder owns key.
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (lease Lease, ok bool, err error)
}

// releaseScript deletes the key only while it still carries our token, so
// an expired lease never removes a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLocker struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis returns a Locker backed by SET NX PX.
func NewRedis(client redis.UniversalClient, prefix string) Locker {
	return &redisLocker{client: client, prefix: prefix}
}

func (l *redisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	fullKey := l.prefix + key
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &redisLease{client: l.client, key: fullKey, token: token}, true, nil
}

type redisLease struct {
	client redis.UniversalClient
	key    string
	token  string
	once   sync.Once
	err    error
}

func (l *redisLease) Release(ctx context.Context) error {
	l.once.Do(func() {
		l.err = releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
	})
	return l.err
}

type localLocker struct {
	mu        sync.Mutex
	now       func() time.Time
	nextToken uint64
	leases    map[string]localEntry
}

type localEntry struct {
	token   uint64
	expires time.Time
}

// NewLocal returns an in-process Locker for single-replica deployments.
func NewLocal() Locker {
	return &localLocker{now: time.Now, leases: make(map[string]localEntry)}
}

func (l *localLocker) TryAcquire(_ context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if held, ok := l.leases[key]; ok && now.Before(held.expires) {
		return nil, false, nil
	}
	l.nextToken++
	entry := localEntry{token: l.nextToken, expires: now.Add(ttl)}
	l.leases[key] = entry
	return &localLease{owner: l, key: key, token: entry.token}, true, nil
}

type localLease struct {
	owner *localLocker
	key   string
	token uint64
}

func (l *localLease) Release(context.Context) error {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()
	if held, ok := l.owner.leases[l.key]; ok && held.token == l.token {
		delete(l.owner.leases, l.key)
	}
	return nil
}
