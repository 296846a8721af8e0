// Package lock provides the mutual exclusion used by singleton background jobs.
// With Redis configured the lock spans replicas; otherwise it is process-local.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrNotObtained is returned when another holder owns the key
var ErrNotObtained = errors.New("lock: not obtained")

// Lease is a held lock
type Lease interface {
	Refresh(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

// Locker hands out leases without blocking
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// RedisLocker implements Locker with bsm/redislock
type RedisLocker struct {
	client *redislock.Client
	prefix string
}

// NewRedisLocker creates a locker on a shared Redis client
func NewRedisLocker(client redis.UniversalClient, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "msync:lock:"
	}
	return &RedisLocker{client: redislock.New(client), prefix: prefix}
}

// TryLock obtains the key once, without retrying
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	lk, err := l.client.Obtain(ctx, l.prefix+key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, err
	}
	return &redisLease{lock: lk}, nil
}

type redisLease struct {
	lock *redislock.Lock
}

func (l *redisLease) Refresh(ctx context.Context, ttl time.Duration) error {
	err := l.lock.Refresh(ctx, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return ErrNotObtained
	}
	return err
}

func (l *redisLease) Release(ctx context.Context) error {
	err := l.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return nil
	}
	return err
}

// LocalLocker implements Locker inside one process
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]*localLease
	clock func() time.Time
}

// NewLocalLocker creates a process-local locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]*localLease), clock: time.Now}
}

// TryLock obtains the key unless an unexpired lease holds it
func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if cur, ok := l.held[key]; ok && now.Before(cur.expiresAt) {
		return nil, ErrNotObtained
	}
	lease := &localLease{owner: l, key: key, expiresAt: now.Add(ttl)}
	l.held[key] = lease
	return lease, nil
}

type localLease struct {
	owner     *LocalLocker
	key       string
	expiresAt time.Time
}

func (l *localLease) Refresh(_ context.Context, ttl time.Duration) error {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()

	now := l.owner.clock()
	if l.owner.held[l.key] != l || !now.Before(l.expiresAt) {
		return ErrNotObtained
	}
	l.expiresAt = now.Add(ttl)
	return nil
}

func (l *localLease) Release(_ context.Context) error {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()

	if l.owner.held[l.key] == l {
		delete(l.owner.held, l.key)
	}
	return nil
}

// RunExclusive runs fn while holding key. It returns false without running fn
// when another holder owns the key. The lease is released under a detached
// context so that a cancelled job does not keep the key until the TTL.
func RunExclusive(ctx context.Context, locker Locker, key string, ttl time.Duration, fn func(ctx context.Context) error) (bool, error) {
	lease, err := locker.TryLock(ctx, key, ttl)
	if errors.Is(err, ErrNotObtained) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = lease.Release(releaseCtx)
	}()

	return true, fn(ctx)
}

var (
	_ Locker = (*RedisLocker)(nil)
	_ Locker = (*LocalLocker)(nil)
)
