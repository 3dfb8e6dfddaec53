package businessflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// BroadcastLocker guards a campaign against concurrent broadcast runs
type BroadcastLocker interface {
	// Acquire takes the campaign lock. It returns false without error when
	// another broadcast of the same campaign already holds it.
	Acquire(ctx context.Context, campaignID uint, ttl time.Duration) (bool, error)
	Release(ctx context.Context, campaignID uint) error
}

// RedisBroadcastLocker implements BroadcastLocker with a Redis SET NX key per
// campaign. The TTL bounds lock lifetime if the process dies mid-broadcast;
// Release only deletes the key when this instance still owns it.
type RedisBroadcastLocker struct {
	rc     *redis.Client
	prefix string

	mu     sync.Mutex
	owners map[uint]string
}

// NewRedisBroadcastLocker creates a new Redis-backed broadcast locker
func NewRedisBroadcastLocker(rc *redis.Client, prefix string) BroadcastLocker {
	return &RedisBroadcastLocker{
		rc:     rc,
		prefix: prefix,
		owners: make(map[uint]string),
	}
}

func (l *RedisBroadcastLocker) key(campaignID uint) string {
	return fmt.Sprintf("%s:broadcast:lock:%d", l.prefix, campaignID)
}

// Acquire takes the campaign lock via SET NX with TTL
func (l *RedisBroadcastLocker) Acquire(ctx context.Context, campaignID uint, ttl time.Duration) (bool, error) {
	owner := uuid.NewString()
	ok, err := l.rc.SetNX(ctx, l.key(campaignID), owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire broadcast lock for campaign %d: %w", campaignID, err)
	}
	if !ok {
		return false, nil
	}

	l.mu.Lock()
	l.owners[campaignID] = owner
	l.mu.Unlock()

	return true, nil
}

// releaseScript deletes the lock key only when the stored owner matches
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Release frees the campaign lock if this instance still owns it
func (l *RedisBroadcastLocker) Release(ctx context.Context, campaignID uint) error {
	l.mu.Lock()
	owner, ok := l.owners[campaignID]
	delete(l.owners, campaignID)
	l.mu.Unlock()

	if !ok {
		return nil
	}

	if err := releaseScript.Run(ctx, l.rc, []string{l.key(campaignID)}, owner).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release broadcast lock for campaign %d: %w", campaignID, err)
	}
	return nil
}

// LocalBroadcastLocker implements BroadcastLocker in process memory, for
// single-instance deployments and tests
type LocalBroadcastLocker struct {
	mu    sync.Mutex
	locks map[uint]time.Time
}

// NewLocalBroadcastLocker creates a new in-memory broadcast locker
func NewLocalBroadcastLocker() BroadcastLocker {
	return &LocalBroadcastLocker{locks: make(map[uint]time.Time)}
}

// Acquire takes the in-memory campaign lock
func (l *LocalBroadcastLocker) Acquire(ctx context.Context, campaignID uint, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if expiry, held := l.locks[campaignID]; held && time.Now().Before(expiry) {
		return false, nil
	}
	l.locks[campaignID] = time.Now().Add(ttl)
	return true, nil
}

// Release frees the in-memory campaign lock
func (l *LocalBroadcastLocker) Release(ctx context.Context, campaignID uint) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.locks, campaignID)
	return nil
}
