package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-risk-monitor/internal/core/ports"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still carries our token, so a
// holder whose lease expired cannot drop a lease taken over by someone else.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LeaseStore implements ports.LeaseManager on SET NX PX. Leases expire on
// their own if the holder dies, so a crashed process never wedges a unit.
type LeaseStore struct {
	client goredis.UniversalClient
	prefix string
}

// NewLeaseStore creates a Redis-backed lease manager.
func NewLeaseStore(client goredis.UniversalClient, prefix string) *LeaseStore {
	return &LeaseStore{client: client, prefix: prefix}
}

// TryAcquire takes the lease if nobody holds it.
func (s *LeaseStore) TryAcquire(ctx context.Context, key string, ttl time.Duration) (ports.Lease, bool, error) {
	token := uuid.NewString()
	redisKey := s.prefix + key

	err := s.client.SetArgs(ctx, redisKey, token, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Err()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis lease acquire: %w", err)
	}
	return &lease{store: s, key: key, redisKey: redisKey, token: token}, true, nil
}

type lease struct {
	store    *LeaseStore
	key      string
	redisKey string
	token    string
}

func (l *lease) Key() string { return l.key }

func (l *lease) Held(ctx context.Context) (bool, error) {
	v, err := l.store.client.Get(ctx, l.redisKey).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis lease check: %w", err)
	}
	return v == l.token, nil
}

func (l *lease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.store.client, []string{l.redisKey}, l.token).Err(); err != nil {
		return fmt.Errorf("redis lease release: %w", err)
	}
	return nil
}
