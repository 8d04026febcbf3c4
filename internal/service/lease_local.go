package service

import (
	"context"
	"sync"
	"time"

	"wallet-risk-monitor/internal/core/ports"

	"github.com/google/uuid"
)

// LocalLeaseManager implements ports.LeaseManager inside one process. It
// gives the same expiry semantics as the Redis store so single-node
// deployments behave identically.
type LocalLeaseManager struct {
	mu     sync.Mutex
	leases map[string]localEntry
	now    func() time.Time
}

type localEntry struct {
	token   string
	expires time.Time
}

// NewLocalLeaseManager creates a new LocalLeaseManager.
func NewLocalLeaseManager() *LocalLeaseManager {
	return &LocalLeaseManager{leases: make(map[string]localEntry), now: time.Now}
}

func (m *LocalLeaseManager) TryAcquire(_ context.Context, key string, ttl time.Duration) (ports.Lease, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if cur, ok := m.leases[key]; ok && now.Before(cur.expires) {
		return nil, false, nil
	}
	token := uuid.NewString()
	m.leases[key] = localEntry{token: token, expires: now.Add(ttl)}
	return &localLease{m: m, key: key, token: token}, true, nil
}

type localLease struct {
	m     *LocalLeaseManager
	key   string
	token string
}

func (l *localLease) Key() string { return l.key }

func (l *localLease) Held(_ context.Context) (bool, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	cur, ok := l.m.leases[l.key]
	return ok && cur.token == l.token && l.m.now().Before(cur.expires), nil
}

func (l *localLease) Release(_ context.Context) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	if cur, ok := l.m.leases[l.key]; ok && cur.token == l.token {
		delete(l.m.leases, l.key)
	}
	return nil
}
