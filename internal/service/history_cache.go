package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wallet-risk-monitor/internal/core/domain"
	"wallet-risk-monitor/internal/core/ports"

	"github.com/jellydator/ttlcache/v3"
)

// HistoryCache keeps each unit's ledger snapshot in memory between cycles.
// Callers always get a clone, so extending it while processing a batch never
// leaks uncommitted entries into the cache.
type HistoryCache struct {
	txRepo ports.TransactionRepository
	cache  *ttlcache.Cache[domain.UnitKey, *domain.WalletHistory]
	lock   sync.Mutex
}

// NewHistoryCache creates a cache whose entries expire after ttl.
func NewHistoryCache(txRepo ports.TransactionRepository, ttl time.Duration) *HistoryCache {
	return &HistoryCache{
		txRepo: txRepo,
		cache: ttlcache.New[domain.UnitKey, *domain.WalletHistory](
			ttlcache.WithTTL[domain.UnitKey, *domain.WalletHistory](ttl),
			ttlcache.WithDisableTouchOnHit[domain.UnitKey, *domain.WalletHistory](),
		),
	}
}

// Start runs expired-entry cleanup until Stop. It blocks.
func (c *HistoryCache) Start() { c.cache.Start() }

// Stop ends the cleanup loop.
func (c *HistoryCache) Stop() { c.cache.Stop() }

// Load returns a private copy of the wallet's history, reading the ledger on
// a miss.
func (c *HistoryCache) Load(ctx context.Context, wallet *domain.Wallet) (*domain.WalletHistory, error) {
	key := wallet.UnitKey()

	c.lock.Lock()
	defer c.lock.Unlock()

	if item := c.cache.Get(key); item != nil {
		return item.Value().Clone(), nil
	}
	entries, err := c.txRepo.History(ctx, key, wallet.Address)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	h := domain.NewWalletHistory(wallet.ID, wallet.Chain, entries)
	c.cache.Set(key, h, ttlcache.DefaultTTL)
	return h.Clone(), nil
}

// Invalidate drops the unit's snapshot after its ledger changed.
func (c *HistoryCache) Invalidate(key domain.UnitKey) {
	c.cache.Delete(key)
}
