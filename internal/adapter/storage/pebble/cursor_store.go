// Package pebble keeps unit cursors in an embedded Pebble database for
// single-node deployments that do not want cursor writes in PostgreSQL.
package pebble

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"wallet-risk-monitor/internal/core/domain"

	"github.com/cockroachdb/pebble"
)

const cursorKeyPrefix = "cursor/"

// value layout: block | index | updated_at unix nanos, all big-endian int64.
const cursorValueLen = 24

// CursorStore implements ports.CursorStore.
type CursorStore struct {
	db *pebble.DB
	// mu serializes read-compare-write in Commit.
	mu sync.Mutex
}

// NewCursorStore opens (or creates) the cursor database under dir.
func NewCursorStore(dir string) (*CursorStore, error) {
	db, err := pebble.Open(filepath.Join(dir, "cursor-store"), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening pebble db: %w", err)
	}
	return &CursorStore{db: db}, nil
}

// Get returns the committed cursor or nil.
func (s *CursorStore) Get(_ context.Context, key domain.UnitKey) (*domain.Cursor, error) {
	value, closer, err := s.db.Get(cursorKey(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting cursor: %w", err)
	}
	defer closer.Close()

	if len(value) != cursorValueLen {
		return nil, fmt.Errorf("getting cursor: corrupt value of %d bytes", len(value))
	}
	return &domain.Cursor{
		WalletID:  key.WalletID,
		Chain:     key.Chain,
		LastBlock: int64(binary.BigEndian.Uint64(value[0:8])),
		LastIndex: int64(binary.BigEndian.Uint64(value[8:16])),
		UpdatedAt: time.Unix(0, int64(binary.BigEndian.Uint64(value[16:24]))).UTC(),
	}, nil
}

// Commit stores c unless the stored cursor is already at or past it.
func (s *CursorStore) Commit(ctx context.Context, c *domain.Cursor) error {
	key := c.UnitKey()

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if !current.Advances(c.Position()) {
		return nil
	}

	updatedAt := c.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	value := make([]byte, 0, cursorValueLen)
	value = binary.BigEndian.AppendUint64(value, uint64(c.LastBlock))
	value = binary.BigEndian.AppendUint64(value, uint64(c.LastIndex))
	value = binary.BigEndian.AppendUint64(value, uint64(updatedAt.UnixNano()))

	if err := s.db.Set(cursorKey(key), value, pebble.Sync); err != nil {
		return fmt.Errorf("setting cursor: %w", err)
	}
	return nil
}

// Close flushes and closes the database.
func (s *CursorStore) Close() error {
	return s.db.Close()
}

func cursorKey(key domain.UnitKey) []byte {
	return []byte(cursorKeyPrefix + key.WalletID.String() + "/" + key.Chain)
}
