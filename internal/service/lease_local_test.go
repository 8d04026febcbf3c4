package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLeaseManager_Exclusive(t *testing.T) {
	m := NewLocalLeaseManager()
	ctx := context.Background()

	l, ok, err := m.TryAcquire(ctx, "sync:a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "sync:a", l.Key())

	_, ok, err = m.TryAcquire(ctx, "sync:a", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = m.TryAcquire(ctx, "sync:b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "other keys are independent")

	require.NoError(t, l.Release(ctx))
	require.NoError(t, l.Release(ctx))

	_, ok, err = m.TryAcquire(ctx, "sync:a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalLeaseManager_Expiry(t *testing.T) {
	m := NewLocalLeaseManager()
	ctx := context.Background()
	now := baseTime
	m.now = func() time.Time { return now }

	old, ok, _ := m.TryAcquire(ctx, "sync:a", time.Minute)
	require.True(t, ok)

	held, err := old.Held(ctx)
	require.NoError(t, err)
	assert.True(t, held)

	now = now.Add(2 * time.Minute)
	held, _ = old.Held(ctx)
	assert.False(t, held)

	successor, ok, _ := m.TryAcquire(ctx, "sync:a", time.Minute)
	require.True(t, ok)

	// The expired holder must not release its successor.
	require.NoError(t, old.Release(ctx))
	held, _ = successor.Held(ctx)
	assert.True(t, held)
}
