package datasource

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/retry"
)

func fastRetry() *retry.Config {
	return &retry.Config{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestConnectionManager_GetOrCreatePool_AppliesDefaults(t *testing.T) {
	f := &fakeFactory{}
	registerFake("fake-defaults", f)

	cm := NewConnectionManager(ConnectionManagerConfig{Retry: fastRetry()}, zaptest.NewLogger(t))
	defer cm.Close()

	pool, err := cm.GetOrCreatePool(context.Background(), "gaian1", ConnectionConfig{Type: "fake-defaults", Host: "gaian1"})
	require.NoError(t, err)
	assert.Equal(t, "gaian1", pool.ID())

	require.Len(t, f.configs, 1)
	assert.Equal(t, int32(DefaultPoolMinSize), f.configs[0].MinPoolSize)
	assert.Equal(t, int32(DefaultPoolMaxSize), f.configs[0].MaxPoolSize)
}

func TestConnectionManager_GetOrCreatePool_ClampsMinToMax(t *testing.T) {
	f := &fakeFactory{}
	registerFake("fake-clamp", f)

	cm := NewConnectionManager(ConnectionManagerConfig{Retry: fastRetry()}, zaptest.NewLogger(t))
	defer cm.Close()

	_, err := cm.GetOrCreatePool(context.Background(), "gaian1", ConnectionConfig{Type: "fake-clamp", MinPoolSize: 20, MaxPoolSize: 5})
	require.NoError(t, err)
	assert.Equal(t, int32(5), f.configs[0].MinPoolSize)
	assert.Equal(t, int32(5), f.configs[0].MaxPoolSize)
}

func TestConnectionManager_GetOrCreatePool_ReusesPool(t *testing.T) {
	f := &fakeFactory{}
	registerFake("fake-reuse", f)

	cm := NewConnectionManager(ConnectionManagerConfig{Retry: fastRetry()}, zaptest.NewLogger(t))
	defer cm.Close()

	ctx := context.Background()
	cfg := ConnectionConfig{Type: "fake-reuse"}

	var wg sync.WaitGroup
	pools := make([]*ManagedPool, 10)
	for i := range pools {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := cm.GetOrCreatePool(ctx, "gaian1", cfg)
			assert.NoError(t, err)
			pools[i] = p
		}(i)
	}
	wg.Wait()

	for _, p := range pools {
		assert.Same(t, pools[0], p)
	}
	assert.Equal(t, 1, cm.GetStats().TotalPools)

	// Extra pools created by racing goroutines are closed.
	f.mu.Lock()
	defer f.mu.Unlock()
	open := 0
	for _, p := range f.created {
		if !p.isClosed() {
			open++
		}
	}
	assert.Equal(t, 1, open)
}

func TestConnectionManager_GetOrCreatePool_UnknownType(t *testing.T) {
	cm := NewConnectionManager(ConnectionManagerConfig{}, zaptest.NewLogger(t))
	defer cm.Close()

	_, err := cm.GetOrCreatePool(context.Background(), "gaian1", ConnectionConfig{Type: "derby"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported datasource type: derby")
}

func TestConnectionManager_GetOrCreatePool_RetriesTransientErrors(t *testing.T) {
	f := &fakeFactory{failures: 2, failWith: errors.New("dial tcp 10.0.0.1:6414: connection refused")}
	registerFake("fake-transient", f)

	cm := NewConnectionManager(ConnectionManagerConfig{Retry: fastRetry()}, zaptest.NewLogger(t))
	defer cm.Close()

	_, err := cm.GetOrCreatePool(context.Background(), "gaian1", ConnectionConfig{Type: "fake-transient"})
	require.NoError(t, err)
	assert.Equal(t, 3, f.calls)
}

func TestConnectionManager_GetOrCreatePool_PermanentErrorIsSanitized(t *testing.T) {
	f := &fakeFactory{failures: 5, failWith: errors.New("bad url jdbc:derby://gaian1:6414/gaiandb;user=gaiandb;password=passw0rd")}
	registerFake("fake-permanent", f)

	core, logs := observer.New(zap.ErrorLevel)
	cm := NewConnectionManager(ConnectionManagerConfig{Retry: fastRetry()}, zap.New(core))
	defer cm.Close()

	_, err := cm.GetOrCreatePool(context.Background(), "gaian1", ConnectionConfig{Type: "fake-permanent"})
	require.Error(t, err)
	assert.Equal(t, 1, f.calls)

	entries := logs.FilterMessage("failed to create pool after retries").All()
	require.Len(t, entries, 1)
	logged := entries[0].ContextMap()["error"].(string)
	assert.NotContains(t, logged, "passw0rd")
	assert.NotContains(t, logged, "user=gaiandb")
}

func TestConnectionManager_Get(t *testing.T) {
	registerFake("fake-get", &fakeFactory{})

	cm := NewConnectionManager(ConnectionManagerConfig{}, zaptest.NewLogger(t))
	defer cm.Close()

	_, err := cm.Get("missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	created, err := cm.GetOrCreatePool(context.Background(), "gaian1", ConnectionConfig{Type: "fake-get"})
	require.NoError(t, err)

	got, err := cm.Get("gaian1")
	require.NoError(t, err)
	assert.Same(t, created, got)
}

func TestConnectionManager_Remove(t *testing.T) {
	f := &fakeFactory{}
	registerFake("fake-remove", f)

	cm := NewConnectionManager(ConnectionManagerConfig{}, zaptest.NewLogger(t))
	defer cm.Close()

	_, err := cm.GetOrCreatePool(context.Background(), "gaian1", ConnectionConfig{Type: "fake-remove"})
	require.NoError(t, err)

	cm.Remove("gaian1")
	cm.Remove("gaian1")

	assert.True(t, f.created[0].isClosed())
	_, err = cm.Get("gaian1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestConnectionManager_CloseIsIdempotent(t *testing.T) {
	f := &fakeFactory{}
	registerFake("fake-close", f)

	cm := NewConnectionManager(ConnectionManagerConfig{}, zaptest.NewLogger(t))
	_, err := cm.GetOrCreatePool(context.Background(), "gaian1", ConnectionConfig{Type: "fake-close"})
	require.NoError(t, err)

	require.NoError(t, cm.Close())
	require.NoError(t, cm.Close())
	assert.True(t, f.created[0].isClosed())

	_, err = cm.GetOrCreatePool(context.Background(), "gaian2", ConnectionConfig{Type: "fake-close"})
	assert.Error(t, err)
}

func TestManagedPool_CountsUsage(t *testing.T) {
	registerFake("fake-stats", &fakeFactory{})

	cm := NewConnectionManager(ConnectionManagerConfig{}, zaptest.NewLogger(t))
	defer cm.Close()

	ctx := context.Background()
	pool, err := cm.GetOrCreatePool(ctx, "gaian1", ConnectionConfig{Type: "fake-stats"})
	require.NoError(t, err)

	c1, err := pool.Reserve(ctx)
	require.NoError(t, err)
	c2, err := pool.Reserve(ctx)
	require.NoError(t, err)
	require.NoError(t, pool.Release(c1))
	assert.ErrorIs(t, pool.Release(c1), ErrAlreadyReleased)
	require.NoError(t, pool.Purge())

	stats := cm.GetStats()
	require.Len(t, stats.Pools, 1)
	ps := stats.Pools[0]
	assert.Equal(t, "gaian1", ps.Database)
	assert.Equal(t, "fake", ps.Type)
	assert.Equal(t, int64(2), ps.Reserved)
	assert.Equal(t, int64(1), ps.Released)
	assert.Equal(t, int64(1), ps.InUse)
	assert.Equal(t, int64(1), ps.Purges)

	require.NoError(t, pool.Release(c2))
}

func TestConnectionManager_GetStatsSortedByDatabase(t *testing.T) {
	registerFake("fake-sorted", &fakeFactory{})

	cm := NewConnectionManager(ConnectionManagerConfig{}, zaptest.NewLogger(t))
	defer cm.Close()

	for _, id := range []string{"gaian3", "gaian1", "gaian2"} {
		_, err := cm.GetOrCreatePool(context.Background(), id, ConnectionConfig{Type: "fake-sorted"})
		require.NoError(t, err)
	}

	stats := cm.GetStats()
	require.Len(t, stats.Pools, 3)
	assert.Equal(t, "gaian1", stats.Pools[0].Database)
	assert.Equal(t, "gaian2", stats.Pools[1].Database)
	assert.Equal(t, "gaian3", stats.Pools[2].Database)
}
