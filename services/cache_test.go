package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"wastewatch/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeKVStore is an in-memory KVStore with TTL
type fakeKVStore struct {
	mu   sync.Mutex
	data map[string]fakeKVItem
}

type fakeKVItem struct {
	value   string
	expires time.Time // zero = no ttl
}

func newFakeKVStore() *fakeKVStore {
	return &fakeKVStore{data: make(map[string]fakeKVItem)}
}

func (f *fakeKVStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	item, ok := f.data[key]
	if !ok {
		return "", ErrCacheMiss
	}
	if !item.expires.IsZero() && time.Now().After(item.expires) {
		delete(f.data, key)
		return "", ErrCacheMiss
	}
	return item.value, nil
}

func (f *fakeKVStore) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	f.data[key] = fakeKVItem{value: value, expires: exp}
	return nil
}

func TestSnapshotCacheRoundTrip(t *testing.T) {
	cache := NewSnapshotCache(newFakeKVStore(), time.Hour)
	ctx := context.Background()

	snap := deviceSnapshot(map[models.Parameter]float64{models.ParamCOD: 300})
	eval := Evaluate(snap, DefaultRanges(), 0)
	require.NoError(t, cache.Put(ctx, snap, eval))

	got, err := cache.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.SeverityMedium, got.Evaluation.Severity)
	cod, ok := got.Snapshot.Get(models.ParamCOD)
	require.True(t, ok)
	assert.Equal(t, 300.0, cod)
}

func TestSnapshotCacheMiss(t *testing.T) {
	cache := NewSnapshotCache(newFakeKVStore(), time.Hour)

	_, err := cache.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestSnapshotCacheExpires(t *testing.T) {
	cache := NewSnapshotCache(newFakeKVStore(), time.Millisecond)
	ctx := context.Background()

	snap := deviceSnapshot(map[models.Parameter]float64{models.ParamPH: 7})
	require.NoError(t, cache.Put(ctx, snap, Evaluate(snap, DefaultRanges(), 0)))

	time.Sleep(5 * time.Millisecond)
	_, err := cache.Get(ctx, "d1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
