package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuanqi-assessment-server/internal/domain"
	"github.com/yuanqi-assessment-server/pkg/external"
)

// fakeCatalog counts Get calls and can be switched to fail.
type fakeCatalog struct {
	mu   sync.Mutex
	defs map[int64]*domain.SymptomDefinition
	gets int
	fail error
}

func newFakeCatalog(defs ...*domain.SymptomDefinition) *fakeCatalog {
	f := &fakeCatalog{defs: make(map[int64]*domain.SymptomDefinition)}
	for _, d := range defs {
		f.defs[d.ID] = d
	}
	return f
}

func (f *fakeCatalog) Get(ctx context.Context, id int64) (*domain.SymptomDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.fail != nil {
		return nil, f.fail
	}
	def, ok := f.defs[id]
	if !ok {
		return nil, fmt.Errorf("symptom %d: %w", id, domain.ErrNotFound)
	}
	return def, nil
}

func (f *fakeCatalog) GetByName(ctx context.Context, name string) (*domain.SymptomDefinition, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeCatalog) List(ctx context.Context, filter domain.SymptomFilter) ([]*domain.SymptomDefinition, error) {
	return nil, nil
}

func (f *fakeCatalog) Count(ctx context.Context, filter domain.SymptomFilter) (int64, error) {
	return int64(len(f.defs)), nil
}

func (f *fakeCatalog) getCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

func definitionWithID(id int64, name string) *domain.SymptomDefinition {
	def := sampleDefinition(name, "肝")
	def.ID = id
	return def
}

func TestCachedLookup_MemoryTier(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := newFakeCatalog(definitionWithID(1, "眼睛干涩"))
	lookup := NewCachedLookup(store, logger)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		def, err := lookup.Lookup(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "眼睛干涩", def.Name)
	}

	assert.Equal(t, 1, store.getCount(), "store is read once")
	stats := lookup.Stats()
	assert.Equal(t, int64(3), stats.TotalLookups)
	assert.Equal(t, int64(2), stats.MemoryHits)
	assert.Equal(t, int64(1), stats.StoreReads)

	require.NoError(t, lookup.Invalidate(ctx, 1))
	_, err := lookup.Lookup(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, store.getCount(), "invalidate forces a store read")
}

func TestCachedLookup_RedisTier(t *testing.T) {
	mr := miniredis.RunT(t)
	client := external.NewCacheClientFromRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour)
	logger, _ := test.NewNullLogger()
	ctx := context.Background()

	def := definitionWithID(5, "腰酸")
	def.MalformedFields = []string{domain.FieldTaboos}
	def.Taboos = nil
	warm := NewCachedLookup(newFakeCatalog(def), logger, WithRedisCache(client, time.Hour))
	_, err := warm.Lookup(ctx, 5)
	require.NoError(t, err)
	assert.True(t, mr.Exists("symptom:5"))

	// A second process shares redis but has a failing store.
	cold := newFakeCatalog()
	cold.fail = errors.New("store down")
	lookup := NewCachedLookup(cold, logger, WithRedisCache(client, time.Hour))

	got, err := lookup.Lookup(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "腰酸", got.Name)
	assert.Equal(t, []string{"微循环", "营养"}, got.CauseLabels())
	assert.True(t, got.IsMalformed(domain.FieldTaboos), "malformed fields survive the redis tier")
	assert.Equal(t, 0, cold.getCount())
	assert.Equal(t, int64(1), lookup.Stats().RedisHits)

	require.NoError(t, lookup.Invalidate(ctx, 5))
	assert.False(t, mr.Exists("symptom:5"))
}

func TestCachedLookup_NotFoundKeepsBreakerClosed(t *testing.T) {
	logger, _ := test.NewNullLogger()
	lookup := NewCachedLookup(newFakeCatalog(), logger)
	ctx := context.Background()

	for i := int64(1); i <= 10; i++ {
		_, err := lookup.Lookup(ctx, i)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	}
	assert.Equal(t, gobreaker.StateClosed, lookup.breaker.State())
	assert.Equal(t, int64(10), lookup.Stats().NotFound)
}

func TestCachedLookup_BreakerOpensOnStoreFailures(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := newFakeCatalog()
	store.fail = errors.New("connection refused")
	lookup := NewCachedLookup(store, logger)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		_, err := lookup.Lookup(ctx, i)
		require.Error(t, err)
	}

	_, err := lookup.Lookup(ctx, 4)
	assert.True(t, errors.Is(err, external.ErrUnavailable))
	assert.Equal(t, 3, store.getCount(), "open breaker stops store reads")
}

func TestCachedLookup_Resolve(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := newFakeCatalog(
		definitionWithID(1, "眼睛干涩"),
		definitionWithID(2, "腰酸"),
		definitionWithID(3, "胃胀"),
	)
	lookup := NewCachedLookup(store, logger, WithConcurrency(2))

	snapshot, err := lookup.Resolve(context.Background(), []int64{1, 2, 2, 0, -1, 3, 99, 1})
	require.NoError(t, err)

	assert.Equal(t, 3, snapshot.Len())
	def, ok := snapshot.Definition(2)
	require.True(t, ok)
	assert.Equal(t, "腰酸", def.Name)

	_, ok = snapshot.Definition(99)
	assert.False(t, ok, "unresolvable ids are omitted")
	assert.Equal(t, 4, store.getCount(), "duplicates and non-positive ids are not looked up")
}

func TestCachedLookup_ResolveEmpty(t *testing.T) {
	lookup := NewCachedLookup(newFakeCatalog(), nil)

	snapshot, err := lookup.Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, snapshot.Len())
}

func TestCachedLookup_ResolveCancelled(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := newFakeCatalog(definitionWithID(1, "眼睛干涩"), definitionWithID(2, "腰酸"))
	lookup := NewCachedLookup(store, logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := lookup.Resolve(ctx, []int64{1, 2})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSnapshot_NilSafe(t *testing.T) {
	var s *Snapshot
	_, ok := s.Definition(1)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())

	s = NewSnapshot(definitionWithID(7, "耳鸣"), nil)
	def, ok := s.Definition(7)
	require.True(t, ok)
	assert.Equal(t, "耳鸣", def.Name)
}
