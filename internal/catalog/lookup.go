package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/yuanqi-assessment-server/internal/domain"
	"github.com/yuanqi-assessment-server/pkg/external"
)

const (
	defaultMemorySize  = 1000
	defaultMemoryTTL   = 15 * time.Minute
	defaultRedisTTL    = 24 * time.Hour
	defaultConcurrency = 8
	redisKeyPrefix     = "symptom"
)

// cachedDefinition carries the malformed field list, which is not part of the definition's JSON.
type cachedDefinition struct {
	Definition *domain.SymptomDefinition `json:"definition"`
	Malformed  []string                  `json:"malformed,omitempty"`
}

// LookupStats represents cache performance statistics
type LookupStats struct {
	MemoryHits   int64 `json:"memory_hits"`
	RedisHits    int64 `json:"redis_hits"`
	StoreReads   int64 `json:"store_reads"`
	NotFound     int64 `json:"not_found"`
	ErrorCount   int64 `json:"error_count"`
	TotalLookups int64 `json:"total_lookups"`
}

// CachedLookup reads catalog definitions through a memory LRU, an optional redis tier and
// finally the store, guarded by a circuit breaker.
type CachedLookup struct {
	store       domain.SymptomCatalog
	memory      *expirable.LRU[int64, *domain.SymptomDefinition]
	redis       *external.CacheClient
	redisTTL    time.Duration
	breaker     *external.CircuitBreaker
	concurrency int
	logger      *logrus.Logger

	memoryHits, redisHits, storeReads, notFound, errorCount, total atomic.Int64
}

// LookupOption configures a CachedLookup
type LookupOption func(*CachedLookup)

// WithRedisCache enables the redis tier.
func WithRedisCache(client *external.CacheClient, ttl time.Duration) LookupOption {
	return func(l *CachedLookup) {
		l.redis = client
		if ttl > 0 {
			l.redisTTL = ttl
		}
	}
}

// WithBreaker replaces the default store circuit breaker.
func WithBreaker(breaker *external.CircuitBreaker) LookupOption {
	return func(l *CachedLookup) {
		l.breaker = breaker
	}
}

// WithConcurrency bounds the number of concurrent store reads in Resolve.
func WithConcurrency(n int) LookupOption {
	return func(l *CachedLookup) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

// WithMemoryCache sets the LRU size and entry lifetime.
func WithMemoryCache(size int, ttl time.Duration) LookupOption {
	return func(l *CachedLookup) {
		if size <= 0 {
			size = defaultMemorySize
		}
		if ttl <= 0 {
			ttl = defaultMemoryTTL
		}
		l.memory = expirable.NewLRU[int64, *domain.SymptomDefinition](size, nil, ttl)
	}
}

// NewCachedLookup creates a lookup over store.
func NewCachedLookup(store domain.SymptomCatalog, logger *logrus.Logger, opts ...LookupOption) *CachedLookup {
	if logger == nil {
		logger = logrus.New()
	}
	l := &CachedLookup{
		store:       store,
		redisTTL:    defaultRedisTTL,
		concurrency: defaultConcurrency,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.memory == nil {
		l.memory = expirable.NewLRU[int64, *domain.SymptomDefinition](defaultMemorySize, nil, defaultMemoryTTL)
	}
	if l.breaker == nil {
		config := external.DefaultCircuitBreakerConfig("symptom-catalog")
		config.IsSuccessful = isNotFound
		l.breaker = external.NewCircuitBreaker(config, logger)
	}
	return l
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

func redisKey(id int64) string {
	return external.Key(redisKeyPrefix, strconv.FormatInt(id, 10))
}

// Lookup returns the definition for id. A missing definition returns an error wrapping
// domain.ErrNotFound; an open breaker returns one wrapping external.ErrUnavailable.
func (l *CachedLookup) Lookup(ctx context.Context, id int64) (*domain.SymptomDefinition, error) {
	l.total.Add(1)

	if def, ok := l.memory.Get(id); ok {
		l.memoryHits.Add(1)
		return def, nil
	}

	if def := l.fromRedis(ctx, id); def != nil {
		l.redisHits.Add(1)
		l.memory.Add(id, def)
		return def, nil
	}

	l.storeReads.Add(1)
	result, err := l.breaker.Execute(func() (interface{}, error) {
		return l.store.Get(ctx, id)
	})
	if err != nil {
		if isNotFound(err) {
			l.notFound.Add(1)
		} else {
			l.errorCount.Add(1)
		}
		return nil, fmt.Errorf("looking up symptom %d: %w", id, err)
	}

	def := result.(*domain.SymptomDefinition)
	l.memory.Add(id, def)
	l.toRedis(ctx, def)
	return def, nil
}

func (l *CachedLookup) fromRedis(ctx context.Context, id int64) *domain.SymptomDefinition {
	if l.redis == nil {
		return nil
	}
	var cached cachedDefinition
	found, err := l.redis.GetJSON(ctx, redisKey(id), &cached)
	if err != nil {
		l.logger.WithError(err).WithField("symptom_id", id).Debug("Redis catalog read failed")
		return nil
	}
	if !found || cached.Definition == nil {
		return nil
	}
	cached.Definition.MalformedFields = cached.Malformed
	return cached.Definition
}

func (l *CachedLookup) toRedis(ctx context.Context, def *domain.SymptomDefinition) {
	if l.redis == nil {
		return
	}
	cached := cachedDefinition{Definition: def, Malformed: def.MalformedFields}
	if err := l.redis.SetJSON(ctx, redisKey(def.ID), cached, l.redisTTL); err != nil {
		l.logger.WithError(err).WithField("symptom_id", def.ID).Debug("Redis catalog write failed")
	}
}

// Invalidate drops id from both cache tiers.
func (l *CachedLookup) Invalidate(ctx context.Context, id int64) error {
	l.memory.Remove(id)
	if l.redis == nil {
		return nil
	}
	return l.redis.Delete(ctx, redisKey(id))
}

// Resolve loads the definitions for ids with bounded concurrency. Ids that cannot be resolved
// are left out of the snapshot. Only context cancellation is returned as an error.
func (l *CachedLookup) Resolve(ctx context.Context, ids []int64) (*Snapshot, error) {
	snapshot := &Snapshot{definitions: make(map[int64]*domain.SymptomDefinition, len(ids))}

	seen := make(map[int64]struct{}, len(ids))
	unique := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return snapshot, nil
	}

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, l.concurrency)
	)

	for _, id := range unique {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return nil, ctx.Err()
		}

		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			defer func() { <-sem }()

			def, err := l.Lookup(ctx, id)
			if err != nil {
				if !isNotFound(err) && ctx.Err() == nil {
					l.logger.WithError(err).WithField("symptom_id", id).Warn("Catalog lookup failed")
				}
				return
			}
			mu.Lock()
			snapshot.definitions[id] = def
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.logger.WithFields(logrus.Fields{
		"requested": len(unique),
		"resolved":  snapshot.Len(),
	}).Debug("Resolved catalog definitions")
	return snapshot, nil
}

// Stats returns a copy of the lookup counters.
func (l *CachedLookup) Stats() LookupStats {
	return LookupStats{
		MemoryHits:   l.memoryHits.Load(),
		RedisHits:    l.redisHits.Load(),
		StoreReads:   l.storeReads.Load(),
		NotFound:     l.notFound.Load(),
		ErrorCount:   l.errorCount.Load(),
		TotalLookups: l.total.Load(),
	}
}

// Snapshot is an immutable set of resolved definitions for one analysis.
type Snapshot struct {
	definitions map[int64]*domain.SymptomDefinition
}

// NewSnapshot builds a snapshot from definitions keyed by their ID.
func NewSnapshot(defs ...*domain.SymptomDefinition) *Snapshot {
	s := &Snapshot{definitions: make(map[int64]*domain.SymptomDefinition, len(defs))}
	for _, def := range defs {
		if def != nil {
			s.definitions[def.ID] = def
		}
	}
	return s
}

// Definition implements domain.SymptomLookup.
func (s *Snapshot) Definition(symptomID int64) (*domain.SymptomDefinition, bool) {
	if s == nil {
		return nil, false
	}
	def, ok := s.definitions[symptomID]
	return def, ok
}

// Len returns the number of resolved definitions.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.definitions)
}
