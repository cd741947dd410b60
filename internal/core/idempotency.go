package core

import (
	"container/list"
	"context"
	"sync"

	"github.com/TanmayDhobale/miniForesight/internal/observability"
)

// RequestLookup is the durable tier of request deduplication.
type RequestLookup interface {
	SeenRequest(ctx context.Context, requestID string) (bool, error)
}

// IdempotencyChecker implements two-tier deduplication of request ids
// ahead of the engine. The engine's own request record is authoritative;
// this only saves a store transaction for obvious redeliveries.
type IdempotencyChecker struct {
	// Tier 1: In-memory LRU
	lru *IdempotencyLRU

	// Tier 2: the store (engine request records)
	lookup RequestLookup

	metrics *observability.Metrics
}

func NewIdempotencyChecker(capacity int, lookup RequestLookup, metrics *observability.Metrics) *IdempotencyChecker {
	return &IdempotencyChecker{
		lru:     NewIdempotencyLRU(capacity),
		lookup:  lookup,
		metrics: metrics,
	}
}

// IsDuplicate checks whether requestID was already applied. Lookup errors
// are treated as "not a duplicate": the engine rejects true duplicates anyway.
func (ic *IdempotencyChecker) IsDuplicate(ctx context.Context, requestID string) bool {
	if requestID == "" {
		return false
	}
	if ic.lru.Contains(requestID) {
		ic.record("lru")
		return true
	}

	if ic.lookup != nil {
		seen, err := ic.lookup.SeenRequest(ctx, requestID)
		if err == nil && seen {
			ic.record("store")
			ic.lru.Add(requestID)
			return true
		}
	}
	return false
}

// MarkProcessed adds requestID to the LRU after it was applied.
func (ic *IdempotencyChecker) MarkProcessed(requestID string) {
	if requestID != "" {
		ic.lru.Add(requestID)
	}
}

func (ic *IdempotencyChecker) record(tier string) {
	if ic.metrics != nil {
		ic.metrics.DuplicateRequests.WithLabelValues(tier).Inc()
	}
}

// --- LRU Implementation ---

// IdempotencyLRU is a mutex-guarded LRU set of keys.
type IdempotencyLRU struct {
	mu        sync.Mutex
	capacity  int
	cache     map[string]*list.Element
	lruList   *list.List
	evictions int64
}

func NewIdempotencyLRU(capacity int) *IdempotencyLRU {
	if capacity <= 0 {
		capacity = 1
	}
	return &IdempotencyLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		lruList:  list.New(),
	}
}

// Contains checks if key exists (promotes to front)
func (lru *IdempotencyLRU) Contains(key string) bool {
	lru.mu.Lock()
	defer lru.mu.Unlock()
	elem, exists := lru.cache[key]
	if exists {
		lru.lruList.MoveToFront(elem)
	}
	return exists
}

// Add inserts a key (or promotes if exists)
func (lru *IdempotencyLRU) Add(key string) {
	lru.mu.Lock()
	defer lru.mu.Unlock()
	if elem, exists := lru.cache[key]; exists {
		lru.lruList.MoveToFront(elem)
		return
	}

	lru.cache[key] = lru.lruList.PushFront(key)
	if lru.lruList.Len() > lru.capacity {
		oldest := lru.lruList.Back()
		lru.lruList.Remove(oldest)
		delete(lru.cache, oldest.Value.(string))
		lru.evictions++
	}
}

func (lru *IdempotencyLRU) Size() int {
	lru.mu.Lock()
	defer lru.mu.Unlock()
	return lru.lruList.Len()
}

func (lru *IdempotencyLRU) Evictions() int64 {
	lru.mu.Lock()
	defer lru.mu.Unlock()
	return lru.evictions
}
