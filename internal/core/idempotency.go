package core

import (
	"container/list"
)

// IdempotencyChecker deduplicates commands in two tiers: an in-memory LRU
// for the hot path and a Postgres lookup against the event log for keys
// that have aged out of the cache.
type IdempotencyChecker struct {
	lru       *IdempotencyLRU
	dbChecker DBIdempotencyChecker
}

// DBIdempotencyChecker is the cold-tier lookup, backed by the event log.
type DBIdempotencyChecker interface {
	IsDuplicate(idempotencyKey string) (bool, error)
}

func NewIdempotencyChecker(capacity int, dbChecker DBIdempotencyChecker) *IdempotencyChecker {
	return &IdempotencyChecker{
		lru:       NewIdempotencyLRU(capacity),
		dbChecker: dbChecker,
	}
}

// IsDuplicate reports whether the command key has already been processed.
// A DB error on the cold tier is swallowed: a Postgres hiccup must not
// stall command processing, and replaying a lost duplicate is caught by
// the ON CONFLICT guard on the event log anyway.
func (ic *IdempotencyChecker) IsDuplicate(key string) bool {
	if ic.lru.Contains(key) {
		return true
	}

	if ic.dbChecker != nil {
		isDup, err := ic.dbChecker.IsDuplicate(key)
		if err != nil {
			return false
		}
		if isDup {
			ic.lru.Add(key)
			return true
		}
	}

	return false
}

// MarkProcessed records the key after the command's events are emitted.
func (ic *IdempotencyChecker) MarkProcessed(key string) {
	ic.lru.Add(key)
}

// WarmFromKeys preloads recent keys so a restart does not pay the DB
// round-trip for every recently seen command.
func (ic *IdempotencyChecker) WarmFromKeys(keys []string) {
	ic.lru.WarmFromKeys(keys)
}

// --- LRU ---

// IdempotencyLRU is an LRU set of command keys.
// Not thread-safe: only touched from the single-threaded engine loop.
type IdempotencyLRU struct {
	capacity  int
	cache     map[string]*list.Element
	lruList   *list.List
	evictions int64
}

type lruEntry struct {
	key string
}

func NewIdempotencyLRU(capacity int) *IdempotencyLRU {
	return &IdempotencyLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		lruList:  list.New(),
	}
}

// Contains checks membership and promotes the key to most recently used.
func (lru *IdempotencyLRU) Contains(key string) bool {
	elem, exists := lru.cache[key]
	if exists {
		lru.lruList.MoveToFront(elem)
		return true
	}
	return false
}

// Add inserts a key, evicting the oldest entry when over capacity.
func (lru *IdempotencyLRU) Add(key string) {
	if elem, exists := lru.cache[key]; exists {
		lru.lruList.MoveToFront(elem)
		return
	}

	elem := lru.lruList.PushFront(&lruEntry{key: key})
	lru.cache[key] = elem

	if lru.lruList.Len() > lru.capacity {
		lru.evictOldest()
	}
}

func (lru *IdempotencyLRU) evictOldest() {
	elem := lru.lruList.Back()
	if elem != nil {
		lru.lruList.Remove(elem)
		delete(lru.cache, elem.Value.(*lruEntry).key)
		lru.evictions++
	}
}

// WarmFromKeys bulk-loads keys, respecting capacity.
func (lru *IdempotencyLRU) WarmFromKeys(keys []string) {
	for _, key := range keys {
		if _, exists := lru.cache[key]; exists {
			continue
		}
		elem := lru.lruList.PushFront(&lruEntry{key: key})
		lru.cache[key] = elem
		if lru.lruList.Len() > lru.capacity {
			lru.evictOldest()
		}
	}
}

// Size returns the current number of entries.
func (lru *IdempotencyLRU) Size() int {
	return lru.lruList.Len()
}

// Evictions returns the total eviction count.
func (lru *IdempotencyLRU) Evictions() int64 {
	return lru.evictions
}
