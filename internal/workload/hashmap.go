// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package workload provides minimal concurrent container harnesses used
// to stress-test a reclaim.Reclaimer implementation: a single-global-lock
// hash map, a lock-free binary search tree, and a copy-on-write ordered
// set. None of these are meant as production data structures — their job
// is to generate realistic BeginOp/EndOp/Retire traffic against either
// engine in internal/hyaline or internal/ibr.
package workload

import (
	"sync"
	"sync/atomic"

	"github.com/ayushgupta75/reclaim/internal/reclaim"
)

type hashEntry struct {
	key   string
	value any
	next  atomic.Pointer[hashEntry]
}

// HashMap is a fixed-bucket-count hash map grounded on
// `HyalineSGL.cpp`'s SGLUnorderedMap: structural mutation (Insert,
// Remove) takes a single coarse lock, exactly as the original's
// test-and-set spinlock does, while Get walks bucket chains lock-free
// inside a reclaim.Reclaimer critical section. Unlike the original demo
// — whose map operations never actually call into the Hyaline class it
// defines — this harness retires unlinked entries through the engine so
// concurrent lock-free readers are the thing actually being exercised.
//
// A HashMap holds no slot of its own: every method takes the caller's
// slot as a parameter, so one HashMap can be shared by every goroutine
// registered against engine, each entering and leaving under its own
// slot.
type HashMap struct {
	buckets []atomic.Pointer[hashEntry]
	mu      sync.Mutex

	engine reclaim.Reclaimer
}

// NewHashMap constructs a HashMap with the given bucket count.
func NewHashMap(engine reclaim.Reclaimer, buckets int) *HashMap {
	if buckets <= 0 {
		buckets = 64
	}
	return &HashMap{
		buckets: make([]atomic.Pointer[hashEntry], buckets),
		engine:  engine,
	}
}

// bucketIndex is the hybrid hash grounded on internal/storage/index's
// HashIndex: a cheap multiplicative hash for short keys and FNV-1a for
// longer ones.
func (m *HashMap) bucketIndex(key string) int {
	if len(key) <= 8 {
		var h uint64
		for i := 0; i < len(key); i++ {
			h = h*31 + uint64(key[i]) + uint64(i)
		}
		return int(h % uint64(len(m.buckets)))
	}

	const fnvPrime uint64 = 1099511628211
	const fnvOffsetBasis uint64 = 14695981039346656037

	h := fnvOffsetBasis
	for i := 0; i < len(key); i++ {
		h ^= uint64(key[i])
		h *= fnvPrime
	}
	return int(h % uint64(len(m.buckets)))
}

// Get looks up key without taking the write lock, protected by a
// BeginOp/EndOp span on slot.
func (m *HashMap) Get(slot int, key string) (any, bool) {
	idx := m.bucketIndex(key)
	h := m.engine.BeginOp(slot)
	defer m.engine.EndOp(slot, h)

	for e := m.buckets[idx].Load(); e != nil; e = e.next.Load() {
		if keysEqual(e.key, key) {
			return e.value, true
		}
	}
	return nil, false
}

// Insert adds or overwrites key under the coarse lock.
func (m *HashMap) Insert(slot int, key string, value any) bool {
	idx := m.bucketIndex(key)
	m.mu.Lock()
	defer m.mu.Unlock()

	for e := m.buckets[idx].Load(); e != nil; e = e.next.Load() {
		if keysEqual(e.key, key) {
			return false
		}
	}

	e := &hashEntry{key: key, value: value}
	e.next.Store(m.buckets[idx].Load())
	m.buckets[idx].Store(e)
	return true
}

// Remove deletes key under the coarse lock, retiring the unlinked entry
// onto slot rather than freeing it immediately, so a concurrent
// lock-free Get that already dereferenced it is not left with a
// use-after-free.
func (m *HashMap) Remove(slot int, key string) bool {
	idx := m.bucketIndex(key)
	m.mu.Lock()
	defer m.mu.Unlock()

	var prev *hashEntry
	for e := m.buckets[idx].Load(); e != nil; e = e.next.Load() {
		if !keysEqual(e.key, key) {
			prev = e
			continue
		}
		next := e.next.Load()
		if prev == nil {
			m.buckets[idx].Store(next)
		} else {
			prev.next.Store(next)
		}
		target := e
		m.engine.Retire(slot, func() { _ = target })
		return true
	}
	return false
}
