// Package keyedmutex provides fine-grained locking for keyed stores.
package keyedmutex

import (
	"hash/fnv"
	"sync"
)

// KeyedMutex distributes locks across N shards based on a hash of the key,
// reducing contention under concurrent load compared to a single global lock.
// Distinct keys may share a shard; a shard never splits a key.
type KeyedMutex struct {
	shards [32]sync.Mutex
}

// New creates a KeyedMutex with 32 shards.
func New() *KeyedMutex {
	return &KeyedMutex{}
}

// Lock acquires the lock for the given key's shard.
func (m *KeyedMutex) Lock(key string) {
	m.shards[m.shardFor(key)].Lock()
}

// Unlock releases the lock for the given key's shard.
func (m *KeyedMutex) Unlock(key string) {
	m.shards[m.shardFor(key)].Unlock()
}

func (m *KeyedMutex) shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(m.shards)))
}
