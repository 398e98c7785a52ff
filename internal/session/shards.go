// SPDX-License-Identifier: MIT

package session

import (
	"hash/fnv"
	"sync"
)

const shardCount = 32

// shardedMap spreads keys over independently locked shards so unrelated
// sessions never contend on one lock.
type shardedMap[V comparable] struct {
	shards [shardCount]mapShard[V]
}

type mapShard[V comparable] struct {
	mu sync.RWMutex
	m  map[string]V
}

func newShardedMap[V comparable]() *shardedMap[V] {
	sm := &shardedMap[V]{}
	for i := range sm.shards {
		sm.shards[i].m = make(map[string]V)
	}
	return sm
}

func (sm *shardedMap[V]) shard(key string) *mapShard[V] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &sm.shards[h.Sum32()%shardCount]
}

func (sm *shardedMap[V]) get(key string) (V, bool) {
	s := sm.shard(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok
}

func (sm *shardedMap[V]) set(key string, v V) {
	s := sm.shard(key)
	s.mu.Lock()
	s.m[key] = v
	s.mu.Unlock()
}

// deleteIf removes key only while it still maps to v.
func (sm *shardedMap[V]) deleteIf(key string, v V) bool {
	s := sm.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.m[key]; ok && cur == v {
		delete(s.m, key)
		return true
	}
	return false
}

func (sm *shardedMap[V]) values() []V {
	var out []V
	for i := range sm.shards {
		s := &sm.shards[i]
		s.mu.RLock()
		for _, v := range s.m {
			out = append(out, v)
		}
		s.mu.RUnlock()
	}
	return out
}

func (sm *shardedMap[V]) len() int {
	n := 0
	for i := range sm.shards {
		s := &sm.shards[i]
		s.mu.RLock()
		n += len(s.m)
		s.mu.RUnlock()
	}
	return n
}
