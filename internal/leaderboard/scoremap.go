package leaderboard

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// scoreMapShards is the number of shards backing the customerId->score
// map. A power of two so shard selection is a mask, not a modulo.
const scoreMapShards = 64

// scoreMap is the concurrent customerId -> accumulated score map. Each
// customer's score lives behind its own *atomic.Int64 once created;
// after that first creation (the only point that takes a shard's write
// lock), an update takes only the shard's read lock to look up the
// counter and then performs a single atomic add.
type scoreMap struct {
	shards [scoreMapShards]scoreShard
}

type scoreShard struct {
	mu sync.RWMutex
	m  map[int64]*atomic.Int64
}

func newScoreMap() *scoreMap {
	sm := &scoreMap{}
	for i := range sm.shards {
		sm.shards[i].m = make(map[int64]*atomic.Int64)
	}
	return sm
}

func (sm *scoreMap) shardFor(customerID int64) *scoreShard {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(customerID))
	h := xxhash.Sum64(buf[:])
	return &sm.shards[h&(scoreMapShards-1)]
}

// apply atomically adds delta to customerId's score, creating the
// customer (starting from 0) on first use. Returns the score before and
// after the update.
func (sm *scoreMap) apply(customerID, delta int64) (oldScore, newScore int64) {
	shard := sm.shardFor(customerID)

	shard.mu.RLock()
	counter, ok := shard.m[customerID]
	shard.mu.RUnlock()

	if !ok {
		shard.mu.Lock()
		counter, ok = shard.m[customerID]
		if !ok {
			counter = &atomic.Int64{}
			shard.m[customerID] = counter
		}
		shard.mu.Unlock()
	}

	newScore = counter.Add(delta)
	oldScore = newScore - delta
	return oldScore, newScore
}

// get returns the customer's current score, or (0, false) if unknown.
func (sm *scoreMap) get(customerID int64) (int64, bool) {
	shard := sm.shardFor(customerID)
	shard.mu.RLock()
	counter, ok := shard.m[customerID]
	shard.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return counter.Load(), true
}

// set overwrites customerId's score with an absolute value, creating the
// customer if unknown. For bulk-load use only: unlike apply, it has no
// interaction with any in-flight Update's old/new score pairing, so
// callers must not mix it with concurrent apply calls for the same
// customer.
func (sm *scoreMap) set(customerID, score int64) {
	shard := sm.shardFor(customerID)

	shard.mu.RLock()
	counter, ok := shard.m[customerID]
	shard.mu.RUnlock()

	if !ok {
		shard.mu.Lock()
		counter, ok = shard.m[customerID]
		if !ok {
			counter = &atomic.Int64{}
			shard.m[customerID] = counter
		}
		shard.mu.Unlock()
	}

	counter.Store(score)
}
