package leaderboard

import (
	"sync"

	"leaderboard/internal/ranktree"
)

// bucket is a score-range shard owning one order-statistic tree, a
// cached prefixRank (the count of ranked entries in all strictly
// higher-ranked buckets), and one single-writer/multi-reader lock. It is
// a passive container: all invariants about prefixRank are maintained
// by the owning index, never by the bucket itself.
//
// Go's sync.RWMutex is writer-preferring: once a writer is waiting in
// Lock, new RLock calls block until that writer has acquired and
// released the lock, so a continuous stream of hand-over-hand readers
// cannot starve a writer indefinitely.
type bucket struct {
	key        int
	tree       *ranktree.Tree
	prefixRank int64
	mu         sync.RWMutex
}

func newBucket(key int) *bucket {
	return &bucket{
		key:  key,
		tree: ranktree.New(),
	}
}

func (b *bucket) size() int64 {
	return b.tree.Size()
}
