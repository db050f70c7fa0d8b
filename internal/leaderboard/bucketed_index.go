package leaderboard

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"

	"leaderboard/internal/ranktree"
)

// customerLockShards is the number of mutexes serializing Update's
// score-computation-and-tree-mutation critical section per customer. A
// power of two so shard selection is a mask, not a modulo. Two distinct
// customers can hash to the same shard (coarser than per-customer
// locking), but that only costs a little parallelism; it never affects
// correctness, since a shard lock still always dominates any given
// customer's own updates.
const customerLockShards = 256

// BucketedIndex is the primary Index implementation: a fixed array of
// score-range buckets plus a concurrent customerId->score map. Writers
// touch at most two adjacent buckets per update (the bucket boundary
// table guarantees this, since every range exceeds the maximum per-update
// delta magnitude); readers walk the bucket array top-down under hand-
// over-hand read locking.
type BucketedIndex struct {
	scores        *scoreMap
	buckets       [NumBuckets]*bucket
	customerLocks [customerLockShards]sync.Mutex
}

var _ Index = (*BucketedIndex)(nil)

// NewBucketedIndex constructs an empty BucketedIndex with all 32 buckets
// pre-allocated; bucket boundaries are fixed for the index's lifetime and
// buckets are never destroyed.
func NewBucketedIndex() *BucketedIndex {
	idx := &BucketedIndex{scores: newScoreMap()}
	for k := 0; k < NumBuckets; k++ {
		idx.buckets[k] = newBucket(k)
	}
	return idx
}

// Close is a no-op: BucketedIndex owns no background goroutines.
func (idx *BucketedIndex) Close() {}

func (idx *BucketedIndex) customerLock(customerID int64) *sync.Mutex {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(customerID))
	h := xxhash.Sum64(buf[:])
	return &idx.customerLocks[h&(customerLockShards-1)]
}

// Update applies delta to customerId's score and keeps the ranked index's
// per-bucket entries and prefixRank counters consistent. Bucket widths
// exceed the maximum per-update delta magnitude, so every update crosses
// at most one bucket boundary; when it does, only the lower-key bucket of
// the pair has its prefixRank adjusted, by exactly ±1.
//
// The score computation (scores.apply) and the resulting bucket-tree
// mutation must happen as one atomic step from the same customer's point
// of view — otherwise two concurrent updates for the same customer can
// compute their old/new scores in one order but apply their tree edits
// in the other, so a bucket write is asked to remove an entry the other
// update hasn't inserted yet. customerLock enforces that ordering.
func (idx *BucketedIndex) Update(customerID, delta int64) int64 {
	lock := idx.customerLock(customerID)
	lock.Lock()
	defer lock.Unlock()

	oldScore, newScore := idx.scores.apply(customerID, delta)
	if delta == 0 {
		return newScore
	}

	oldKey := bucketKeyOf(oldScore)
	newKey := bucketKeyOf(newScore)

	switch {
	case oldKey == newKey:
		if oldKey == 0 {
			return newScore // both non-positive: no ranked-index change
		}
		b := idx.buckets[oldKey]
		b.mu.Lock()
		removeEntry(b, oldScore, customerID)
		b.tree.Insert(ranktree.Entry{Score: newScore, CustomerID: customerID})
		b.mu.Unlock()

	case newKey > oldKey:
		// Score crossed upward. Always lock the higher-key bucket first
		// regardless of move direction, to avoid deadlock against a
		// concurrent downward move over the same pair of buckets.
		hi, lo := idx.buckets[newKey], idx.buckets[oldKey]
		hi.mu.Lock()
		if oldKey != 0 {
			lo.mu.Lock()
			removeEntry(lo, oldScore, customerID)
		}
		hi.tree.Insert(ranktree.Entry{Score: newScore, CustomerID: customerID})
		if oldKey != 0 {
			lo.prefixRank++
			lo.mu.Unlock()
		}
		hi.mu.Unlock()

	default: // oldKey > newKey: score crossed downward.
		hi, lo := idx.buckets[oldKey], idx.buckets[newKey]
		hi.mu.Lock()
		if newKey != 0 {
			lo.mu.Lock()
		}
		removeEntry(hi, oldScore, customerID)
		if newKey != 0 {
			lo.tree.Insert(ranktree.Entry{Score: newScore, CustomerID: customerID})
			lo.prefixRank--
			lo.mu.Unlock()
		}
		hi.mu.Unlock()
	}

	return newScore
}

func removeEntry(b *bucket, score, customerID int64) {
	if !b.tree.Remove(ranktree.Entry{Score: score, CustomerID: customerID}) {
		panic("leaderboard: corrupted ranked index — expected entry missing from bucket")
	}
}

// BulkLoad sets every customer in scores to their given absolute score
// and recomputes every bucket's prefixRank from scratch. Unlike Update,
// it inserts each entry directly into its bucket without regard to any
// prior score — there is no "old bucket" to remove from, since this is
// a cold load, not an incremental move — which is exactly why per-update
// replay (one Update call per stored score) cannot be used here: a
// replayed score arriving as a single large delta still lands in the
// right bucket, but every bucket below it is left with a stale
// prefixRank of 0, corrupting every later RanksByRange/RanksByCustomer
// call. Intended for startup warm-load before the index serves traffic;
// concurrent Update calls during a BulkLoad are not supported.
func (idx *BucketedIndex) BulkLoad(scores map[int64]int64) {
	for customerID, score := range scores {
		idx.scores.set(customerID, score)

		key := bucketKeyOf(score)
		if key == 0 {
			continue
		}
		b := idx.buckets[key]
		b.mu.Lock()
		b.tree.Insert(ranktree.Entry{Score: score, CustomerID: customerID})
		b.mu.Unlock()
	}
	idx.recomputePrefixRanks()
}

// recomputePrefixRanks walks the bucket array highest-key-first,
// setting each bucket's prefixRank to the running count of entries in
// every strictly higher-key bucket.
func (idx *BucketedIndex) recomputePrefixRanks() {
	var cumulative int64
	for k := NumBuckets - 1; k >= 1; k-- {
		b := idx.buckets[k]
		b.mu.Lock()
		b.prefixRank = cumulative
		cumulative += b.tree.Size()
		b.mu.Unlock()
	}
}

// RanksByRange walks the bucket array from the highest score range to the
// lowest, using each bucket's cached prefixRank to skip buckets entirely
// outside [start, end] and to seek directly to the right rank inside the
// first and last buckets touched. Hand-over-hand read locking (never
// releasing the previous bucket's lock until the next one is held)
// guarantees that no concurrent cross-bucket move can make a ranked
// customer appear twice or not at all in the result.
func (idx *BucketedIndex) RanksByRange(start, end int64) []RankedEntry {
	if end < start {
		return nil
	}

	var results []RankedEntry
	var held *bucket

	release := func() {
		if held != nil {
			held.mu.RUnlock()
			held = nil
		}
	}
	defer release()

	for k := NumBuckets - 1; k >= 1; k-- {
		b := idx.buckets[k]
		b.mu.RLock()
		release()
		held = b

		size := b.tree.Size()
		if size == 0 {
			continue
		}

		bucketLo := b.prefixRank + 1
		bucketHi := b.prefixRank + size
		if bucketHi < start {
			continue
		}
		if bucketLo > end {
			break
		}

		loRank := start
		if bucketLo > loRank {
			loRank = bucketLo
		}
		hiRank := end
		if bucketHi < hiRank {
			hiRank = bucketHi
		}

		withinLo := loRank - b.prefixRank
		withinHi := hiRank - b.prefixRank
		entries := b.tree.RangeByRank(withinLo, withinHi)
		for i, e := range entries {
			results = append(results, RankedEntry{
				CustomerID: e.CustomerID,
				Score:      e.Score,
				Rank:       loRank + int64(i),
			})
		}
	}

	return results
}

// RanksByCustomer locates customerId's global rank directly from its
// bucket's cached prefixRank (invariant I4 already encodes the exact
// count of every strictly-higher-ranked bucket, so there is no need to
// re-walk the array from the top just to total it), then delegates to
// RanksByRange for the window — reusing its skip-and-seek, hand-over-hand
// walk rather than duplicating it.
func (idx *BucketedIndex) RanksByCustomer(customerID int64, high, low int64) []RankedEntry {
	score, ok := idx.scores.get(customerID)
	if !ok || score <= 0 {
		return nil
	}

	key := bucketKeyOf(score)
	b := idx.buckets[key]

	b.mu.RLock()
	rankWithin, found := b.tree.RankOf(ranktree.Entry{Score: score, CustomerID: customerID})
	if !found {
		b.mu.RUnlock()
		panic("leaderboard: corrupted ranked index — ranked customer missing from its bucket")
	}
	r := b.prefixRank + rankWithin
	b.mu.RUnlock()

	lo := r - high
	if lo < 1 {
		lo = 1
	}
	return idx.RanksByRange(lo, r+low)
}
