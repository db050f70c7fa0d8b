package leaderboard

import (
	"sort"
	"sync"
	"time"

	rbt "github.com/emirpasic/gods/v2/trees/redblacktree"
	"github.com/sirupsen/logrus"

	"leaderboard/internal/ranktree"
)

// DefaultSnapshotTimeSliceMS is the background rebuild loop's default
// sleep interval.
const DefaultSnapshotTimeSliceMS = 100

// coarseBucket shards the snapshot's coarse ordered index by
// score/100 (rounded toward -infinity).
type coarseBucket struct {
	key  int64
	tree *ranktree.Tree
}

type pendingDelta struct {
	customerID int64
	delta      int64
}

type prefixSumEntry struct {
	startingRank int64
	bucketKey    int64
	bucket       *coarseBucket
}

// SnapshotIndex trades read freshness for write throughput: updates are
// buffered on a queue and applied to the tentative realtime map
// synchronously, while a single background worker periodically coalesces
// the queue, mutates a coarse bucketed structure under one global write
// lock, and rebuilds prefix-sum read caches. Reads observe whatever the
// last rebuild produced — eventually, not strictly, consistent with
// acknowledged writes.
type SnapshotIndex struct {
	realtime *scoreMap

	pendingCh chan pendingDelta

	mu               sync.RWMutex // guards everything below
	committedScores  map[int64]int64
	buckets          *rbt.Tree[int64, *coarseBucket]
	prefixSums       []prefixSumEntry
	prefixSumsByKey  map[int64]int64
	rankByCustomerID map[int64]int64

	timeSlice time.Duration
	stopCh    chan struct{}
	doneCh    chan struct{}
	log       *logrus.Entry
}

var _ Index = (*SnapshotIndex)(nil)

// NewSnapshotIndex constructs a SnapshotIndex and starts its background
// rebuild loop. timeSliceMS <= 0 selects DefaultSnapshotTimeSliceMS.
func NewSnapshotIndex(timeSliceMS int, log *logrus.Entry) *SnapshotIndex {
	if timeSliceMS <= 0 {
		timeSliceMS = DefaultSnapshotTimeSliceMS
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	idx := &SnapshotIndex{
		realtime:         newScoreMap(),
		pendingCh:        make(chan pendingDelta, 1<<16),
		committedScores:  make(map[int64]int64),
		buckets:          rbt.NewWith[int64, *coarseBucket](descendingInt64),
		prefixSumsByKey:  make(map[int64]int64),
		rankByCustomerID: make(map[int64]int64),
		timeSlice:        time.Duration(timeSliceMS) * time.Millisecond,
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
		log:              log,
	}
	go idx.rebuildLoop()
	return idx
}

func descendingInt64(a, b int64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	default:
		return 0
	}
}

func coarseBucketKeyOf(score int64) int64 {
	// Floor division toward -infinity. Negative scores never reach a
	// real bucket since only positive scores are ranked, but the
	// rounding direction still has to be defined as scores approach
	// zero from below.
	if score >= 0 {
		return score / 100
	}
	return -((-score + 99) / 100)
}

// Update applies delta to the realtime map synchronously and enqueues the
// delta for the next background rebuild.
func (idx *SnapshotIndex) Update(customerID, delta int64) int64 {
	_, newScore := idx.realtime.apply(customerID, delta)
	idx.pendingCh <- pendingDelta{customerID: customerID, delta: delta}
	return newScore
}

// BulkLoad sets every customer in scores to their given absolute score,
// inserts each into the coarse index directly, and rebuilds the read
// caches once at the end. Intended for startup warm-load before the
// index serves traffic; concurrent Update calls during a BulkLoad are
// not supported.
func (idx *SnapshotIndex) BulkLoad(scores map[int64]int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for customerID, score := range scores {
		idx.realtime.set(customerID, score)
		idx.committedScores[customerID] = score

		if score <= 0 {
			continue
		}
		key := coarseBucketKeyOf(score)
		b, ok := idx.buckets.Get(key)
		if !ok {
			b = &coarseBucket{key: key, tree: ranktree.New()}
			idx.buckets.Put(key, b)
		}
		b.tree.Insert(ranktree.Entry{Score: score, CustomerID: customerID})
	}

	idx.rebuildCaches()
}

// Close stops the background rebuild loop, finishing any rebuild already
// in progress.
func (idx *SnapshotIndex) Close() {
	close(idx.stopCh)
	<-idx.doneCh
}

func (idx *SnapshotIndex) rebuildLoop() {
	defer close(idx.doneCh)
	ticker := time.NewTicker(idx.timeSlice)
	defer ticker.Stop()

	for {
		select {
		case <-idx.stopCh:
			return
		case <-ticker.C:
			idx.rebuildOnce()
		}
	}
}

// rebuildOnce drains the pending queue, coalesces deltas by customerId,
// applies the net deltas to the coarse index under the global write
// lock, and rebuilds the read-only caches. An unexpected panic here is
// logged and swallowed rather than propagated: the drained deltas are
// already applied to committedScores by the time a post-drain step could
// fail, so nothing is silently lost; only cache-rebuild bugs are at
// risk, and those self-heal on the next tick once the underlying bug is
// fixed.
func (idx *SnapshotIndex) rebuildOnce() {
	defer func() {
		if r := recover(); r != nil {
			idx.log.WithField("panic", r).Error("snapshot rebuild failed, will retry next tick")
		}
	}()

	net := idx.drainQueue()
	if len(net) == 0 {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	for customerID, delta := range net {
		oldScore := idx.committedScores[customerID]
		newScore := oldScore + delta
		idx.committedScores[customerID] = newScore
		idx.moveCoarseEntry(customerID, oldScore, newScore)
	}

	idx.rebuildCaches()
}

func (idx *SnapshotIndex) drainQueue() map[int64]int64 {
	net := make(map[int64]int64)
	for {
		select {
		case pd := <-idx.pendingCh:
			net[pd.customerID] += pd.delta
		default:
			return net
		}
	}
}

func (idx *SnapshotIndex) moveCoarseEntry(customerID, oldScore, newScore int64) {
	oldKey := int64(0)
	oldRanked := oldScore > 0
	if oldRanked {
		oldKey = coarseBucketKeyOf(oldScore)
	}
	newRanked := newScore > 0
	newKey := int64(0)
	if newRanked {
		newKey = coarseBucketKeyOf(newScore)
	}

	if oldRanked && (!newRanked || oldKey != newKey) {
		if b, ok := idx.buckets.Get(oldKey); ok {
			b.tree.Remove(ranktree.Entry{Score: oldScore, CustomerID: customerID})
			if b.tree.Size() == 0 {
				idx.buckets.Remove(oldKey)
			}
		}
	}
	if !newRanked {
		return
	}
	if oldRanked && oldKey == newKey {
		b, _ := idx.buckets.Get(newKey)
		b.tree.Remove(ranktree.Entry{Score: oldScore, CustomerID: customerID})
		b.tree.Insert(ranktree.Entry{Score: newScore, CustomerID: customerID})
		return
	}

	b, ok := idx.buckets.Get(newKey)
	if !ok {
		b = &coarseBucket{key: newKey, tree: ranktree.New()}
		idx.buckets.Put(newKey, b)
	}
	b.tree.Insert(ranktree.Entry{Score: newScore, CustomerID: customerID})
}

// rebuildCaches walks the coarse index highest-score-first, rebuilding
// prefixSums, prefixSumsByKey and rankByCustomerID in one pass. Must be
// called with mu held for write.
func (idx *SnapshotIndex) rebuildCaches() {
	idx.prefixSums = idx.prefixSums[:0]
	idx.prefixSumsByKey = make(map[int64]int64, len(idx.prefixSumsByKey))
	idx.rankByCustomerID = make(map[int64]int64, len(idx.rankByCustomerID))

	var rank int64
	it := idx.buckets.Iterator()
	for it.Next() {
		b := it.Value()
		idx.prefixSums = append(idx.prefixSums, prefixSumEntry{
			startingRank: rank + 1,
			bucketKey:    b.key,
			bucket:       b,
		})
		idx.prefixSumsByKey[b.key] = rank + 1

		entries := b.tree.RangeByRank(1, b.tree.Size())
		for _, e := range entries {
			rank++
			idx.rankByCustomerID[e.CustomerID] = rank
		}
	}
}

// RanksByRange binary-searches prefixSums for the bucket containing
// start, then iterates forward emitting entries in [start, end].
func (idx *SnapshotIndex) RanksByRange(start, end int64) []RankedEntry {
	if end < start {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := len(idx.prefixSums)
	if n == 0 {
		return nil
	}

	i := sort.Search(n, func(i int) bool {
		next := int64(1) << 62
		if i+1 < n {
			next = idx.prefixSums[i+1].startingRank
		}
		return next > start
	})
	if i >= n {
		return nil
	}

	var results []RankedEntry
	for ; i < n; i++ {
		ps := idx.prefixSums[i]
		size := ps.bucket.tree.Size()
		bucketLo := ps.startingRank
		bucketHi := ps.startingRank + size - 1
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

		withinLo := loRank - bucketLo + 1
		withinHi := hiRank - bucketLo + 1
		for j, e := range ps.bucket.tree.RangeByRank(withinLo, withinHi) {
			results = append(results, RankedEntry{
				CustomerID: e.CustomerID,
				Score:      e.Score,
				Rank:       loRank + int64(j),
			})
		}
	}
	return results
}

// RanksByCustomer anchors on rankByCustomerID for O(1) lookup of the
// customer's last-rebuilt rank, then delegates to RanksByRange for the
// window.
func (idx *SnapshotIndex) RanksByCustomer(customerID int64, high, low int64) []RankedEntry {
	idx.mu.RLock()
	r, ok := idx.rankByCustomerID[customerID]
	idx.mu.RUnlock()
	if !ok {
		return nil
	}

	lo := r - high
	if lo < 1 {
		lo = 1
	}
	return idx.RanksByRange(lo, r+low)
}
