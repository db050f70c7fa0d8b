// Package leaderboard implements the ranked index: a concurrent structure
// mapping customer identifiers to scores while simultaneously exposing a
// totally ordered ranking over all positive-scored customers.
//
// Two implementations satisfy the same Index contract — BucketedIndex, the
// primary fine-grained-locking design, and SnapshotIndex, a higher-write-
// throughput, eventually-consistent alternative. Which one a process runs
// is a startup-time configuration choice (internal/config), not a runtime
// one; both are represented behind the single Index interface rather than
// dynamic dispatch over a type switch scattered through callers.
package leaderboard

// RankedEntry is one row of a ranking query result: a customer, their
// current score, and their 1-based global rank.
type RankedEntry struct {
	CustomerID int64
	Score      int64
	Rank       int64
}

// Index is the programmatic surface of the ranked index, satisfied by
// both BucketedIndex and SnapshotIndex.
type Index interface {
	// Update applies delta to customerId's accumulated score and returns
	// the new total. customerId must be positive; delta must be in
	// [-1000, 1000] — both preconditions are the caller's responsibility,
	// enforced at the HTTP boundary rather than inside the core.
	Update(customerID, delta int64) int64

	// BulkLoad sets every customer in scores to their given absolute
	// score and rebuilds whatever derived ranking structures the
	// implementation caches, in one pass. It is for startup warm-load
	// only — scores arrive as arbitrary totals, not bounded deltas, so
	// callers must not call BulkLoad concurrently with Update and must
	// not rely on it to preserve per-update invariants like the
	// [-1000, 1000] delta bound.
	BulkLoad(scores map[int64]int64)

	// RanksByRange returns entries at global ranks in [start, end]
	// inclusive, 1-based, ascending by rank. Empty if end < start or
	// start exceeds the total ranked population.
	RanksByRange(start, end int64) []RankedEntry

	// RanksByCustomer finds customerId's global rank R and returns
	// entries at ranks [max(1, R-high), R+low]. Empty if the customer is
	// unknown or has a non-positive score.
	RanksByCustomer(customerID int64, high, low int64) []RankedEntry

	// Close releases any background resources (SnapshotIndex's rebuild
	// loop). BucketedIndex's Close is a no-op.
	Close()
}
