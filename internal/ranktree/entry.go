// Package ranktree implements the order-statistic structure backing each
// leaderboard bucket: a skip list over (score, customerId) pairs that
// supports O(log n) rank-of-value and value-at-rank queries.
package ranktree

// Entry is an immutable (score, customerId) pair. Entries are compared by
// descending score, then ascending customerId, so iteration order is the
// global ranking order within a single bucket.
type Entry struct {
	Score      int64
	CustomerID int64
}

// Less reports whether e sorts strictly before other under the ranking
// order: higher score first, ties broken by lower customerId first.
func (e Entry) Less(other Entry) bool {
	if e.Score != other.Score {
		return e.Score > other.Score
	}
	return e.CustomerID < other.CustomerID
}

// Equal reports whether e and other are the same entry.
func (e Entry) Equal(other Entry) bool {
	return e.Score == other.Score && e.CustomerID == other.CustomerID
}
