package leaderboard

// NumBuckets is the fixed number of score-range shards, indexed 0..31
// descending by score. Bucket 0 is the non-positive-score sentinel and is
// never inserted into.
const NumBuckets = 32

// upperBound[k] is the inclusive upper bound of bucket k's score range, for
// k in [1, NumBuckets-1]. Bucket k's range is (upperBound[k-1],
// upperBound[k]], with upperBound[0] treated as 0. Bucket NumBuckets-1 has
// no upper bound — it covers everything above upperBound[NumBuckets-2].
//
// The table uses a fixed tiering policy: 9 buckets of width 5,000 up to
// 45,000; 9 of width 50,000 up to 450,000; 9 of width 500,000 up to
// 4,500,000; three wide buckets at 5M, 10M and 20M; and a catch-all above
// 20M. Every range exceeds the maximum per-update delta magnitude (1000),
// so a single update can never skip more than one bucket boundary.
var upperBound = buildUpperBounds()

func buildUpperBounds() [NumBuckets]int64 {
	var b [NumBuckets]int64

	for i := 1; i <= 9; i++ {
		b[i] = int64(i) * 5_000
	}
	for i := 1; i <= 9; i++ {
		b[9+i] = int64(i) * 50_000
	}
	for i := 1; i <= 9; i++ {
		b[18+i] = int64(i) * 500_000
	}
	b[28] = 5_000_000
	b[29] = 10_000_000
	b[30] = 20_000_000
	// b[31] is unused: bucket 31 is the open-ended catch-all.

	return b
}

// bucketKeyOf maps a score to its bucket key in [0, NumBuckets-1]. Key 0
// covers score <= 0. Keys increase with score; key NumBuckets-1 covers
// score > 20,000,000.
func bucketKeyOf(score int64) int {
	if score <= 0 {
		return 0
	}
	for k := 1; k < NumBuckets-1; k++ {
		if score <= upperBound[k] {
			return k
		}
	}
	return NumBuckets - 1
}
