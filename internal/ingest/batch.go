package ingest

import "iter"

// DefaultBatchSize is used when the caller does not pick one.
const DefaultBatchSize = 100

// Batches yields consecutive groups of at most size rows. The last group
// may be shorter and no rows yield no groups. A size below one falls back
// to DefaultBatchSize.
func Batches(rows []Row, size int) iter.Seq[[]Row] {
	if size < 1 {
		size = DefaultBatchSize
	}
	return func(yield func([]Row) bool) {
		for start := 0; start < len(rows); start += size {
			end := min(start+size, len(rows))
			if !yield(rows[start:end:end]) {
				return
			}
		}
	}
}
