package store

// DefaultBatchSize is the number of updates between automatic saves.
const DefaultBatchSize = 5

// batch counts updates since the last successful save.
type batch struct {
	size  int
	count int
}

// increment records one update and reports whether a save is due.
func (b *batch) increment() bool {
	b.count++
	return b.count >= b.size
}

func (b *batch) reset() {
	b.count = 0
}
