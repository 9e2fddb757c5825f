package engine

import "sync/atomic"

// Tracker counts completed transfers across workers. Counting is kept apart
// from the pool's join barrier: incrementing never blocks a worker, and the
// final read happens only after Wait returns, so it never races the counter.
type Tracker struct {
	files atomic.Int64
	bytes atomic.Int64
}

// Add records one successfully transferred item of the given size.
func (t *Tracker) Add(bytes int64) {
	t.files.Add(1)
	t.bytes.Add(bytes)
}

// Files returns the number of completed transfers.
func (t *Tracker) Files() int64 { return t.files.Load() }

// Bytes returns the total bytes moved by completed transfers.
func (t *Tracker) Bytes() int64 { return t.bytes.Load() }
