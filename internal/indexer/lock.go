package indexer

import "sync/atomic"

// IndexLock serializes indexing runs without blocking. A second run, from the
// watcher or the index_rules tool, fails fast instead of queueing behind the
// first.
type IndexLock struct {
	state atomic.Int32 // 0 = free, 1 = held
}

// TryAcquire takes the lock and reports whether it succeeded
func (l *IndexLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release frees the lock. Only the holder may call it.
func (l *IndexLock) Release() {
	l.state.Store(0)
}

// Held reports whether a run is in progress
func (l *IndexLock) Held() bool {
	return l.state.Load() == 1
}
