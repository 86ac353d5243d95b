package deploy

import "sync"

// sliceLocks serializes deploys per slice id within this process.
// Entries are kept for the life of the process; the map is bounded by
// the number of slices ever deployed.
type sliceLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newSliceLocks() *sliceLocks {
	return &sliceLocks{locks: make(map[int64]*sync.Mutex)}
}

// Lock acquires the mutex for a slice id and returns its unlock func.
func (l *sliceLocks) Lock(sliceID int64) func() {
	l.mu.Lock()
	m, ok := l.locks[sliceID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[sliceID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
