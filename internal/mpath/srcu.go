package mpath

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// srcu hands out read-side tokens. A writer that unpublished a value calls
// synchronize, which returns once every token taken before the call has been
// released. Readers never block and never take a lock.
type srcu struct {
	mu    sync.Mutex
	epoch atomic.Uint32
	count [2]atomic.Int64
}

// readLock enters a read-side section and returns the token to release.
func (s *srcu) readLock() int {
	for {
		idx := int(s.epoch.Load() & 1)
		s.count[idx].Add(1)
		if int(s.epoch.Load()&1) == idx {
			return idx
		}
		// Epoch flipped under us; retry on the new one so synchronize
		// never misses this reader.
		s.count[idx].Add(-1)
	}
}

func (s *srcu) readUnlock(idx int) {
	s.count[idx].Add(-1)
}

// synchronize waits for all readers that entered before the call.
func (s *srcu) synchronize() {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := int(s.epoch.Add(1)-1) & 1
	for spins := 0; s.count[old].Load() != 0; spins++ {
		if spins < 64 {
			runtime.Gosched()
			continue
		}
		time.Sleep(50 * time.Microsecond)
	}
}
