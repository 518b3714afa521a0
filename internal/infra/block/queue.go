// Package block is a small userspace model of a block layer.
//
// This package contains:
//   - Queue: request queue with a routing callback, a poll callback and
//     basic limits (block size, write cache, rotational)
//   - Disk: a named device backed by a Queue
//   - Registry: the set of visible disks and the generic submit entry point
package block

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/mpath/internal/core/domain"
)

var (
	// ErrQueueDying is returned for bios submitted after a queue started tearing down.
	ErrQueueDying = fmt.Errorf("queue is dying: %w", domain.ErrIO)

	// ErrNoDevice is returned for bios whose target is not a visible disk.
	ErrNoDevice = fmt.Errorf("no such device: %w", domain.ErrIO)

	// ErrNoMakeRequest is returned when a queue has no routing callback.
	ErrNoMakeRequest = errors.New("queue has no make_request function")
)

// Cookie identifies a submission for polling.
type Cookie uint64

// CookieNone is returned when a submission cannot be polled for.
const CookieNone Cookie = 0

// MakeRequestFunc routes a bio submitted to q.
type MakeRequestFunc func(q *Queue, bio *domain.Bio) Cookie

// PollFunc polls q for completions of the submission identified by cookie.
type PollFunc func(q *Queue, cookie Cookie) bool

// Limits are the queue properties advertised to submitters.
type Limits struct {
	LogicalBlockSize uint32
	WriteCache       bool
	FUA              bool
	NonRotational    bool
}

// Queue is a request queue. Callbacks are installed before the queue is
// exposed and are not changed afterwards.
type Queue struct {
	ID uint64

	// Data is the owner's private pointer (the head or namespace).
	Data any

	mu          sync.RWMutex
	limits      Limits
	makeRequest MakeRequestFunc
	poll        PollFunc

	dying    atomic.Bool
	inflight atomic.Int64
}

var queueIDs atomic.Uint64

// AllocQueue allocates an empty queue with a 512 byte logical block size.
func AllocQueue() *Queue {
	return &Queue{
		ID:     queueIDs.Add(1),
		limits: Limits{LogicalBlockSize: 512},
	}
}

// SetMakeRequest installs the routing callback.
func (q *Queue) SetMakeRequest(fn MakeRequestFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.makeRequest = fn
}

// SetPoll installs the poll callback.
func (q *Queue) SetPoll(fn PollFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.poll = fn
}

// SetLogicalBlockSize sets the logical block size in bytes.
func (q *Queue) SetLogicalBlockSize(size uint32) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.limits.LogicalBlockSize = size
}

// SetWriteCache advertises a volatile write cache and FUA support.
func (q *Queue) SetWriteCache(wc, fua bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.limits.WriteCache = wc
	q.limits.FUA = fua
}

// SetNonRotational marks the queue as backed by non-rotational media.
func (q *Queue) SetNonRotational(nonrot bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.limits.NonRotational = nonrot
}

// Limits returns a copy of the queue limits.
func (q *Queue) Limits() Limits {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.limits
}

// SetDying marks the queue as terminating. New submissions fail from now on;
// submissions already inside the routing callback are allowed to finish.
func (q *Queue) SetDying() {
	q.dying.Store(true)
}

// Dying reports whether SetDying was called.
func (q *Queue) Dying() bool {
	return q.dying.Load()
}

// Submit hands bio to the routing callback.
func (q *Queue) Submit(bio *domain.Bio) Cookie {
	q.inflight.Add(1)
	defer q.inflight.Add(-1)

	if q.dying.Load() {
		bio.End(ErrQueueDying)
		return CookieNone
	}

	q.mu.RLock()
	fn := q.makeRequest
	q.mu.RUnlock()
	if fn == nil {
		bio.End(fmt.Errorf("%w: %w", ErrNoMakeRequest, domain.ErrIO))
		return CookieNone
	}
	return fn(q, bio)
}

// Poll runs the poll callback, if any.
func (q *Queue) Poll(cookie Cookie) bool {
	q.mu.RLock()
	fn := q.poll
	q.mu.RUnlock()
	if fn == nil {
		return false
	}
	return fn(q, cookie)
}

// Cleanup marks the queue dying and waits for submissions that were already
// inside the routing callback.
func (q *Queue) Cleanup() {
	q.SetDying()
	for q.inflight.Load() > 0 {
		time.Sleep(time.Millisecond)
	}
}
