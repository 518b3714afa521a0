package domain

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Op is the kind of I/O a bio performs.
type Op uint8

const (
	OpRead Op = iota
	OpWrite
	OpFlush
)

func (o Op) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpFlush:
		return "flush"
	default:
		return "unknown"
	}
}

// BioFlags are per-bio routing flags.
type BioFlags uint32

// BioMultipath marks a bio that was routed through a namespace head.
const BioMultipath BioFlags = 1 << 0

// Bio is a single I/O buffer travelling through the block layer.
//
// A bio is owned by exactly one party at a time (the submitter, a queue, a
// request or a requeue list), so Target and Flags are not synchronized.
type Bio struct {
	ID     uuid.UUID
	Op     Op
	Sector uint64
	Data   []byte

	// Target is the name of the disk the bio is currently routed to.
	Target string
	Flags  BioFlags

	err   error
	endIO func(*Bio, error)
	ended atomic.Bool
}

// NewBio creates a bio aimed at target. endIO runs once when the bio ends.
func NewBio(op Op, sector uint64, data []byte, target string, endIO func(*Bio, error)) *Bio {
	return &Bio{
		ID:     uuid.New(),
		Op:     op,
		Sector: sector,
		Data:   data,
		Target: target,
		endIO:  endIO,
	}
}

// End completes the bio. Only the first call has any effect.
func (b *Bio) End(err error) {
	if !b.ended.CompareAndSwap(false, true) {
		return
	}
	b.err = err
	if b.endIO != nil {
		b.endIO(b, err)
	}
}

// Ended reports whether End has been called.
func (b *Bio) Ended() bool {
	return b.ended.Load()
}

// Err returns the error the bio ended with.
func (b *Bio) Err() error {
	return b.err
}

// RequestFlags are per-request flags.
type RequestFlags uint32

// ReqMultipath is inherited from BioMultipath when the request is built.
const ReqMultipath RequestFlags = 1 << 0

// Request is a unit of work executed by one path's queue. It carries the
// bios it was built from until it ends or they are stolen.
type Request struct {
	ID        uuid.UUID
	Flags     RequestFlags
	Status    Status
	StartedAt time.Time

	mu       sync.Mutex
	bios     []*Bio
	complete func(*Request)
	done     func(*Request)
	ended    atomic.Bool
}

// NewRequest builds a request from bios.
func NewRequest(bios ...*Bio) *Request {
	r := &Request{
		ID:        uuid.New(),
		StartedAt: time.Now(),
		bios:      bios,
	}
	for _, b := range bios {
		if b.Flags&BioMultipath != 0 {
			r.Flags |= ReqMultipath
		}
	}
	return r
}

// SetCompletion installs the hook Finish hands the request to.
func (r *Request) SetCompletion(fn func(*Request)) {
	r.complete = fn
}

// OnDone installs a callback that runs after the request ends.
func (r *Request) OnDone(fn func(*Request)) {
	r.done = fn
}

// Bios returns a snapshot of the attached bios.
func (r *Request) Bios() []*Bio {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Bio, len(r.bios))
	copy(out, r.bios)
	return out
}

// StealBios detaches every bio from the request and returns them in order.
func (r *Request) StealBios() []*Bio {
	r.mu.Lock()
	defer r.mu.Unlock()
	bios := r.bios
	r.bios = nil
	return bios
}

// Finish is called by the transport once the controller answered.
func (r *Request) Finish(status Status) {
	r.Status = status
	if r.complete != nil {
		r.complete(r)
		return
	}
	r.End(status)
}

// End completes the request and every bio still attached to it.
func (r *Request) End(status Status) {
	if !r.ended.CompareAndSwap(false, true) {
		return
	}
	r.Status = status
	err := status.Err()
	for _, b := range r.StealBios() {
		b.End(err)
	}
	if r.done != nil {
		r.done(r)
	}
}

// Ended reports whether End has been called.
func (r *Request) Ended() bool {
	return r.ended.Load()
}
