// Package mpath routes block I/O for a namespace reachable through several
// controllers.
//
// This package contains:
//   - Head: the path-independent namespace, its path set and aggregate disk
//   - Path selection with a lock-free cached current path
//   - Failure classification of completed requests
//   - The requeue pipeline that absorbs path failures and resubmits I/O
package mpath

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/google/uuid"
	catrate "github.com/joeycumines/go-catrate"

	"github.com/vietddude/mpath/internal/core/domain"
	"github.com/vietddude/mpath/internal/core/worker"
	"github.com/vietddude/mpath/internal/infra/block"
	"github.com/vietddude/mpath/internal/metrics"
)

var (
	// ErrNoPath is returned for bios submitted to a head with no paths.
	ErrNoPath = fmt.Errorf("no path available: %w", domain.ErrIO)

	// ErrAllocDisk is returned when the aggregate disk could not be set up.
	ErrAllocDisk = errors.New("failed to allocate multipath disk")
)

// Config holds multipath settings read when a head is created.
type Config struct {
	// Enabled turns on aggregate devices for shared namespaces.
	Enabled bool
	Policy  Policy

	// DiagWindow and DiagBurst rate limit "no path" warnings per head.
	DiagWindow time.Duration
	DiagBurst  int
}

// DefaultConfig enables multipath with first-live selection.
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		Policy:     PolicyFirstLive,
		DiagWindow: 5 * time.Second,
		DiagBurst:  10,
	}
}

// Options are the collaborators and identity of a new head.
type Options struct {
	Instance int
	NSID     uint32
	UUID     uuid.UUID
	NGUID    string
	EUI64    string

	Subsystem   Subsystem
	Controllers ControllerTable
	Registry    *block.Registry
	Publisher   AttrPublisher

	Config Config
	Logger *slog.Logger
}

// Head is the aggregate identity of a namespace shared by several controllers.
type Head struct {
	name     string
	instance int
	nsid     uint32
	uuid     uuid.UUID
	nguid    string
	eui64    string

	subsys    Subsystem
	ctrls     ControllerTable
	registry  *block.Registry
	publisher AttrPublisher
	cfg       Config
	log       *slog.Logger
	diag      *catrate.Limiter

	// mu serializes path set writers; readers use paths and current only.
	mu      sync.Mutex
	paths   atomic.Pointer[pathSet]
	current atomic.Pointer[Path]
	srcu    srcu

	requeueMu   sync.Mutex
	requeue     *queue.Queue
	closed      bool
	requeueWork *worker.Work

	lifeMu    sync.Mutex
	disk      atomic.Pointer[block.Disk]
	published atomic.Bool
}

// NewHead creates a head with an empty path set and an empty requeue list.
func NewHead(opts Options) *Head {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.UUID == uuid.Nil {
		opts.UUID = uuid.New()
	}
	if opts.Config.Policy == "" {
		opts.Config.Policy = PolicyFirstLive
	}

	subsysInstance := 0
	if opts.Subsystem != nil {
		subsysInstance = opts.Subsystem.Instance()
	}
	name := fmt.Sprintf("nvme%dn%d", subsysInstance, opts.Instance)

	h := &Head{
		name:      name,
		instance:  opts.Instance,
		nsid:      opts.NSID,
		uuid:      opts.UUID,
		nguid:     opts.NGUID,
		eui64:     opts.EUI64,
		subsys:    opts.Subsystem,
		ctrls:     opts.Controllers,
		registry:  opts.Registry,
		publisher: opts.Publisher,
		cfg:       opts.Config,
		log:       log.With("head", name),
		requeue:   queue.New(),
	}
	if opts.Config.DiagBurst > 0 && opts.Config.DiagWindow > 0 {
		h.diag = catrate.NewLimiter(map[time.Duration]int{
			opts.Config.DiagWindow: opts.Config.DiagBurst,
		})
	}
	empty := pathSet{}
	h.paths.Store(&empty)
	h.requeueWork = worker.NewWork(h.drainRequeue)
	return h
}

// Name returns the head's device name.
func (h *Head) Name() string { return h.name }

// Instance returns the head's instance number within its subsystem.
func (h *Head) Instance() int { return h.instance }

// NSID returns the namespace id.
func (h *Head) NSID() uint32 { return h.nsid }

// Disk returns the aggregate disk, nil when aggregation is not in use.
func (h *Head) Disk() *block.Disk { return h.disk.Load() }

// HasDisk reports whether the head owns an aggregate disk.
func (h *Head) HasDisk() bool { return h.disk.Load() != nil }

// Paths returns the current path set in order.
func (h *Head) Paths() []*Path {
	set := *h.paths.Load()
	out := make([]*Path, len(set))
	copy(out, set)
	return out
}

// CurrentPath returns the cached path without validating it.
func (h *Head) CurrentPath() *Path {
	return h.current.Load()
}

// AddPath appends p to the path set.
func (h *Head) AddPath(p *Path) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := *h.paths.Load()
	if set.contains(p) {
		return
	}
	p.routed = metrics.BiosRouted.WithLabelValues(h.name, p.Name())
	next := set.with(p)
	h.paths.Store(&next)
	h.log.Info("Path added", "path", p.Name(), "controller", p.CtrlID, "paths", len(next))
}

// RemovePath drops p from the path set. When it returns no router is still
// using p, so the caller may tear the path's queue down. It reports how many
// paths remain.
func (h *Head) RemovePath(p *Path) int {
	h.mu.Lock()
	next, found := (*h.paths.Load()).without(p)
	if found {
		h.paths.Store(&next)
	}
	h.mu.Unlock()

	if !found {
		return len(next)
	}

	h.current.CompareAndSwap(p, nil)
	h.srcu.synchronize()
	// A reader holding the old set may have cached p before it finished, and
	// a newer reader may have picked it up from the cache. Clear it and wait
	// out those readers too.
	h.current.CompareAndSwap(p, nil)
	h.srcu.synchronize()

	h.log.Info("Path removed", "path", p.Name(), "controller", p.CtrlID, "paths", len(next))
	return len(next)
}

// Identity returns the attributes exposed for the head's disk.
func (h *Head) Identity() Identity {
	id := Identity{
		Name:  h.name,
		NSID:  h.nsid,
		UUID:  h.uuid.String(),
		NGUID: h.nguid,
		EUI64: h.eui64,
	}
	if h.subsys != nil {
		id.Subsystem = h.subsys.Instance()
	}
	for _, p := range h.Paths() {
		id.Paths = append(id.Paths, p.Name())
	}
	return id
}

func (h *Head) live(p *Path) bool {
	if h.ctrls == nil {
		return false
	}
	c, ok := h.ctrls.Controller(p.CtrlID)
	return ok && c.State() == domain.CtrlStateLive
}

// diagWarn logs a warning subject to the head's diagnostic rate limit.
func (h *Head) diagWarn(kind, msg string, args ...any) {
	if _, ok := h.diag.Allow(kind); !ok {
		return
	}
	h.log.Warn(msg, args...)
}
