package fabric

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/vietddude/mpath/internal/core/domain"
	"github.com/vietddude/mpath/internal/core/worker"
	"github.com/vietddude/mpath/internal/metrics"
)

// Controller is one association between the host and a subsystem.
type Controller struct {
	id        string
	name      string
	instance  int
	cntlid    uint16
	vwc       bool
	host      *Host
	subsys    *Subsystem
	transport Transport
	log       *slog.Logger

	state      atomic.Int32
	nextCookie atomic.Uint64

	mu         sync.Mutex
	namespaces map[uint32]*Namespace

	ctx       context.Context
	cancel    context.CancelFunc
	resetWork *worker.Work
	wake      chan struct{}
}

func newController(h *Host, subsys *Subsystem, instance int, name string, cntlid uint16, vwc bool, t Transport) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		id:         uuid.NewString(),
		name:       name,
		instance:   instance,
		cntlid:     cntlid,
		vwc:        vwc,
		host:       h,
		subsys:     subsys,
		transport:  t,
		namespaces: make(map[uint32]*Namespace),
		ctx:        ctx,
		cancel:     cancel,
		wake:       make(chan struct{}, 1),
	}
	c.log = h.log.With("controller", name, "instance", instance)
	c.resetWork = worker.NewWork(c.reconnect)
	c.setStateMetric(domain.CtrlStateNew)
	return c
}

// ID returns the controller's unique id.
func (c *Controller) ID() string { return c.id }

// Name returns the configured controller name.
func (c *Controller) Name() string { return c.name }

// Instance returns the host-wide controller instance number.
func (c *Controller) Instance() int { return c.instance }

// CntlID returns the controller id within its subsystem.
func (c *Controller) CntlID() uint16 { return c.cntlid }

// Subsystem returns the owning subsystem.
func (c *Controller) Subsystem() *Subsystem { return c.subsys }

// VolatileWriteCache reports whether the controller has a volatile write cache.
func (c *Controller) VolatileWriteCache() bool { return c.vwc }

// State returns the current state.
func (c *Controller) State() domain.CtrlState {
	return domain.CtrlState(c.state.Load())
}

// ChangeState moves the controller to state to. It returns false, leaving
// the state untouched, when the transition is not allowed.
func (c *Controller) ChangeState(to domain.CtrlState) bool {
	for {
		from := c.State()
		if !domain.CanTransitionCtrl(from, to) {
			return false
		}
		if c.state.CompareAndSwap(int32(from), int32(to)) {
			c.setStateMetric(to)
			c.log.Info("Controller state changed", "from", from.String(), "to", to.String())
			return true
		}
	}
}

func (c *Controller) setStateMetric(s domain.CtrlState) {
	metrics.ControllerState.WithLabelValues(c.subsys.NQN(), c.name).Set(float64(s))
}

// Connect brings a new controller up and attaches its namespaces.
func (c *Controller) Connect(ctx context.Context) error {
	if !c.ChangeState(domain.CtrlStateConnecting) {
		return fmt.Errorf("controller %s: cannot connect from state %s", c.name, c.State())
	}
	if err := c.transport.Connect(ctx); err != nil {
		return fmt.Errorf("controller %s: connect: %w", c.name, err)
	}
	if c.ChangeState(domain.CtrlStateLive) {
		c.KickRequeueLists()
	}
	return c.Scan(ctx)
}

// Scan attaches every namespace the controller reports and detaches the
// ones it no longer reports.
func (c *Controller) Scan(ctx context.Context) error {
	infos, err := c.transport.Identify(ctx)
	if err != nil {
		return fmt.Errorf("controller %s: identify: %w", c.name, err)
	}

	seen := make(map[uint32]bool, len(infos))
	var errs error
	for _, info := range infos {
		seen[info.NSID] = true
		if _, err := c.subsys.attachNamespace(ctx, c, info); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("namespace %d: %w", info.NSID, err))
		}
	}
	for _, ns := range c.Namespaces() {
		if !seen[ns.NSID()] {
			c.subsys.detachNamespace(ctx, c, ns.NSID())
		}
	}
	return errs
}

// Reset starts recovery of the association. It never blocks; the
// reconnect runs on the controller's own worker.
func (c *Controller) Reset() {
	if !c.ChangeState(domain.CtrlStateResetting) {
		return
	}
	metrics.ControllerResets.WithLabelValues(c.subsys.NQN(), c.name, "scheduled").Inc()
	c.resetWork.Schedule()
}

// MarkLive reports that the target is reachable. A controller that is
// reconnecting retries immediately instead of waiting out its backoff.
func (c *Controller) MarkLive() {
	switch c.State() {
	case domain.CtrlStateResetting, domain.CtrlStateConnecting:
		select {
		case c.wake <- struct{}{}:
		default:
		}
		c.resetWork.Schedule()
	}
}

// KickRequeueLists schedules a requeue drain on every head this controller
// provides a path to.
func (c *Controller) KickRequeueLists() {
	for _, ns := range c.Namespaces() {
		if ns.head.HasDisk() {
			ns.head.ScheduleRequeue()
		}
	}
}

// reconnect retries the transport with exponential backoff until it comes
// back, the controller leaves the reconnecting states, or attempts run out.
func (c *Controller) reconnect() {
	cfg := c.host.opts.Reconnect
	clk := c.host.opts.Clock

	// A kick may arrive after a previous run already reconnected.
	if !c.reconnecting() {
		return
	}
	if err := c.transport.Disconnect(); err != nil {
		c.log.Debug("Disconnect failed", "error", err)
	}

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if c.ctx.Err() != nil || !c.reconnecting() {
			return
		}

		err := c.transport.Connect(c.ctx)
		if err == nil {
			if c.ChangeState(domain.CtrlStateLive) {
				metrics.ControllerResets.WithLabelValues(c.subsys.NQN(), c.name, "success").Inc()
				c.KickRequeueLists()
			}
			return
		}
		metrics.ControllerResets.WithLabelValues(c.subsys.NQN(), c.name, "failure").Inc()

		delay := calculateBackoff(attempt, cfg)
		c.log.Warn("Reconnect failed",
			"attempt", attempt+1,
			"max_attempts", cfg.MaxAttempts,
			"retry_in", delay,
			"error", err,
		)

		select {
		case <-c.ctx.Done():
			return
		case <-c.wake:
		case <-clk.After(delay):
		}
	}

	metrics.ControllerResets.WithLabelValues(c.subsys.NQN(), c.name, "exhausted").Inc()
	c.log.Error("Reconnect attempts exhausted", "attempts", cfg.MaxAttempts)
}

func (c *Controller) reconnecting() bool {
	s := c.State()
	return s == domain.CtrlStateResetting || s == domain.CtrlStateConnecting
}

// Delete detaches every namespace and shuts the controller down for good.
func (c *Controller) Delete(ctx context.Context) error {
	if c.State() == domain.CtrlStateDead {
		return nil
	}
	if !c.ChangeState(domain.CtrlStateDeleting) && c.State() != domain.CtrlStateNew {
		return fmt.Errorf("controller %s: cannot delete from state %s", c.name, c.State())
	}

	c.stop()
	for _, ns := range c.Namespaces() {
		c.subsys.detachNamespace(ctx, c, ns.NSID())
	}

	err := c.transport.Close()
	if !c.ChangeState(domain.CtrlStateDead) {
		// Never connected: skip straight to dead.
		c.state.Store(int32(domain.CtrlStateDead))
		c.setStateMetric(domain.CtrlStateDead)
	}
	c.subsys.removeController(c)
	c.log.Info("Controller deleted")
	return err
}

func (c *Controller) stop() {
	c.cancel()
	c.resetWork.Stop()
}

// Namespaces returns the controller's namespaces ordered by NSID.
func (c *Controller) Namespaces() []*Namespace {
	c.mu.Lock()
	out := make([]*Namespace, 0, len(c.namespaces))
	for _, ns := range c.namespaces {
		out = append(out, ns)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].NSID() < out[j].NSID() })
	return out
}

func (c *Controller) namespace(nsid uint32) (*Namespace, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ns, ok := c.namespaces[nsid]
	return ns, ok
}

func (c *Controller) addNamespace(ns *Namespace) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.namespaces[ns.NSID()] = ns
}

func (c *Controller) takeNamespace(nsid uint32) (*Namespace, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ns, ok := c.namespaces[nsid]
	if ok {
		delete(c.namespaces, nsid)
	}
	return ns, ok
}
