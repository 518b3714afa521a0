// Package fabric manages the controllers and namespaces that feed the
// multipath core.
//
// This package contains:
//   - Host: owns subsystems, instance numbering and shutdown
//   - Subsystem: a controller group and its namespace heads
//   - Controller: connection state machine, reconnect and requeue kicks
//   - Namespace: one namespace seen through one controller (a path)
package fabric

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/vietddude/mpath/internal/infra/block"
	"github.com/vietddude/mpath/internal/mpath"
)

// HostOptions configure a Host.
type HostOptions struct {
	Multipath mpath.Config
	Reconnect ReconnectConfig

	Registry  *block.Registry
	Publisher mpath.AttrPublisher
	Clock     clock.Clock
	Logger    *slog.Logger
}

// Host is the local side of every controller association.
type Host struct {
	opts HostOptions
	log  *slog.Logger

	mu             sync.Mutex
	subsystems     map[string]*Subsystem
	nextSubsys     int
	nextController int
}

// NewHost creates a host with no subsystems.
func NewHost(opts HostOptions) *Host {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Registry == nil {
		opts.Registry = block.NewRegistry(opts.Logger)
	}
	if opts.Publisher == nil {
		opts.Publisher = mpath.NopPublisher{}
	}
	if opts.Reconnect.MaxAttempts == 0 {
		opts.Reconnect = DefaultReconnectConfig
	}
	return &Host{
		opts:       opts,
		log:        opts.Logger,
		subsystems: make(map[string]*Subsystem),
	}
}

// Registry returns the block registry disks are published to.
func (h *Host) Registry() *block.Registry {
	return h.opts.Registry
}

// AddSubsystem returns the subsystem for nqn, creating it on first use.
func (h *Host) AddSubsystem(nqn string, cmic uint8) *Subsystem {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok := h.subsystems[nqn]; ok {
		return s
	}
	s := newSubsystem(h, h.nextSubsys, nqn, cmic)
	h.nextSubsys++
	h.subsystems[nqn] = s
	h.log.Info("Subsystem added", "nqn", nqn, "instance", s.Instance(), "shared", s.SharedNamespaces())
	return s
}

// Subsystem looks up a subsystem by NQN.
func (h *Host) Subsystem(nqn string) (*Subsystem, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.subsystems[nqn]
	return s, ok
}

// Subsystems returns all subsystems ordered by instance.
func (h *Host) Subsystems() []*Subsystem {
	h.mu.Lock()
	out := make([]*Subsystem, 0, len(h.subsystems))
	for _, s := range h.subsystems {
		out = append(out, s)
	}
	h.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Instance() < out[j].Instance() })
	return out
}

// AddController creates a controller in subsys over transport. The
// controller starts in the New state; call Connect to bring it up.
func (h *Host) AddController(subsys *Subsystem, name string, cntlid uint16, vwc bool, transport Transport) (*Controller, error) {
	if transport == nil {
		return nil, fmt.Errorf("controller %s: transport is required", name)
	}

	h.mu.Lock()
	instance := h.nextController
	h.nextController++
	h.mu.Unlock()

	c := newController(h, subsys, instance, name, cntlid, vwc, transport)
	if err := subsys.addController(c); err != nil {
		c.stop()
		return nil, err
	}
	return c, nil
}

// Shutdown deletes every controller. Heads go away with their last path.
func (h *Host) Shutdown(ctx context.Context) error {
	var errs error
	for _, s := range h.Subsystems() {
		for _, c := range s.Controllers() {
			errs = multierr.Append(errs, c.Delete(ctx))
		}
	}
	return errs
}
