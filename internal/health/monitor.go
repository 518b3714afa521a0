package health

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/vietddude/mpath/internal/core/domain"
	"github.com/vietddude/mpath/internal/fabric"
	"github.com/vietddude/mpath/internal/mpath"
)

// Fabric lists the subsystems to report on.
type Fabric interface {
	Subsystems() []*fabric.Subsystem
}

// Monitor aggregates path and controller health across all heads.
type Monitor struct {
	fabric  Fabric
	clock   clock.Clock
	minAge  time.Duration
	mu      sync.Mutex
	checked time.Time
	last    *HealthReport
}

// NewMonitor creates a new health monitor. A report younger than minAge is
// returned again instead of being rebuilt.
func NewMonitor(f Fabric, clk clock.Clock, minAge time.Duration) *Monitor {
	if clk == nil {
		clk = clock.New()
	}
	return &Monitor{fabric: f, clock: clk, minAge: minAge}
}

// CheckHealth builds a report for every head.
func (m *Monitor) CheckHealth(_ context.Context) *HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if m.last != nil && now.Sub(m.checked) < m.minAge {
		return m.last
	}

	report := &HealthReport{
		SystemStatus: StatusHealthy,
		Heads:        make(map[string]HeadHealth),
		Controllers:  make(map[string]string),
	}

	for _, s := range m.fabric.Subsystems() {
		names := make(map[string]*fabric.Controller)
		for _, c := range s.Controllers() {
			names[c.ID()] = c
			report.Controllers[c.Name()] = c.State().String()
		}
		for _, h := range s.Heads() {
			hh := headHealth(s, h, names)
			report.Heads[hh.Name] = hh
			report.SystemStatus = worst(report.SystemStatus, hh.Status)
		}
	}

	m.checked = now
	m.last = report
	return report
}

func headHealth(s *fabric.Subsystem, h *mpath.Head, ctrls map[string]*fabric.Controller) HeadHealth {
	hh := HeadHealth{
		Name:           h.Name(),
		Subsystem:      s.NQN(),
		NSID:           h.NSID(),
		Aggregate:      h.HasDisk(),
		PendingRequeue: h.PendingRequeue(),
	}

	current := h.CurrentPath()
	for _, p := range h.Paths() {
		ph := PathHealth{
			Name:    p.Name(),
			State:   domain.CtrlStateDead.String(),
			Current: p == current,
			Stats:   p.Stats.Snapshot(),
		}
		if c, ok := ctrls[p.CtrlID]; ok {
			ph.Controller = c.Name()
			ph.State = c.State().String()
			if c.State() == domain.CtrlStateLive {
				hh.LivePaths++
			}
		}
		hh.Paths = append(hh.Paths, ph)
	}

	switch {
	case hh.LivePaths == 0:
		hh.Status = StatusCritical
	case hh.LivePaths < len(hh.Paths) || hh.PendingRequeue > 0:
		hh.Status = StatusDegraded
	default:
		hh.Status = StatusHealthy
	}
	return hh
}

func worst(a, b SystemStatus) SystemStatus {
	rank := func(s SystemStatus) int {
		switch s {
		case StatusCritical:
			return 2
		case StatusDegraded:
			return 1
		}
		return 0
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
