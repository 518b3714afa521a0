package fabric

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vietddude/mpath/internal/mpath"
)

// CMICSharedNamespaces is the CMIC bit saying namespaces may be reachable
// through more than one controller.
const CMICSharedNamespaces uint8 = 1 << 1

// Subsystem is a group of controllers exporting the same namespaces.
type Subsystem struct {
	host     *Host
	instance int
	nqn      string
	cmic     uint8

	ctrls sync.Map // id -> *Controller

	// scanMu serializes namespace attach and detach.
	scanMu   sync.Mutex
	mu       sync.RWMutex
	heads    map[uint32]*mpath.Head
	nextHead int
}

func newSubsystem(h *Host, instance int, nqn string, cmic uint8) *Subsystem {
	return &Subsystem{
		host:     h,
		instance: instance,
		nqn:      nqn,
		cmic:     cmic,
		heads:    make(map[uint32]*mpath.Head),
		nextHead: 1,
	}
}

// Instance returns the subsystem instance number.
func (s *Subsystem) Instance() int { return s.instance }

// NQN returns the subsystem qualified name.
func (s *Subsystem) NQN() string { return s.nqn }

// SharedNamespaces reports whether CMIC advertises multi-controller namespaces.
func (s *Subsystem) SharedNamespaces() bool {
	return s.cmic&CMICSharedNamespaces != 0
}

// Controller implements mpath.ControllerTable.
func (s *Subsystem) Controller(id string) (mpath.Controller, bool) {
	v, ok := s.ctrls.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Controller), true
}

// Controllers returns the subsystem's controllers ordered by instance.
func (s *Subsystem) Controllers() []*Controller {
	var out []*Controller
	s.ctrls.Range(func(_, v any) bool {
		out = append(out, v.(*Controller))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Instance() < out[j].Instance() })
	return out
}

// Head returns the namespace head for nsid.
func (s *Subsystem) Head(nsid uint32) (*mpath.Head, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.heads[nsid]
	return h, ok
}

// Heads returns every namespace head ordered by NSID.
func (s *Subsystem) Heads() []*mpath.Head {
	s.mu.RLock()
	out := make([]*mpath.Head, 0, len(s.heads))
	for _, h := range s.heads {
		out = append(out, h)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].NSID() < out[j].NSID() })
	return out
}

func (s *Subsystem) addController(c *Controller) error {
	for _, other := range s.Controllers() {
		if other.CntlID() == c.CntlID() {
			return fmt.Errorf("subsystem %s: duplicate controller id %d", s.nqn, c.CntlID())
		}
	}
	s.ctrls.Store(c.ID(), c)
	return nil
}

func (s *Subsystem) removeController(c *Controller) {
	s.ctrls.CompareAndDelete(c.ID(), c)
}

// attachNamespace adds the path for info through ctrl, creating and
// bringing up the head when this is the first controller to report it.
func (s *Subsystem) attachNamespace(ctx context.Context, ctrl *Controller, info NamespaceInfo) (*Namespace, error) {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	if ns, ok := ctrl.namespace(info.NSID); ok {
		return ns, nil
	}

	s.mu.Lock()
	head, found := s.heads[info.NSID]
	if found && !s.SharedNamespaces() {
		s.mu.Unlock()
		return nil, fmt.Errorf("subsystem %s: duplicate unshared namespace %d", s.nqn, info.NSID)
	}
	if !found {
		head = mpath.NewHead(mpath.Options{
			Instance:    s.nextHead,
			NSID:        info.NSID,
			UUID:        info.UUID,
			NGUID:       info.NGUID,
			EUI64:       info.EUI64,
			Subsystem:   s,
			Controllers: s,
			Registry:    s.host.opts.Registry,
			Publisher:   s.host.opts.Publisher,
			Config:      s.host.opts.Multipath,
			Logger:      s.host.log,
		})
		s.nextHead++
		s.heads[info.NSID] = head
	}
	s.mu.Unlock()

	if !found {
		if _, err := head.BringUp(ctrl); err != nil {
			s.dropHead(ctx, info.NSID, head)
			return nil, err
		}
	}

	ns, err := newNamespace(ctrl, head, info)
	if err != nil {
		if !found {
			s.dropHead(ctx, info.NSID, head)
		}
		return nil, err
	}

	if err := s.host.opts.Registry.Add(ns.disk); err != nil {
		ns.disk.Queue.Cleanup()
		if !found {
			s.dropHead(ctx, info.NSID, head)
		}
		return nil, err
	}
	head.AddPath(ns.path)
	ctrl.addNamespace(ns)

	if head.HasDisk() {
		head.RefreshAttrs(ctx)
		if err := head.Publish(ctx); err != nil {
			s.host.log.Warn("Failed to publish multipath disk", "head", head.Name(), "error", err)
		}
		// Bios parked while no path was live may be able to move now.
		head.ScheduleRequeue()
	}
	return ns, nil
}

// detachNamespace removes ctrl's path to nsid. The head is torn down with
// its last path.
func (s *Subsystem) detachNamespace(ctx context.Context, ctrl *Controller, nsid uint32) {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	ns, ok := ctrl.takeNamespace(nsid)
	if !ok {
		return
	}

	remaining := ns.head.RemovePath(ns.path)
	s.host.opts.Registry.Del(ns.disk)
	ns.disk.Queue.Cleanup()

	if remaining > 0 {
		ns.head.RefreshAttrs(ctx)
		ns.head.ScheduleRequeue()
		return
	}
	s.dropHead(ctx, nsid, ns.head)
}

func (s *Subsystem) dropHead(ctx context.Context, nsid uint32, head *mpath.Head) {
	s.mu.Lock()
	if s.heads[nsid] == head {
		delete(s.heads, nsid)
	}
	s.mu.Unlock()
	head.TearDown(ctx)
}
