package mpath

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vietddude/mpath/internal/core/domain"
	"github.com/vietddude/mpath/internal/infra/block"
)

// Controller is the connection a path runs over. The core only reads its
// state and asks it to recover.
type Controller interface {
	ID() string
	State() domain.CtrlState
	// Reset asks the controller to reconnect. It must not block.
	Reset()
	VolatileWriteCache() bool
}

// ControllerTable resolves a path's controller ID.
type ControllerTable interface {
	Controller(id string) (Controller, bool)
}

// Subsystem describes the controller group a head belongs to.
type Subsystem interface {
	Instance() int
	// SharedNamespaces reports whether namespaces may be reachable through
	// more than one controller.
	SharedNamespaces() bool
}

// Path is a namespace as seen through one controller.
type Path struct {
	// CtrlID is the key of the owning controller in the head's ControllerTable.
	CtrlID string

	// Disk is the path's own (usually hidden) device.
	Disk *block.Disk

	Stats *PathStats

	// routed counts bios routed through this path. Set by Head.AddPath.
	routed prometheus.Counter
}

// NewPath creates a path over disk for the controller ctrlID.
func NewPath(ctrlID string, disk *block.Disk) *Path {
	return &Path{
		CtrlID: ctrlID,
		Disk:   disk,
		Stats:  NewPathStats(),
	}
}

// Name returns the path's disk name.
func (p *Path) Name() string {
	if p.Disk == nil {
		return p.CtrlID
	}
	return p.Disk.Name
}

// pathSet is an immutable ordered snapshot of sibling paths. Writers build
// a new set and publish it atomically; readers keep whatever snapshot they
// loaded for as long as they need it.
type pathSet []*Path

func (s pathSet) with(p *Path) pathSet {
	out := make(pathSet, 0, len(s)+1)
	out = append(out, s...)
	return append(out, p)
}

func (s pathSet) without(p *Path) (pathSet, bool) {
	out := make(pathSet, 0, len(s))
	found := false
	for _, cur := range s {
		if cur == p {
			found = true
			continue
		}
		out = append(out, cur)
	}
	return out, found
}

func (s pathSet) contains(p *Path) bool {
	for _, cur := range s {
		if cur == p {
			return true
		}
	}
	return false
}
