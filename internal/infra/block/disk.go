package block

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/vietddude/mpath/internal/core/domain"
)

// Disk is a named block device backed by a queue.
type Disk struct {
	Name   string
	Queue  *Queue
	Hidden bool

	// Private is the owner's pointer, usually the same as Queue.Data.
	Private any

	// Parent is the name of the device the disk is registered under, if any.
	Parent string
}

// AllocDisk allocates a disk for q. The disk is not visible until added to a Registry.
func AllocDisk(name string, q *Queue) (*Disk, error) {
	if name == "" {
		return nil, errors.New("disk name is empty")
	}
	if q == nil {
		return nil, fmt.Errorf("disk %s: nil queue", name)
	}
	return &Disk{Name: name, Queue: q}, nil
}

// Registry tracks visible disks by name and is the generic submission
// entry point: bios are routed by their Target name.
type Registry struct {
	disks sync.Map // name -> *Disk
	log   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{log: log}
}

// Add makes the disk visible.
func (r *Registry) Add(d *Disk) error {
	if _, loaded := r.disks.LoadOrStore(d.Name, d); loaded {
		return fmt.Errorf("disk %s already registered", d.Name)
	}
	r.log.Debug("Disk added", "disk", d.Name, "hidden", d.Hidden)
	return nil
}

// Del removes the disk from visibility. Bios already routed to it keep going.
func (r *Registry) Del(d *Disk) {
	r.disks.CompareAndDelete(d.Name, d)
	r.log.Debug("Disk removed", "disk", d.Name)
}

// Lookup finds a visible disk.
func (r *Registry) Lookup(name string) (*Disk, bool) {
	v, ok := r.disks.Load(name)
	if !ok {
		return nil, false
	}
	return v.(*Disk), true
}

// List returns the visible disks sorted by name.
func (r *Registry) List() []*Disk {
	var out []*Disk
	r.disks.Range(func(_, v any) bool {
		out = append(out, v.(*Disk))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Submit routes bio to the disk named by bio.Target.
func (r *Registry) Submit(bio *domain.Bio) Cookie {
	d, ok := r.Lookup(bio.Target)
	if !ok {
		bio.End(ErrNoDevice)
		return CookieNone
	}
	return d.Queue.Submit(bio)
}
