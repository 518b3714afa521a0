package fabric

import (
	"github.com/vietddude/mpath/internal/core/domain"
	"github.com/vietddude/mpath/internal/infra/block"
	"github.com/vietddude/mpath/internal/mpath"
)

// Namespace is one namespace seen through one controller.
type Namespace struct {
	ctrl *Controller
	head *mpath.Head
	info NamespaceInfo

	disk *block.Disk
	path *mpath.Path
}

func newNamespace(ctrl *Controller, head *mpath.Head, info NamespaceInfo) (*Namespace, error) {
	name, hidden := DiskName(ctrl.host.opts.Multipath.Enabled, ctrl.subsys, ctrl, head.Instance(), head.HasDisk())

	q := block.AllocQueue()
	if info.BlockSize > 0 {
		q.SetLogicalBlockSize(info.BlockSize)
	}
	q.SetNonRotational(true)
	q.SetWriteCache(ctrl.VolatileWriteCache(), ctrl.VolatileWriteCache())

	disk, err := block.AllocDisk(name, q)
	if err != nil {
		return nil, err
	}
	disk.Hidden = hidden
	if head.HasDisk() {
		disk.Parent = head.Name()
		// The aggregate disk follows the real format once a path reports it.
		if info.BlockSize > 0 {
			head.Disk().Queue.SetLogicalBlockSize(info.BlockSize)
		}
	}

	ns := &Namespace{
		ctrl: ctrl,
		head: head,
		info: info,
		disk: disk,
	}
	ns.path = mpath.NewPath(ctrl.ID(), disk)
	disk.Private = ns
	q.Data = ns
	q.SetMakeRequest(ns.makeRequest)
	return ns, nil
}

// NSID returns the namespace id.
func (ns *Namespace) NSID() uint32 { return ns.info.NSID }

// Head returns the head the namespace is a path of.
func (ns *Namespace) Head() *mpath.Head { return ns.head }

// Path returns the namespace's path.
func (ns *Namespace) Path() *mpath.Path { return ns.path }

// Disk returns the per-controller disk.
func (ns *Namespace) Disk() *block.Disk { return ns.disk }

// makeRequest turns a bio into a request on the controller's transport.
func (ns *Namespace) makeRequest(_ *block.Queue, bio *domain.Bio) block.Cookie {
	req := domain.NewRequest(bio)
	req.SetCompletion(func(r *domain.Request) {
		ns.head.Complete(ns.path, r)
	})

	// Requests are not accepted while the association is down.
	if ns.ctrl.State() != domain.CtrlStateLive {
		req.Finish(domain.StatusHostPathError)
		return block.CookieNone
	}

	ns.ctrl.transport.Execute(ns.info.NSID, req)
	return block.Cookie(ns.ctrl.nextCookie.Add(1))
}
