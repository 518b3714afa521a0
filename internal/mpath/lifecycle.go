package mpath

import (
	"context"
	"fmt"

	"github.com/vietddude/mpath/internal/infra/block"
)

// BringUp allocates the aggregate disk when the subsystem may share the
// namespace across controllers and multipath is enabled. It returns false
// with a nil error when no aggregate disk is needed. ctrl is the controller
// that first reported the namespace; its write cache setting is propagated.
func (h *Head) BringUp(ctrl Controller) (bool, error) {
	if !h.cfg.Enabled || h.subsys == nil || !h.subsys.SharedNamespaces() {
		return false, nil
	}

	h.lifeMu.Lock()
	defer h.lifeMu.Unlock()

	if h.disk.Load() != nil {
		return true, nil
	}

	q := block.AllocQueue()
	q.Data = h
	q.SetMakeRequest(h.MakeRequest)
	q.SetPoll(h.Poll)
	q.SetNonRotational(true)
	// Default until the namespace format is known.
	q.SetLogicalBlockSize(512)

	vwc := ctrl != nil && ctrl.VolatileWriteCache()
	q.SetWriteCache(vwc, vwc)

	disk, err := block.AllocDisk(h.name, q)
	if err != nil {
		q.Cleanup()
		return false, fmt.Errorf("%w: %w", ErrAllocDisk, err)
	}
	disk.Private = h

	h.disk.Store(disk)
	h.log.Info("Multipath disk allocated", "write_cache", vwc)
	return true, nil
}

// Publish makes the aggregate disk visible and exposes its identity
// attributes. Attribute failures are logged only.
func (h *Head) Publish(ctx context.Context) error {
	h.lifeMu.Lock()
	defer h.lifeMu.Unlock()

	disk := h.disk.Load()
	if disk == nil || h.published.Load() {
		return nil
	}

	if h.registry != nil {
		if err := h.registry.Add(disk); err != nil {
			return fmt.Errorf("failed to add disk %s: %w", disk.Name, err)
		}
	}
	h.published.Store(true)

	if h.publisher != nil {
		if err := h.publisher.Publish(ctx, h.Identity()); err != nil {
			h.log.Warn("Failed to publish identification attributes", "error", err)
		}
	}

	h.log.Info("Multipath disk published")
	return nil
}

// RefreshAttrs republishes the identity of a published disk, whose path
// list changes as controllers come and go.
func (h *Head) RefreshAttrs(ctx context.Context) {
	h.lifeMu.Lock()
	defer h.lifeMu.Unlock()

	if !h.published.Load() || h.publisher == nil {
		return
	}
	if err := h.publisher.Publish(ctx, h.Identity()); err != nil {
		h.log.Warn("Failed to refresh identification attributes", "error", err)
	}
}

// TearDown hides and releases the aggregate disk. New bios are rejected
// from the moment the queue is marked dying; every bio still on the requeue
// list is resubmitted once more (and fails against the dying queue) before
// the disk is released. Safe to call repeatedly, with or without a disk.
func (h *Head) TearDown(ctx context.Context) {
	h.lifeMu.Lock()
	defer h.lifeMu.Unlock()

	disk := h.disk.Load()
	if disk == nil {
		h.requeueWork.Stop()
		return
	}

	if h.published.Swap(false) {
		if h.publisher != nil {
			if err := h.publisher.Unpublish(ctx, disk.Name); err != nil {
				h.log.Warn("Failed to remove identification attributes", "error", err)
			}
		}
		if h.registry != nil {
			h.registry.Del(disk)
		}
	}

	disk.Queue.SetDying()

	// Make sure all pending bios are cleaned up.
	h.requeueWork.Schedule()
	h.requeueWork.Flush()

	h.requeueMu.Lock()
	h.closed = true
	h.requeueMu.Unlock()
	h.drainRequeue()

	disk.Queue.Cleanup()
	h.requeueWork.Stop()
	h.disk.Store(nil)

	h.log.Info("Multipath disk removed")
}
