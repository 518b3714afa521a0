package mpath

import (
	"fmt"

	"github.com/vietddude/mpath/internal/core/domain"
	"github.com/vietddude/mpath/internal/infra/block"
	"github.com/vietddude/mpath/internal/metrics"
)

// MakeRequest is the routing entry point of the aggregate disk.
func (h *Head) MakeRequest(_ *block.Queue, bio *domain.Bio) block.Cookie {
	idx := h.srcu.readLock()
	defer h.srcu.readUnlock(idx)

	if p := h.findPath(); p != nil {
		bio.Target = p.Disk.Name
		bio.Flags |= domain.BioMultipath
		p.routed.Inc()
		return p.Disk.Queue.Submit(bio)
	}

	if len(*h.paths.Load()) > 0 {
		h.diagWarn("requeue", "No path available - requeuing I/O")
		h.requeueBios("no-path", bio)
		return block.CookieNone
	}

	h.diagWarn("fail", "No path - failing I/O")
	metrics.BiosFailed.WithLabelValues(h.name).Inc()
	bio.End(fmt.Errorf("%s: %w", h.name, ErrNoPath))
	return block.CookieNone
}

// Poll is the poll entry point of the aggregate disk. It only polls the
// cached path, and only while that path is live.
func (h *Head) Poll(_ *block.Queue, cookie block.Cookie) bool {
	idx := h.srcu.readLock()
	defer h.srcu.readUnlock(idx)

	p := h.current.Load()
	if p != nil && h.live(p) {
		return p.Disk.Queue.Poll(cookie)
	}
	return false
}
