package mpath

import (
	"time"

	"github.com/eapache/queue"

	"github.com/vietddude/mpath/internal/core/domain"
	"github.com/vietddude/mpath/internal/infra/block"
	"github.com/vietddude/mpath/internal/metrics"
)

// Complete is the completion handler for requests issued on path p.
func (h *Head) Complete(p *Path, req *domain.Request) {
	status := req.Status
	if status.Code() == domain.StatusSuccess {
		p.Stats.RecordSuccess(time.Since(req.StartedAt))
		req.End(status)
		return
	}

	if NeedsFailover(req) {
		p.Stats.RecordFailure(status, true)
		metrics.Failovers.WithLabelValues(h.name, p.Name(), status.String()).Inc()
		h.Failover(p, req)
		return
	}

	p.Stats.RecordFailure(status, false)
	metrics.RequestErrors.WithLabelValues(h.name, p.Name(), status.String()).Inc()
	req.End(status)
}

// Failover absorbs a path failure: the request's bios move to the requeue
// list, the request itself completes successfully, the path's controller is
// asked to recover and a drain is scheduled.
func (h *Head) Failover(p *Path, req *domain.Request) {
	status := req.Status
	bios := req.StealBios()
	h.requeueBios("failover", bios...)

	req.End(domain.StatusSuccess)

	if c, ok := h.controller(p); ok {
		c.Reset()
	}
	h.requeueWork.Schedule()

	h.log.Debug("Request failed over",
		"path", p.Name(),
		"status", status.String(),
		"bios", len(bios),
	)
}

// ScheduleRequeue schedules a drain of the requeue list. It never blocks.
func (h *Head) ScheduleRequeue() {
	h.requeueWork.Schedule()
}

// PendingRequeue returns the number of bios waiting on the requeue list.
func (h *Head) PendingRequeue() int {
	h.requeueMu.Lock()
	defer h.requeueMu.Unlock()
	return h.requeue.Length()
}

func (h *Head) requeueBios(reason string, bios ...*domain.Bio) {
	if len(bios) == 0 {
		return
	}

	h.requeueMu.Lock()
	if h.closed {
		h.requeueMu.Unlock()
		for _, b := range bios {
			b.End(block.ErrQueueDying)
		}
		return
	}
	for _, b := range bios {
		h.requeue.Add(b)
	}
	pending := h.requeue.Length()
	h.requeueMu.Unlock()

	metrics.BiosRequeued.WithLabelValues(h.name, reason).Add(float64(len(bios)))
	metrics.RequeuePending.WithLabelValues(h.name).Set(float64(pending))
}

// drainRequeue takes the whole requeue list in one swap and resubmits every
// bio against the aggregate disk so it goes through path selection again.
func (h *Head) drainRequeue() {
	h.requeueMu.Lock()
	list := h.requeue
	h.requeue = queue.New()
	metrics.RequeuePending.WithLabelValues(h.name).Set(0)
	h.requeueMu.Unlock()

	n := list.Length()
	if n == 0 {
		return
	}
	metrics.RequeueDrains.WithLabelValues(h.name).Inc()

	disk := h.disk.Load()
	for list.Length() > 0 {
		bio := list.Remove().(*domain.Bio)
		if disk == nil {
			bio.End(ErrNoPath)
			continue
		}
		bio.Target = disk.Name
		bio.Flags &^= domain.BioMultipath
		disk.Queue.Submit(bio)
	}

	metrics.RequeueResubmitted.WithLabelValues(h.name).Add(float64(n))
	h.log.Debug("Requeue list drained", "bios", n)
}

func (h *Head) controller(p *Path) (Controller, bool) {
	if h.ctrls == nil {
		return nil, false
	}
	return h.ctrls.Controller(p.CtrlID)
}
