package mpath

import (
	"fmt"

	"github.com/vietddude/mpath/internal/metrics"
)

// Policy decides which live path serves the next request.
type Policy string

const (
	// PolicyFirstLive keeps using the cached path while it is live and
	// otherwise picks the first live path in set order.
	PolicyFirstLive Policy = "first-live"

	// PolicyRoundRobin moves to the next live path in set order on every call.
	PolicyRoundRobin Policy = "round-robin"
)

// ParsePolicy validates a policy name. Empty selects PolicyFirstLive.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyFirstLive:
		return PolicyFirstLive, nil
	case PolicyRoundRobin:
		return PolicyRoundRobin, nil
	default:
		return "", fmt.Errorf("unknown io policy %q", s)
	}
}

// FindPath returns a live path or nil when none is live.
func (h *Head) FindPath() *Path {
	idx := h.srcu.readLock()
	defer h.srcu.readUnlock(idx)
	return h.findPath()
}

// findPath must run inside a read-side section.
func (h *Head) findPath() *Path {
	p := h.current.Load()
	if p == nil || !h.live(p) {
		return h.findPathSlow()
	}
	if h.cfg.Policy == PolicyRoundRobin {
		return h.roundRobin(p)
	}
	return p
}

// findPathSlow scans the set in order and caches the first live path.
func (h *Head) findPathSlow() *Path {
	for {
		set := h.paths.Load()
		var found *Path
		for _, p := range *set {
			if h.live(p) {
				found = p
				break
			}
		}
		if found == nil {
			return nil
		}
		if h.cache(set, found) {
			return found
		}
	}
}

// roundRobin returns the next live path after old, wrapping around. old is
// live, so it is returned when it is the only live path.
func (h *Head) roundRobin(old *Path) *Path {
	snap := h.paths.Load()
	set := *snap
	start := -1
	for i, p := range set {
		if p == old {
			start = i
			break
		}
	}
	if start < 0 {
		// old was removed from the set; rescan from the top.
		return h.findPathSlow()
	}

	for i := 1; i < len(set); i++ {
		p := set[(start+i)%len(set)]
		if h.live(p) {
			if h.cache(snap, p) {
				return p
			}
			return h.findPathSlow()
		}
	}
	return old
}

// cache publishes p, found in set, as the current path. A writer may have
// removed p after set was loaded; its grace period can end before this store
// lands, so the store is withdrawn when p is gone from the newer set.
func (h *Head) cache(set *pathSet, p *Path) bool {
	h.setCurrent(p)
	if now := h.paths.Load(); now != set && !now.contains(p) {
		h.current.CompareAndSwap(p, nil)
		return false
	}
	return true
}

func (h *Head) setCurrent(p *Path) {
	if old := h.current.Swap(p); old != p {
		metrics.PathSwitches.WithLabelValues(h.name).Inc()
		if h.cfg.Policy != PolicyRoundRobin {
			h.log.Debug("Current path changed", "path", p.Name())
		}
	}
}
