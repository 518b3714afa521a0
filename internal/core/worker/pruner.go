package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/vietddude/mpath/internal/metrics"
)

// DeviceStore is the persisted device registry.
type DeviceStore interface {
	// PublishedBefore returns the names of devices last published before t.
	PublishedBefore(ctx context.Context, t time.Time) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// Pruner deletes registry rows for devices this host no longer serves.
type Pruner struct {
	store     DeviceStore
	local     func(name string) bool
	retention time.Duration
	clock     clock.Clock
	log       *slog.Logger
}

// NewPruner creates a new Pruner worker. local reports whether a device is
// still present on this host.
func NewPruner(store DeviceStore, local func(string) bool, retention time.Duration, clk clock.Clock) *Pruner {
	if clk == nil {
		clk = clock.New()
	}
	return &Pruner{
		store:     store,
		local:     local,
		retention: retention,
		clock:     clk,
		log:       slog.Default().With("component", "pruner"),
	}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Check every 10% of the retention period, between 1 minute and 1 hour.
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := p.clock.Ticker(interval)
	defer ticker.Stop()

	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune removes stale rows once and returns how many were deleted.
func (p *Pruner) Prune(ctx context.Context) int {
	names, err := p.store.PublishedBefore(ctx, p.clock.Now().Add(-p.retention))
	if err != nil {
		p.log.Error("Failed to list stale devices", "error", err)
		return 0
	}

	deleted := 0
	for _, name := range names {
		if p.local(name) {
			continue
		}
		if err := p.store.Delete(ctx, name); err != nil {
			p.log.Error("Failed to prune device", "device", name, "error", err)
			continue
		}
		deleted++
	}

	if deleted > 0 {
		metrics.DevicesPruned.Add(float64(deleted))
		p.log.Info("Pruned stale devices", "count", deleted)
	}
	return deleted
}
