// Package health provides multipath health monitoring and status reporting.
package health

import "github.com/vietddude/mpath/internal/mpath"

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// PathHealth describes one path of a head.
type PathHealth struct {
	Name       string                  `json:"name"`
	Controller string                  `json:"controller"`
	State      string                  `json:"state"`
	Current    bool                    `json:"current"`
	Stats      mpath.PathStatsSnapshot `json:"stats"`
}

// HeadHealth contains health data for a namespace head.
type HeadHealth struct {
	Name           string       `json:"name"`
	Subsystem      string       `json:"subsystem"`
	NSID           uint32       `json:"nsid"`
	Status         SystemStatus `json:"status"`
	Aggregate      bool         `json:"aggregate"`
	LivePaths      int          `json:"live_paths"`
	PendingRequeue int          `json:"pending_requeue"`
	Paths          []PathHealth `json:"paths"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus          `json:"system_status"`
	Heads        map[string]HeadHealth `json:"heads"`
	Controllers  map[string]string     `json:"controllers"`
}
