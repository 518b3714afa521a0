package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BiosRouted tracks bios dispatched to a live path
	BiosRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpath_bios_routed_total",
			Help: "Total number of bios dispatched to a live path",
		},
		[]string{"head", "path"},
	)

	// BiosRequeued tracks bios parked on a head's requeue list
	BiosRequeued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpath_bios_requeued_total",
			Help: "Total number of bios placed on the requeue list",
		},
		[]string{"head", "reason"},
	)

	// BiosFailed tracks bios failed because the head had no paths at all
	BiosFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpath_bios_failed_total",
			Help: "Total number of bios failed with no path",
		},
		[]string{"head"},
	)

	// Failovers tracks requests rerouted after a path error
	Failovers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpath_failovers_total",
			Help: "Total number of requests failed over to another path",
		},
		[]string{"head", "path", "status"},
	)

	// RequestErrors tracks errors surfaced to the caller
	RequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpath_request_errors_total",
			Help: "Total number of request errors returned to the caller",
		},
		[]string{"head", "path", "status"},
	)

	// PathSwitches tracks changes of a head's cached path
	PathSwitches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpath_path_switches_total",
			Help: "Total number of current path changes",
		},
		[]string{"head"},
	)

	// RequeueDrains tracks requeue list drain passes
	RequeueDrains = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpath_requeue_drains_total",
			Help: "Total number of requeue drain passes",
		},
		[]string{"head"},
	)

	// RequeueResubmitted tracks bios resubmitted by drain passes
	RequeueResubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpath_requeue_resubmitted_total",
			Help: "Total number of bios resubmitted from the requeue list",
		},
		[]string{"head"},
	)

	// RequeuePending tracks bios currently waiting on a requeue list
	RequeuePending = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mpath_requeue_pending",
			Help: "Bios currently waiting on the requeue list",
		},
		[]string{"head"},
	)

	// ControllerState tracks the state of each controller (0 new .. 5 dead)
	ControllerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mpath_controller_state",
			Help: "Current controller state",
		},
		[]string{"subsystem", "controller"},
	)

	// ControllerResets tracks reconnect attempts
	ControllerResets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpath_controller_resets_total",
			Help: "Total number of controller reset attempts",
		},
		[]string{"subsystem", "controller", "result"},
	)

	// DBConnectionPoolUsage tracks device registry pool usage in percent
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mpath_db_connection_pool_usage_percent",
			Help: "Device registry connection pool usage",
		},
	)

	// ProbeResults tracks controller health probe outcomes
	ProbeResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpath_probe_results_total",
			Help: "Total number of controller health probes by result",
		},
		[]string{"controller", "result"},
	)

	// DevicesPruned tracks stale registry rows removed by the pruner
	DevicesPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mpath_devices_pruned_total",
			Help: "Total number of stale device registry rows removed",
		},
	)
)
