package config

import (
	"time"

	redisclient "github.com/vietddude/mpath/internal/infra/redis"
	"github.com/vietddude/mpath/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig       `yaml:"server"`
	Logging    LoggingConfig      `yaml:"logging"`
	Multipath  MultipathConfig    `yaml:"multipath"`
	Reconnect  ReconnectConfig    `yaml:"reconnect"`
	Subsystems []SubsystemConfig  `yaml:"subsystems"`
	Redis      redisclient.Config `yaml:"redis"`
	Database   postgres.Config    `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MultipathConfig controls aggregate devices for shared namespaces.
type MultipathConfig struct {
	Enabled    *bool         `yaml:"enabled"`   // nil = enabled
	IOPolicy   string        `yaml:"io_policy"` // first-live, round-robin
	DiagBurst  int           `yaml:"diag_burst"`
	DiagWindow time.Duration `yaml:"diag_window"`
}

// IsEnabled reports whether multipath is on. It defaults to true.
func (m MultipathConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// ReconnectConfig controls controller reconnect backoff.
type ReconnectConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialDelay    time.Duration `yaml:"initial_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	BackoffMultiple float64       `yaml:"backoff_multiple"`
}

// SubsystemConfig describes one subsystem served by the in-memory target.
type SubsystemConfig struct {
	NQN         string             `yaml:"nqn"`
	CMIC        uint8              `yaml:"cmic"` // bit 1 = shared namespaces
	Namespaces  []NamespaceConfig  `yaml:"namespaces"`
	Controllers []ControllerConfig `yaml:"controllers"`
}

// NamespaceConfig describes a namespace of a subsystem.
type NamespaceConfig struct {
	NSID      uint32 `yaml:"nsid"`
	SizeBytes uint64 `yaml:"size_bytes"`
	BlockSize uint32 `yaml:"block_size"`
}

// ControllerConfig describes one controller (one path) into a subsystem.
type ControllerConfig struct {
	Name           string `yaml:"name"`
	CntlID         uint16 `yaml:"cntlid"`
	VWC            bool   `yaml:"vwc"`
	HealthEndpoint string `yaml:"health_endpoint"` // optional gRPC health endpoint
}
