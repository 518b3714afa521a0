package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.Multipath.IOPolicy == "" {
		cfg.Multipath.IOPolicy = "first-live"
	}
	if cfg.Multipath.DiagBurst == 0 {
		cfg.Multipath.DiagBurst = 10
	}
	if cfg.Multipath.DiagWindow == 0 {
		cfg.Multipath.DiagWindow = 5 * time.Second
	}

	if cfg.Reconnect.MaxAttempts == 0 {
		cfg.Reconnect.MaxAttempts = 10
	}
	if cfg.Reconnect.InitialDelay == 0 {
		cfg.Reconnect.InitialDelay = 500 * time.Millisecond
	}
	if cfg.Reconnect.MaxDelay == 0 {
		cfg.Reconnect.MaxDelay = 30 * time.Second
	}
	if cfg.Reconnect.BackoffMultiple == 0 {
		cfg.Reconnect.BackoffMultiple = 2.0
	}

	for i := range cfg.Subsystems {
		for j := range cfg.Subsystems[i].Namespaces {
			ns := &cfg.Subsystems[i].Namespaces[j]
			if ns.BlockSize == 0 {
				ns.BlockSize = 512
			}
		}
		for j := range cfg.Subsystems[i].Controllers {
			c := &cfg.Subsystems[i].Controllers[j]
			if c.CntlID == 0 {
				c.CntlID = uint16(j + 1)
			}
			if c.Name == "" {
				c.Name = fmt.Sprintf("ctrl%d", c.CntlID)
			}
		}
	}
}

// Validate checks settings that have no sensible default.
func (c *AppConfig) Validate() error {
	switch c.Multipath.IOPolicy {
	case "first-live", "round-robin":
	default:
		return fmt.Errorf("multipath.io_policy: unknown policy %q", c.Multipath.IOPolicy)
	}

	seen := make(map[string]bool)
	for i, s := range c.Subsystems {
		if s.NQN == "" {
			return fmt.Errorf("subsystems[%d]: nqn is required", i)
		}
		if seen[s.NQN] {
			return fmt.Errorf("subsystems[%d]: duplicate nqn %s", i, s.NQN)
		}
		seen[s.NQN] = true

		for j, ns := range s.Namespaces {
			if ns.NSID == 0 {
				return fmt.Errorf("subsystem %s: namespaces[%d]: nsid is required", s.NQN, j)
			}
			if ns.SizeBytes == 0 {
				return fmt.Errorf("subsystem %s: namespace %d: size_bytes is required", s.NQN, ns.NSID)
			}
		}
	}
	return nil
}
