package fabric

import (
	"math"
	"time"
)

// ReconnectConfig defines how a reset controller retries its transport.
type ReconnectConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

// DefaultReconnectConfig provides sensible defaults.
var DefaultReconnectConfig = ReconnectConfig{
	MaxAttempts:     10,
	InitialDelay:    500 * time.Millisecond,
	MaxDelay:        30 * time.Second,
	BackoffMultiple: 2.0,
}

func calculateBackoff(attempt int, config ReconnectConfig) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.BackoffMultiple, float64(attempt))
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	return time.Duration(delay)
}
