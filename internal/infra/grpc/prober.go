// Package grpc probes controller liveness through the standard gRPC health
// service of the storage target.
package grpc

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vietddude/mpath/internal/metrics"
)

// Target is the controller a prober reports to.
type Target interface {
	Name() string
	// MarkLive is called when the endpoint reports SERVING.
	MarkLive()
	// Reset is called when the endpoint is unreachable or not serving.
	Reset()
}

// Config holds prober settings.
type Config struct {
	Endpoint string
	Service  string // health service name, empty for the whole server
	Interval time.Duration
	Timeout  time.Duration
}

// Prober periodically checks a health endpoint and drives a Target.
type Prober struct {
	cfg    Config
	target Target
	clock  clock.Clock
	log    *slog.Logger

	conn   *grpc.ClientConn
	client healthpb.HealthClient

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewProber creates a prober for t. The connection is established lazily
// by the first probe.
func NewProber(cfg Config, t Target, clk clock.Clock, log *slog.Logger) (*Prober, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = slog.Default()
	}

	// Parse endpoint to determine if TLS is needed
	addr := cfg.Endpoint
	var opts []grpc.DialOption
	if strings.HasPrefix(addr, "https://") || strings.HasSuffix(addr, ":443") {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{})))
		addr = strings.TrimPrefix(addr, "https://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		addr = strings.TrimPrefix(addr, "http://")
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", addr, err)
	}

	return &Prober{
		cfg:    cfg,
		target: t,
		clock:  clk,
		log:    log.With("controller", t.Name(), "endpoint", cfg.Endpoint),
		conn:   conn,
		client: healthpb.NewHealthClient(conn),
	}, nil
}

// Probe runs a single health check and reports the result to the target.
// It returns whether the endpoint is serving.
func (p *Prober) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	resp, err := p.client.Check(ctx, &healthpb.HealthCheckRequest{Service: p.cfg.Service})
	if err != nil {
		metrics.ProbeResults.WithLabelValues(p.target.Name(), "error").Inc()
		p.log.Debug("Health probe failed", "error", err)
		p.target.Reset()
		return false
	}

	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		metrics.ProbeResults.WithLabelValues(p.target.Name(), "not_serving").Inc()
		p.log.Debug("Endpoint not serving", "status", resp.GetStatus().String())
		p.target.Reset()
		return false
	}

	metrics.ProbeResults.WithLabelValues(p.target.Name(), "serving").Inc()
	p.target.MarkLive()
	return true
}

// Start probes on every interval until Stop is called or ctx ends.
func (p *Prober) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		ticker := p.clock.Ticker(p.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Probe(ctx)
			}
		}
	}()
	p.log.Info("Health prober started", "interval", p.cfg.Interval)
}

// Running reports whether the probe loop is active.
func (p *Prober) Running() bool {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Stop ends the probe loop and closes the connection.
func (p *Prober) Stop() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return p.conn.Close()
}
