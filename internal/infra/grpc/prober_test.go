package grpc

import (
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type fakeTarget struct {
	live   atomic.Int32
	resets atomic.Int32
}

func (f *fakeTarget) Name() string { return "ctrl1" }

func (f *fakeTarget) MarkLive() { f.live.Add(1) }

func (f *fakeTarget) Reset() { f.resets.Add(1) }

func startHealthServer(t *testing.T) (string, *health.Server) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	return lis.Addr().String(), hs
}

func newTestProber(t *testing.T, endpoint string, target Target, clk clock.Clock) *Prober {
	t.Helper()
	p, err := NewProber(Config{
		Endpoint: endpoint,
		Interval: time.Second,
		Timeout:  2 * time.Second,
	}, target, clk, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Stop() })
	return p
}

func TestProbe_ServingMarksLive(t *testing.T) {
	addr, hs := startHealthServer(t)
	target := &fakeTarget{}
	p := newTestProber(t, "http://"+addr, target, nil)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	assert.True(t, p.Probe(t.Context()))
	assert.Equal(t, int32(1), target.live.Load())
	assert.Zero(t, target.resets.Load())

	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	assert.False(t, p.Probe(t.Context()))
	assert.Equal(t, int32(1), target.resets.Load())
}

func TestProbe_UnreachableResets(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	target := &fakeTarget{}
	p, err := NewProber(Config{Endpoint: addr, Timeout: 200 * time.Millisecond}, target, nil, nil)
	require.NoError(t, err)
	defer func() { _ = p.Stop() }()

	assert.False(t, p.Probe(t.Context()))
	assert.Equal(t, int32(1), target.resets.Load())
	assert.Zero(t, target.live.Load())
}

func TestStart_ProbesOnTicker(t *testing.T) {
	addr, hs := startHealthServer(t)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	mock := clock.NewMock()
	target := &fakeTarget{}
	p := newTestProber(t, addr, target, mock)

	p.Start(t.Context())
	p.Start(t.Context()) // second start is a no-op

	require.Eventually(t, func() bool {
		mock.Add(time.Second)
		return target.live.Load() >= 2
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, p.Stop())
}
