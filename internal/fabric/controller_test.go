package fabric

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/vietddude/mpath/internal/core/domain"
	"github.com/vietddude/mpath/internal/mpath"
)

type stubTransport struct{}

func (stubTransport) Connect(context.Context) error { return nil }

func (stubTransport) Disconnect() error { return nil }

func (stubTransport) Identify(context.Context) ([]NamespaceInfo, error) { return nil, nil }

func (stubTransport) Execute(_ uint32, req *domain.Request) { req.Finish(domain.StatusSuccess) }

func (stubTransport) Close() error { return nil }

func newTestController(t *testing.T, cmic uint8) *Controller {
	t.Helper()
	h := NewHost(HostOptions{
		Multipath: mpath.DefaultConfig(),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	s := h.AddSubsystem("nqn.test", cmic)
	c, err := h.AddController(s, "c0", 1, false, stubTransport{})
	if err != nil {
		t.Fatalf("AddController() error = %v", err)
	}
	t.Cleanup(c.stop)
	return c
}

func TestChangeState(t *testing.T) {
	tests := []struct {
		name string
		from domain.CtrlState
		to   domain.CtrlState
		want bool
	}{
		{"new to live", domain.CtrlStateNew, domain.CtrlStateLive, true},
		{"new to connecting", domain.CtrlStateNew, domain.CtrlStateConnecting, true},
		{"new to resetting", domain.CtrlStateNew, domain.CtrlStateResetting, true},
		{"live to resetting", domain.CtrlStateLive, domain.CtrlStateResetting, true},
		{"resetting to live", domain.CtrlStateResetting, domain.CtrlStateLive, true},
		{"resetting to connecting", domain.CtrlStateResetting, domain.CtrlStateConnecting, true},
		{"connecting to live", domain.CtrlStateConnecting, domain.CtrlStateLive, true},
		{"live to deleting", domain.CtrlStateLive, domain.CtrlStateDeleting, true},
		{"deleting to dead", domain.CtrlStateDeleting, domain.CtrlStateDead, true},

		{"resetting to resetting", domain.CtrlStateResetting, domain.CtrlStateResetting, false},
		{"connecting to resetting", domain.CtrlStateConnecting, domain.CtrlStateResetting, false},
		{"live to connecting", domain.CtrlStateLive, domain.CtrlStateConnecting, false},
		{"new to deleting", domain.CtrlStateNew, domain.CtrlStateDeleting, false},
		{"live to dead", domain.CtrlStateLive, domain.CtrlStateDead, false},
		{"deleting to live", domain.CtrlStateDeleting, domain.CtrlStateLive, false},
		{"dead to live", domain.CtrlStateDead, domain.CtrlStateLive, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestController(t, 0)
			c.state.Store(int32(tt.from))

			if got := c.ChangeState(tt.to); got != tt.want {
				t.Errorf("ChangeState(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
			want := tt.from
			if tt.want {
				want = tt.to
			}
			if c.State() != want {
				t.Errorf("State() = %s, want %s", c.State(), want)
			}
		})
	}
}

func TestReset_RefusedWhileDeleting(t *testing.T) {
	c := newTestController(t, 0)
	c.state.Store(int32(domain.CtrlStateDeleting))
	c.Reset()
	if c.State() != domain.CtrlStateDeleting {
		t.Errorf("State() = %s, want deleting", c.State())
	}
}

func TestDiskName(t *testing.T) {
	h := NewHost(HostOptions{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	h.AddSubsystem("nqn.first", 0)
	s := h.AddSubsystem("nqn.second", CMICSharedNamespaces)
	h.nextController = 3
	c, err := h.AddController(s, "c", 7, false, stubTransport{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.stop)

	tests := []struct {
		name        string
		multipath   bool
		headHasDisk bool
		want        string
		wantHidden  bool
	}{
		{"multipath off", false, false, "nvme3n2", false},
		{"path of aggregate disk", true, true, "nvme1c7n2", true},
		{"multipath on, no aggregate", true, false, "nvme1n2", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, hidden := DiskName(tt.multipath, s, c, 2, tt.headHasDisk)
			if got != tt.want || hidden != tt.wantHidden {
				t.Errorf("DiskName() = %q, %v, want %q, %v", got, hidden, tt.want, tt.wantHidden)
			}
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := ReconnectConfig{
		MaxAttempts:     5,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        time.Second,
		BackoffMultiple: 2,
	}

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for attempt, w := range want {
		if got := calculateBackoff(attempt, cfg); got != w {
			t.Errorf("calculateBackoff(%d) = %v, want %v", attempt, got, w)
		}
	}
}
