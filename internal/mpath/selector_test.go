package mpath

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/mpath/internal/core/domain"
	"github.com/vietddude/mpath/internal/infra/block"
)

func TestFindPath_FirstLive(t *testing.T) {
	tests := []struct {
		name   string
		states []domain.CtrlState
		want   int // index into paths, -1 for none
	}{
		{"all live picks first", []domain.CtrlState{domain.CtrlStateLive, domain.CtrlStateLive}, 0},
		{"first resetting", []domain.CtrlState{domain.CtrlStateResetting, domain.CtrlStateLive}, 1},
		{"first connecting", []domain.CtrlState{domain.CtrlStateConnecting, domain.CtrlStateLive}, 1},
		{"none live", []domain.CtrlState{domain.CtrlStateResetting, domain.CtrlStateDeleting}, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, DefaultConfig())
			var paths []*Path
			for i, s := range tt.states {
				p, _ := f.addPath(t, string(rune('a'+i)), s, &fakeTarget{})
				paths = append(paths, p)
			}

			got := f.head.FindPath()
			if tt.want < 0 {
				assert.Nil(t, got)
				assert.Nil(t, f.head.CurrentPath())
				return
			}
			assert.Same(t, paths[tt.want], got)
			assert.Same(t, paths[tt.want], f.head.CurrentPath())
		})
	}
}

func TestFindPath_CachedPathStaysWhileLive(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	p1, _ := f.addPath(t, "a", domain.CtrlStateLive, &fakeTarget{})
	p2, _ := f.addPath(t, "b", domain.CtrlStateLive, &fakeTarget{})

	// Cache the second path directly; first-live must not move off it.
	f.head.setCurrent(p2)
	for i := 0; i < 3; i++ {
		assert.Same(t, p2, f.head.FindPath())
	}
	assert.NotSame(t, p1, f.head.CurrentPath())
}

func TestFindPath_StaleCacheRevalidated(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	p1, c1 := f.addPath(t, "a", domain.CtrlStateLive, &fakeTarget{})
	p2, _ := f.addPath(t, "b", domain.CtrlStateLive, &fakeTarget{})

	require.Same(t, p1, f.head.FindPath())

	c1.set(domain.CtrlStateResetting)
	assert.Same(t, p2, f.head.FindPath())
	assert.Same(t, p2, f.head.CurrentPath())

	// Recovery does not move the cache back.
	c1.set(domain.CtrlStateLive)
	assert.Same(t, p2, f.head.FindPath())
}

func TestFindPath_RoundRobin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy = PolicyRoundRobin
	f := newFixture(t, cfg)
	p1, _ := f.addPath(t, "a", domain.CtrlStateLive, &fakeTarget{})
	_, c2 := f.addPath(t, "b", domain.CtrlStateResetting, &fakeTarget{})
	p3, _ := f.addPath(t, "c", domain.CtrlStateLive, &fakeTarget{})

	assert.Same(t, p1, f.head.FindPath())
	assert.Same(t, p3, f.head.FindPath())
	assert.Same(t, p1, f.head.FindPath())

	c2.set(domain.CtrlStateLive)
	assert.Equal(t, "b", f.head.FindPath().CtrlID)
	assert.Same(t, p3, f.head.FindPath())
}

func TestFindPath_RoundRobinSingleLive(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy = PolicyRoundRobin
	f := newFixture(t, cfg)
	_, _ = f.addPath(t, "a", domain.CtrlStateResetting, &fakeTarget{})
	p2, _ := f.addPath(t, "b", domain.CtrlStateLive, &fakeTarget{})

	for i := 0; i < 3; i++ {
		assert.Same(t, p2, f.head.FindPath())
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyFirstLive, p)

	p, err = ParsePolicy("round-robin")
	require.NoError(t, err)
	assert.Equal(t, PolicyRoundRobin, p)

	_, err = ParsePolicy("numa")
	assert.Error(t, err)
}

func TestRemovePath_ClearsCache(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	p1, _ := f.addPath(t, "a", domain.CtrlStateLive, &fakeTarget{})
	p2, _ := f.addPath(t, "b", domain.CtrlStateLive, &fakeTarget{})

	require.Same(t, p1, f.head.FindPath())

	assert.Equal(t, 1, f.head.RemovePath(p1))
	assert.Nil(t, f.head.CurrentPath())
	assert.Same(t, p2, f.head.FindPath())

	// Removing an unknown path is a no-op.
	assert.Equal(t, 1, f.head.RemovePath(p1))

	assert.Equal(t, 0, f.head.RemovePath(p2))
	assert.Nil(t, f.head.FindPath())
	assert.Empty(t, f.head.Paths())
}

func TestAddPath_Idempotent(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	p, _ := f.addPath(t, "a", domain.CtrlStateLive, &fakeTarget{})
	f.head.AddPath(p)
	assert.Len(t, f.head.Paths(), 1)
}

func TestRemovePath_NoSubmitAfterCleanup(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy = PolicyRoundRobin
	f := newFixture(t, cfg)
	disk := bringUp(t, f)
	f.addPath(t, "a", domain.CtrlStateLive, &fakeTarget{})
	f.ctrls["b"] = newFakeCtrl("b", domain.CtrlStateLive)

	var (
		dying atomic.Int64
		stop  atomic.Bool
		wg    sync.WaitGroup
	)
	endIO := func(_ *domain.Bio, err error) {
		if errors.Is(err, block.ErrQueueDying) {
			dying.Add(1)
		}
	}
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				disk.Queue.Submit(domain.NewBio(domain.OpRead, 0, nil, disk.Name, endIO))
			}
		}()
	}

	for range 200 {
		p := f.newPath(t, "b", &fakeTarget{})
		f.head.AddPath(p)
		f.head.RemovePath(p)
		p.Disk.Queue.Cleanup()
	}
	stop.Store(true)
	wg.Wait()

	assert.Zero(t, dying.Load())
}
