package mpath

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vietddude/mpath/internal/core/domain"
	"github.com/vietddude/mpath/internal/infra/block"
)

type fakeCtrl struct {
	id     string
	state  atomic.Int32
	vwc    bool
	resets atomic.Int32
}

func newFakeCtrl(id string, state domain.CtrlState) *fakeCtrl {
	c := &fakeCtrl{id: id}
	c.state.Store(int32(state))
	return c
}

func (c *fakeCtrl) ID() string { return c.id }

func (c *fakeCtrl) State() domain.CtrlState { return domain.CtrlState(c.state.Load()) }

func (c *fakeCtrl) VolatileWriteCache() bool { return c.vwc }

func (c *fakeCtrl) set(s domain.CtrlState) { c.state.Store(int32(s)) }

func (c *fakeCtrl) Reset() {
	c.resets.Add(1)
	c.set(domain.CtrlStateResetting)
}

type fakeTable map[string]*fakeCtrl

func (t fakeTable) Controller(id string) (Controller, bool) {
	c, ok := t[id]
	if !ok {
		return nil, false
	}
	return c, true
}

type fakeSubsys struct {
	instance int
	shared   bool
}

func (s fakeSubsys) Instance() int { return s.instance }

func (s fakeSubsys) SharedNamespaces() bool { return s.shared }

type fakePublisher struct {
	mu        sync.Mutex
	published []Identity
	removed   []string
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, id Identity) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, id)
	return p.err
}

func (p *fakePublisher) Unpublish(_ context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, name)
	return p.err
}

// fakeTarget answers every request on a path with the next queued status,
// or success once the script runs out.
type fakeTarget struct {
	mu     sync.Mutex
	script []domain.Status
	seen   []*domain.Bio
}

func (t *fakeTarget) fail(statuses ...domain.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.script = append(t.script, statuses...)
}

func (t *fakeTarget) next(bio *domain.Bio) domain.Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen = append(t.seen, bio)
	if len(t.script) == 0 {
		return domain.StatusSuccess
	}
	s := t.script[0]
	t.script = t.script[1:]
	return s
}

func (t *fakeTarget) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	head     *Head
	ctrls    fakeTable
	registry *block.Registry
	pub      *fakePublisher
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		ctrls:    fakeTable{},
		registry: block.NewRegistry(discardLogger()),
		pub:      &fakePublisher{},
	}
	f.head = NewHead(Options{
		Instance:    1,
		NSID:        1,
		Subsystem:   fakeSubsys{instance: 0, shared: true},
		Controllers: f.ctrls,
		Registry:    f.registry,
		Publisher:   f.pub,
		Config:      cfg,
		Logger:      discardLogger(),
	})
	t.Cleanup(func() { f.head.TearDown(context.Background()) })
	return f
}

// addPath registers a controller in state and a path over a queue that
// completes requests through the head, answering from target.
func (f *fixture) addPath(t *testing.T, ctrlID string, state domain.CtrlState, target *fakeTarget) (*Path, *fakeCtrl) {
	t.Helper()
	ctrl := newFakeCtrl(ctrlID, state)
	f.ctrls[ctrlID] = ctrl

	p := f.newPath(t, ctrlID, target)
	f.head.AddPath(p)
	return p, ctrl
}

// newPath builds a path for ctrlID without adding it to the head.
func (f *fixture) newPath(t *testing.T, ctrlID string, target *fakeTarget) *Path {
	t.Helper()
	q := block.AllocQueue()
	disk, err := block.AllocDisk(f.head.Name()+"-"+ctrlID, q)
	require.NoError(t, err)
	disk.Hidden = true

	p := NewPath(ctrlID, disk)
	q.SetMakeRequest(func(_ *block.Queue, bio *domain.Bio) block.Cookie {
		req := domain.NewRequest(bio)
		req.SetCompletion(func(r *domain.Request) { f.head.Complete(p, r) })
		req.Finish(target.next(bio))
		return block.Cookie(1)
	})
	q.SetPoll(func(*block.Queue, block.Cookie) bool { return true })
	return p
}

type endRecorder struct {
	mu   sync.Mutex
	errs map[*domain.Bio]error
}

func newEndRecorder() *endRecorder {
	return &endRecorder{errs: map[*domain.Bio]error{}}
}

func (r *endRecorder) endIO(b *domain.Bio, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[b] = err
}

func (r *endRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

func (r *endRecorder) err(b *domain.Bio) (error, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	err, ok := r.errs[b]
	return err, ok
}
