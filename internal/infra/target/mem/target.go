// Package mem is an in-memory storage target. Every port of a Target sees
// the same namespaces, so several controllers connected through different
// ports reach the same data. Ports can be taken down or told to fail
// requests, which makes the target useful for exercising failover.
package mem

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/vietddude/mpath/internal/core/domain"
	"github.com/vietddude/mpath/internal/fabric"
)

// SectorSize is the unit of Bio.Sector.
const SectorSize = 512

var (
	ErrPortDown     = errors.New("port is down")
	ErrPortClosed   = errors.New("port is closed")
	ErrNotConnected = errors.New("port is not connected")
)

type namespace struct {
	info fabric.NamespaceInfo

	mu   sync.RWMutex
	data []byte
}

// Target holds namespaces shared by all of its ports.
type Target struct {
	log *slog.Logger

	mu         sync.RWMutex
	namespaces map[uint32]*namespace
	ports      map[string]*Port
}

// NewTarget creates an empty target.
func NewTarget(log *slog.Logger) *Target {
	if log == nil {
		log = slog.Default()
	}
	return &Target{
		log:        log,
		namespaces: make(map[uint32]*namespace),
		ports:      make(map[string]*Port),
	}
}

// AddNamespace creates a zero-filled namespace.
func (t *Target) AddNamespace(nsid uint32, sizeBytes uint64, blockSize uint32) (fabric.NamespaceInfo, error) {
	if nsid == 0 {
		return fabric.NamespaceInfo{}, errors.New("nsid 0 is reserved")
	}
	if blockSize == 0 {
		blockSize = SectorSize
	}
	if sizeBytes == 0 || sizeBytes%uint64(blockSize) != 0 {
		return fabric.NamespaceInfo{}, fmt.Errorf("namespace %d: size %d is not a multiple of block size %d", nsid, sizeBytes, blockSize)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.namespaces[nsid]; ok {
		return fabric.NamespaceInfo{}, fmt.Errorf("namespace %d already exists", nsid)
	}

	id := uuid.New()
	info := fabric.NamespaceInfo{
		NSID:      nsid,
		SizeBytes: sizeBytes,
		BlockSize: blockSize,
		UUID:      id,
		NGUID:     hex.EncodeToString(id[:]),
		EUI64:     hex.EncodeToString(id[:8]),
	}
	t.namespaces[nsid] = &namespace{info: info, data: make([]byte, sizeBytes)}
	t.log.Debug("Namespace created", "nsid", nsid, "size", sizeBytes, "block_size", blockSize)
	return info, nil
}

// RemoveNamespace deletes a namespace. Controllers notice on their next scan.
func (t *Target) RemoveNamespace(nsid uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.namespaces, nsid)
}

// Port returns the port called name, creating it on first use.
func (t *Target) Port(name string) *Port {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.ports[name]; ok {
		return p
	}
	p := &Port{target: t, name: name}
	t.ports[name] = p
	return p
}

func (t *Target) namespace(nsid uint32) (*namespace, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ns, ok := t.namespaces[nsid]
	return ns, ok
}

func (t *Target) infos() []fabric.NamespaceInfo {
	t.mu.RLock()
	out := make([]fabric.NamespaceInfo, 0, len(t.namespaces))
	for _, ns := range t.namespaces {
		out = append(out, ns.info)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].NSID < out[j].NSID })
	return out
}

// Port is one way into the target. It implements fabric.Transport.
type Port struct {
	target *Target
	name   string

	mu        sync.Mutex
	down      bool
	connected bool
	closed    bool
	faults    []domain.Status

	connects atomic.Int64
	executed atomic.Int64
}

var _ fabric.Transport = (*Port)(nil)

// Name returns the port name.
func (p *Port) Name() string { return p.name }

// SetDown takes the link down or brings it back. A downed port drops its
// association and refuses to connect.
func (p *Port) SetDown(down bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.down = down
	if down {
		p.connected = false
	}
}

// FailNext makes the next requests complete with statuses, in order.
func (p *Port) FailNext(statuses ...domain.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.faults = append(p.faults, statuses...)
}

// Connects returns the number of successful connects.
func (p *Port) Connects() int64 { return p.connects.Load() }

// Executed returns the number of requests that reached the port.
func (p *Port) Executed() int64 { return p.executed.Load() }

// Connected reports whether the port has a live association.
func (p *Port) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *Port) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.closed:
		return ErrPortClosed
	case p.down:
		return ErrPortDown
	}
	p.connected = true
	p.connects.Add(1)
	return nil
}

func (p *Port) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	return nil
}

func (p *Port) Identify(ctx context.Context) ([]fabric.NamespaceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !p.Connected() {
		return nil, ErrNotConnected
	}
	return p.target.infos(), nil
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.connected = false
	return nil
}

// Execute runs req synchronously and finishes it.
func (p *Port) Execute(nsid uint32, req *domain.Request) {
	p.executed.Add(1)
	req.Finish(p.execute(nsid, req))
}

func (p *Port) execute(nsid uint32, req *domain.Request) domain.Status {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return domain.StatusHostPathError
	}
	if len(p.faults) > 0 {
		s := p.faults[0]
		p.faults = p.faults[1:]
		p.mu.Unlock()
		return s
	}
	p.mu.Unlock()

	ns, ok := p.target.namespace(nsid)
	if !ok {
		return domain.StatusInvalidNS | domain.StatusDNR
	}

	for _, bio := range req.Bios() {
		if s := ns.do(bio); s != domain.StatusSuccess {
			return s
		}
	}
	return domain.StatusSuccess
}

func (ns *namespace) do(bio *domain.Bio) domain.Status {
	if bio.Op == domain.OpFlush {
		return domain.StatusSuccess
	}

	off := bio.Sector * SectorSize
	end := off + uint64(len(bio.Data))
	if end < off || end > uint64(len(ns.data)) {
		return domain.StatusLBARange | domain.StatusDNR
	}

	switch bio.Op {
	case domain.OpRead:
		ns.mu.RLock()
		copy(bio.Data, ns.data[off:end])
		ns.mu.RUnlock()
	case domain.OpWrite:
		ns.mu.Lock()
		copy(ns.data[off:end], bio.Data)
		ns.mu.Unlock()
	default:
		return domain.StatusInvalidOpcode | domain.StatusDNR
	}
	return domain.StatusSuccess
}
