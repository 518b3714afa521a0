package mpath

import "context"

// Identity is the set of identification attributes exposed for an aggregate disk.
type Identity struct {
	Name      string   `json:"name"`
	Subsystem int      `json:"subsystem"`
	NSID      uint32   `json:"nsid"`
	UUID      string   `json:"uuid"`
	NGUID     string   `json:"nguid,omitempty"`
	EUI64     string   `json:"eui64,omitempty"`
	Paths     []string `json:"paths,omitempty"`
}

// AttrPublisher exposes identity attributes of aggregate disks to the
// outside world. Failures are reported but never fatal to the head.
type AttrPublisher interface {
	Publish(ctx context.Context, id Identity) error
	Unpublish(ctx context.Context, name string) error
}

// NopPublisher discards attributes.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Identity) error { return nil }

func (NopPublisher) Unpublish(context.Context, string) error { return nil }
