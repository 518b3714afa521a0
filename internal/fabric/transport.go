package fabric

import (
	"context"

	"github.com/google/uuid"

	"github.com/vietddude/mpath/internal/core/domain"
)

// NamespaceInfo is what a controller reports about one of its namespaces.
type NamespaceInfo struct {
	NSID      uint32
	SizeBytes uint64
	BlockSize uint32
	UUID      uuid.UUID
	NGUID     string
	EUI64     string
}

// Transport carries commands between a controller and its target.
type Transport interface {
	// Connect establishes (or re-establishes) the association.
	Connect(ctx context.Context) error

	// Disconnect drops the association. Requests issued afterwards fail
	// with a path error until Connect succeeds again.
	Disconnect() error

	// Identify lists the namespaces visible through this controller.
	Identify(ctx context.Context) ([]NamespaceInfo, error)

	// Execute runs req against namespace nsid and must eventually call
	// req.Finish exactly once.
	Execute(nsid uint32, req *domain.Request)

	// Close releases the transport for good.
	Close() error
}
