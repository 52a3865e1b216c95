package cas

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/crate/internal/core/ports"
)

// NodeID is the unique identifier for the staging store Graft node.
const NodeID graft.ID = "adapter.staging_store"

func init() {
	graft.Register(graft.Node[ports.StagingStore]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.StagingStore, error) {
			return NewStore(), nil
		},
	})
}
