package archive

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/crate/internal/core/ports"
)

// NodeID is the unique identifier for the archive normalizer Graft node.
const NodeID graft.ID = "adapter.archive_normalizer"

func init() {
	graft.Register(graft.Node[ports.ArchiveNormalizer]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.ArchiveNormalizer, error) {
			return NewNormalizer(), nil
		},
	})
}
