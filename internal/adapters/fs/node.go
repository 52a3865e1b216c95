package fs

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/crate/internal/core/ports"
)

const (
	// WalkerNodeID is the unique identifier for the Walker Graft node.
	WalkerNodeID graft.ID = "adapter.fs.walker"
	// HasherNodeID is the unique identifier for the Hasher Graft node.
	HasherNodeID graft.ID = "adapter.fs.hasher"
	// LocatorNodeID is the unique identifier for the Locator Graft node.
	LocatorNodeID graft.ID = "adapter.fs.locator"
)

func init() {
	graft.Register(graft.Node[*Walker]{
		ID:        WalkerNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (*Walker, error) {
			return NewWalker(), nil
		},
	})

	graft.Register(graft.Node[ports.Hasher]{
		ID:        HasherNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.Hasher, error) {
			return NewHasher(), nil
		},
	})

	graft.Register(graft.Node[ports.ArtifactLocator]{
		ID:        LocatorNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.ArtifactLocator, error) {
			return NewLocator(), nil
		},
	})
}
