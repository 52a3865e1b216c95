package stager

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/crate/internal/adapters/archive"            //nolint:depguard // Wired in engine wiring
	"go.trai.ch/crate/internal/adapters/cas"                //nolint:depguard // Wired in engine wiring
	"go.trai.ch/crate/internal/adapters/fs"                 //nolint:depguard // Wired in engine wiring
	"go.trai.ch/crate/internal/adapters/telemetry/progrock" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/crate/internal/core/ports"
)

// NodeID is the unique identifier for the stager Graft node.
const NodeID graft.ID = "engine.stager"

func init() {
	graft.Register(graft.Node[*Stager]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			archive.NodeID,
			fs.HasherNodeID,
			cas.NodeID,
			progrock.NodeID,
		},
		Run: func(ctx context.Context) (*Stager, error) {
			normalizer, err := graft.Dep[ports.ArchiveNormalizer](ctx)
			if err != nil {
				return nil, err
			}

			hasher, err := graft.Dep[ports.Hasher](ctx)
			if err != nil {
				return nil, err
			}

			store, err := graft.Dep[ports.StagingStore](ctx)
			if err != nil {
				return nil, err
			}

			telemetry, err := graft.Dep[ports.Telemetry](ctx)
			if err != nil {
				return nil, err
			}

			return New(normalizer, hasher, store, telemetry), nil
		},
	})
}
