package app

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/crate/internal/adapters/config"             //nolint:depguard // Wired in app layer
	"go.trai.ch/crate/internal/adapters/fs"                 //nolint:depguard // Wired in app layer
	"go.trai.ch/crate/internal/adapters/logger"             //nolint:depguard // Wired in app layer
	"go.trai.ch/crate/internal/adapters/telemetry/progrock" //nolint:depguard // Wired in app layer
	"go.trai.ch/crate/internal/core/ports"
	"go.trai.ch/crate/internal/engine/stager"
)

const (
	// AppNodeID is the unique identifier for the main App Graft node.
	AppNodeID graft.ID = "app.main"
	// ComponentsNodeID is the unique identifier for the App components Graft node.
	ComponentsNodeID graft.ID = "app.components"
)

func init() {
	graft.Register(graft.Node[*App]{
		ID:        AppNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.NodeID,
			logger.NodeID,
			fs.LocatorNodeID,
			fs.WalkerNodeID,
			progrock.NodeID,
			stager.NodeID,
		},
		Run: runAppNode,
	})

	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			AppNodeID,
			logger.NodeID,
		},
		Run: runComponentsNode,
	})
}

func runAppNode(ctx context.Context) (*App, error) {
	loader, err := graft.Dep[ports.ConfigLoader](ctx)
	if err != nil {
		return nil, err
	}

	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}

	locator, err := graft.Dep[ports.ArtifactLocator](ctx)
	if err != nil {
		return nil, err
	}

	walker, err := graft.Dep[*fs.Walker](ctx)
	if err != nil {
		return nil, err
	}

	telemetry, err := graft.Dep[ports.Telemetry](ctx)
	if err != nil {
		return nil, err
	}

	stg, err := graft.Dep[*stager.Stager](ctx)
	if err != nil {
		return nil, err
	}

	return New(loader, log, locator, telemetry, walker, stg), nil
}

func runComponentsNode(ctx context.Context) (*Components, error) {
	app, err := graft.Dep[*App](ctx)
	if err != nil {
		return nil, err
	}

	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}

	return &Components{
		App:    app,
		Logger: log,
	}, nil
}
