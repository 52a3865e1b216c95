package ports

import "go.trai.ch/crate/internal/core/domain"

// ArtifactLocator finds the physical artifact of a coordinate inside a repository source.
//
//go:generate go run go.uber.org/mock/mockgen -source=locator.go -destination=mocks/mock_locator.go -package=mocks
type ArtifactLocator interface {
	// Locate returns the path of the artifact for c in source, resolving relative
	// source locations against root.
	Locate(root string, source domain.RepositorySource, c domain.ModuleCoordinate) (string, error)
}
