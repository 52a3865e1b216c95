// Package ports defines the core interfaces for the application.
package ports

import "go.trai.ch/crate/internal/core/domain"

// ConfigLoader defines the interface for loading the session configuration.
//
//go:generate go run go.uber.org/mock/mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load reads the configuration file at path, relative to cwd, and returns the
	// validated configuration with a sealed repository filter set.
	Load(cwd, path string) (*domain.Config, error)
}
