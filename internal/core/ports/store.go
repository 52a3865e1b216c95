package ports

import "go.trai.ch/crate/internal/core/domain"

// StagingStore defines the interface for the release manifest.
//
//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
type StagingStore interface {
	// Get retrieves the record for a destination path inside the release directory root.
	// Returns nil, nil if not found.
	Get(root, destination string) (*domain.StagingRecord, error)

	// Put stores the record, replacing any previous record for the same destination.
	Put(root string, record domain.StagingRecord) error
}
