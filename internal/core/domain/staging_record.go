package domain

import "time"

// StagingRecord is the release manifest entry written for every staged artifact.
type StagingRecord struct {
	Destination    string    `json:"destination,omitzero"`
	Coordinate     string    `json:"coordinate,omitzero"`
	Source         string    `json:"source,omitzero"`
	SourceChecksum string    `json:"source_checksum,omitzero"`
	Settings       string    `json:"settings,omitzero"`
	Checksum       string    `json:"checksum,omitzero"`
	Size           int64     `json:"size,omitzero"`
	StagedAt       time.Time `json:"staged_at,omitzero"`
}

// NewStagingRecord converts a staged artifact into its manifest entry.
// settings is the fingerprint of the descriptor it was staged with.
func NewStagingRecord(a StagedArtifact, settings string) StagingRecord {
	return StagingRecord{
		Destination:    a.DestinationPath,
		Coordinate:     a.Coordinate.String(),
		Source:         a.SourcePath,
		SourceChecksum: a.SourceChecksum,
		Settings:       settings,
		Checksum:       a.Checksum,
		Size:           a.Size,
		StagedAt:       a.StagedAt,
	}
}
