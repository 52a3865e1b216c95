package domain

import (
	"fmt"
	"io/fs"
	"time"
)

// ReproducibleEpoch is the fixed timestamp written into archives when timestamps are stripped.
// It is the earliest instant representable in a ZIP MS-DOS date, plus one month, matching
// the constant used by Gradle for reproducible archives.
var ReproducibleEpoch = time.Date(1980, time.February, 1, 0, 0, 0, 0, time.UTC)

const (
	// DefaultDirMode is the permission applied to directory entries (0755).
	DefaultDirMode fs.FileMode = 0o755
	// DefaultFileMode is the permission applied to file entries (0644).
	DefaultFileMode fs.FileMode = 0o644
)

// TimestampPolicy controls entry timestamps in staged archives.
type TimestampPolicy string

const (
	// TimestampPreserve keeps the timestamps written by the build.
	TimestampPreserve TimestampPolicy = "preserve"
	// TimestampStrip rewrites every timestamp to ReproducibleEpoch.
	TimestampStrip TimestampPolicy = "strip"
)

// FileOrderPolicy controls the order of entries in staged archives.
type FileOrderPolicy string

const (
	// OrderArbitrary keeps the order written by the build.
	OrderArbitrary FileOrderPolicy = "arbitrary"
	// OrderReproducible sorts entries by normalized path.
	OrderReproducible FileOrderPolicy = "reproducible"
)

// Permissions are the permission bits applied to archive entries and staged files.
type Permissions struct {
	DirMode  fs.FileMode
	FileMode fs.FileMode
}

// ArchiveSettings are the normalization settings of a session.
// They are loaded once and shared by every descriptor.
type ArchiveSettings struct {
	Permissions     Permissions
	TimestampPolicy TimestampPolicy
	FileOrderPolicy FileOrderPolicy
}

// DefaultArchiveSettings returns reproducible settings with 0755/0644 permissions.
func DefaultArchiveSettings() ArchiveSettings {
	return ArchiveSettings{
		Permissions:     Permissions{DirMode: DefaultDirMode, FileMode: DefaultFileMode},
		TimestampPolicy: TimestampStrip,
		FileOrderPolicy: OrderReproducible,
	}
}

// ArtifactDescriptor describes one build output to be staged.
type ArtifactDescriptor struct {
	SourcePath      string
	DestinationPath string
	Permissions     Permissions
	TimestampPolicy TimestampPolicy
	FileOrderPolicy FileOrderPolicy
}

// Fingerprint identifies the normalization settings of the descriptor.
// Two stages of the same source with equal fingerprints produce the same bytes.
func (d ArtifactDescriptor) Fingerprint() string {
	return fmt.Sprintf("%s/%s/%04o/%04o", d.TimestampPolicy, d.FileOrderPolicy,
		uint32(d.Permissions.DirMode.Perm()), uint32(d.Permissions.FileMode.Perm()))
}

// NewArtifactDescriptor builds a descriptor from the session settings.
func NewArtifactDescriptor(src, dst string, settings ArchiveSettings) ArtifactDescriptor {
	return ArtifactDescriptor{
		SourcePath:      src,
		DestinationPath: dst,
		Permissions:     settings.Permissions,
		TimestampPolicy: settings.TimestampPolicy,
		FileOrderPolicy: settings.FileOrderPolicy,
	}
}

// StagedArtifact is the result of a successful stage.
type StagedArtifact struct {
	Coordinate      ModuleCoordinate
	SourcePath      string
	DestinationPath string
	SourceChecksum  string
	Checksum        string
	Size            int64
	Entries         int
	StagedAt        time.Time
}
