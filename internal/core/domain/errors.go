package domain

import (
	"errors"

	"go.trai.ch/zerr"
)

var (
	// ErrConfiguration is returned for ambiguous or malformed repository rules.
	ErrConfiguration = zerr.New("configuration error")

	// ErrUnresolvedDependency is returned when no repository source admits a coordinate.
	ErrUnresolvedDependency = zerr.New("unresolved dependency")

	// ErrStagingIO is returned when a filesystem operation fails while staging an artifact.
	ErrStagingIO = zerr.New("staging I/O error")

	// ErrInvalidCoordinate is returned when a module coordinate cannot be parsed.
	ErrInvalidCoordinate = zerr.New("invalid module coordinate, expected group:name[:version]")

	// ErrInvalidSourceKind is returned when a repository kind is unknown.
	ErrInvalidSourceKind = zerr.New("invalid repository kind, expected 'central', 'flatdir' or 'custom'")

	// ErrInvalidFilterPattern is returned when a filter pattern is empty or not a valid regex.
	ErrInvalidFilterPattern = zerr.New("invalid filter pattern")

	// ErrFilterSetSealed is returned when registering a source after configuration load.
	ErrFilterSetSealed = zerr.New("repository filter set is sealed")

	// ErrInvalidStateTransition is returned when a staging step runs out of order.
	ErrInvalidStateTransition = zerr.New("invalid staging state transition")

	// ErrArtifactNotBuilt is returned when the artifact to stage does not exist.
	ErrArtifactNotBuilt = zerr.New("artifact has not been built")

	// ErrRemoteSource is returned when a coordinate resolves to a source that crate cannot read locally.
	ErrRemoteSource = zerr.New("source is remote and is fetched by the build engine")

	// ErrArtifactNotFound is returned when a local source does not contain the resolved artifact.
	ErrArtifactNotFound = zerr.New("artifact not found in source")

	// ErrModuleNotFound is returned when a named module is not declared in the configuration.
	ErrModuleNotFound = zerr.New("module not found")

	// ErrInvalidPermissions is returned when a configured permission mode is out of range.
	ErrInvalidPermissions = zerr.New("invalid permission mode")

	// ErrConfigNotFound is returned when the configuration file cannot be found.
	ErrConfigNotFound = zerr.New("could not find crate.yaml")

	// ErrConfigReadFailed is returned when the configuration file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read config file")

	// ErrConfigParseFailed is returned when the configuration file cannot be parsed.
	ErrConfigParseFailed = zerr.New("failed to parse config file")

	// ErrStoreReadFailed is returned when the release manifest cannot be read.
	ErrStoreReadFailed = zerr.New("failed to read release manifest")

	// ErrStoreWriteFailed is returned when the release manifest cannot be written.
	ErrStoreWriteFailed = zerr.New("failed to write release manifest")

	// ErrResolutionFailed is returned when at least one coordinate of a batch is unresolved.
	ErrResolutionFailed = zerr.New("dependency resolution failed")

	// ErrStagingFailed is returned when at least one artifact of a batch failed to stage.
	ErrStagingFailed = zerr.New("artifact staging failed")
)

// NewStagingIOError reports a filesystem failure on path.
// The result matches both ErrStagingIO and cause with errors.Is.
func NewStagingIOError(path, op string, cause error) error {
	return errors.Join(ErrStagingIO, zerr.With(zerr.Wrap(cause, op), "path", path))
}
