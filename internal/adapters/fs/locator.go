package fs

import (
	"os"
	"path/filepath"
	"strings"

	"go.trai.ch/crate/internal/core/domain"
	"go.trai.ch/crate/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.ArtifactLocator = (*Locator)(nil)

// Locator maps a resolved coordinate to a file inside a local repository source.
type Locator struct{}

// NewLocator creates a new Locator.
func NewLocator() *Locator {
	return &Locator{}
}

// Locate returns the path of the jar for c in source. Relative source locations are
// resolved against root. Remote sources return domain.ErrRemoteSource.
func (l *Locator) Locate(root string, source domain.RepositorySource, c domain.ModuleCoordinate) (string, error) {
	if source.IsRemote() {
		err := zerr.Wrap(domain.ErrRemoteSource, "cannot read remote source locally")
		return "", zerr.With(zerr.With(err, "source", source.String()), "coordinate", c.String())
	}

	location := strings.TrimPrefix(source.Location, "file://")
	if !filepath.IsAbs(location) {
		location = filepath.Join(root, location)
	}

	candidates := l.candidates(location, source.Kind, c)
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && info.Mode().IsRegular() {
			return candidate, nil
		}
	}

	err := zerr.Wrap(domain.ErrArtifactNotFound, "no artifact file for coordinate")
	err = zerr.With(err, "coordinate", c.String())
	return "", zerr.With(err, "candidates", candidates)
}

// candidates lists the file names tried for c, in order.
func (l *Locator) candidates(location string, kind domain.SourceKind, c domain.ModuleCoordinate) []string {
	name, version := c.Name.String(), c.Version.String()

	if kind == domain.SourceFlatDir {
		var out []string
		if version != "" {
			out = append(out, filepath.Join(location, name+"-"+version+".jar"))
		}
		return append(out, filepath.Join(location, name+".jar"))
	}

	groupPath := filepath.Join(strings.Split(c.Group.String(), ".")...)
	if version == "" {
		return nil
	}
	return []string{filepath.Join(location, groupPath, name, version, name+"-"+version+".jar")}
}
