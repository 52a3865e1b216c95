// Package resolver implements the repository resolution pipeline.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.trai.ch/crate/internal/core/domain"
	"go.trai.ch/crate/internal/core/ports"
	"go.trai.ch/zerr"
)

// Resolution is the outcome of resolving one coordinate.
type Resolution struct {
	Coordinate domain.ModuleCoordinate
	Source     domain.RepositorySource
}

// Pipeline resolves coordinates against an ordered, sealed repository filter set.
// It holds no mutable state and is safe for concurrent use.
type Pipeline struct {
	sources   *domain.RepositoryFilterSet
	root      string
	locator   ports.ArtifactLocator
	telemetry ports.Telemetry
	logger    ports.Logger
	strict    bool
}

// NewPipeline creates a Pipeline over sources. Relative source locations are resolved against root.
func NewPipeline(
	sources *domain.RepositoryFilterSet,
	root string,
	locator ports.ArtifactLocator,
	telemetry ports.Telemetry,
	logger ports.Logger,
) *Pipeline {
	return &Pipeline{
		sources:   sources,
		root:      root,
		locator:   locator,
		telemetry: telemetry,
		logger:    logger,
	}
}

// WithStrict makes rule conflicts found during resolution fail the coordinate.
func (p *Pipeline) WithStrict(strict bool) *Pipeline {
	p.strict = strict
	return p
}

// Resolve returns the first source, in registration order, that admits c.
func (p *Pipeline) Resolve(ctx context.Context, c domain.ModuleCoordinate) (domain.RepositorySource, error) {
	if err := ctx.Err(); err != nil {
		return domain.RepositorySource{}, err
	}

	_, vertex := p.telemetry.Record(ctx, "resolve "+c.String())

	source, err := p.resolve(c, vertex)
	vertex.Complete(err)
	return source, err
}

func (p *Pipeline) resolve(c domain.ModuleCoordinate, vertex ports.Vertex) (domain.RepositorySource, error) {
	if conflicts := p.sources.Conflicts(c); len(conflicts) > 0 {
		if p.strict {
			errs := make([]error, 0, len(conflicts))
			for _, a := range conflicts {
				errs = append(errs, a.Err())
			}
			return domain.RepositorySource{}, zerr.With(errors.Join(errs...), "coordinate", c.String())
		}
		for _, a := range conflicts {
			msg := fmt.Sprintf("%s: %s in %s, exclusion wins", c, a.Reason, strings.Join(a.Sources, ", "))
			p.logger.Warn(msg)
			vertex.Log(domain.LogLevelWarn, msg)
		}
	}

	matches := p.sources.Matches(c)
	if len(matches) == 0 {
		err := zerr.With(zerr.Wrap(domain.ErrUnresolvedDependency, "no repository admits coordinate"), "coordinate", c.String())
		return domain.RepositorySource{}, zerr.With(err, "consulted", p.sources.Names())
	}

	vertex.Log(domain.LogLevelInfo, fmt.Sprintf("%s -> %s", c, matches[0]))
	return matches[0], nil
}

// ResolveAll resolves every coordinate in order. A failure never stops the
// remaining coordinates; all failures are joined under ErrResolutionFailed.
func (p *Pipeline) ResolveAll(ctx context.Context, coords []domain.ModuleCoordinate) ([]Resolution, error) {
	resolutions := make([]Resolution, 0, len(coords))
	var errs []error

	for _, c := range coords {
		source, err := p.Resolve(ctx, c)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				errs = append(errs, ctxErr)
				break
			}
			errs = append(errs, err)
			continue
		}
		resolutions = append(resolutions, Resolution{Coordinate: c, Source: source})
	}

	if len(errs) > 0 {
		return resolutions, errors.Join(append([]error{domain.ErrResolutionFailed}, errs...)...)
	}
	return resolutions, nil
}

// Locate maps c to its file inside source. Remote sources return domain.ErrRemoteSource.
func (p *Pipeline) Locate(source domain.RepositorySource, c domain.ModuleCoordinate) (string, error) {
	return p.locator.Locate(p.root, source, c)
}
