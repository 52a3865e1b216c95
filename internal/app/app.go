// Package app implements the application layer for crate.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.trai.ch/crate/internal/adapters/fs"
	"go.trai.ch/crate/internal/core/domain"
	"go.trai.ch/crate/internal/core/ports"
	"go.trai.ch/crate/internal/engine/resolver"
	"go.trai.ch/crate/internal/engine/stager"
	"go.trai.ch/zerr"
)

// App represents the main application logic.
type App struct {
	configLoader ports.ConfigLoader
	logger       ports.Logger
	locator      ports.ArtifactLocator
	telemetry    ports.Telemetry
	walker       *fs.Walker
	stager       *stager.Stager
}

// New creates a new App instance.
func New(
	loader ports.ConfigLoader,
	log ports.Logger,
	locator ports.ArtifactLocator,
	telemetry ports.Telemetry,
	walker *fs.Walker,
	stg *stager.Stager,
) *App {
	return &App{
		configLoader: loader,
		logger:       log,
		locator:      locator,
		telemetry:    telemetry,
		walker:       walker,
		stager:       stg,
	}
}

// ConfigOptions locate the configuration file.
type ConfigOptions struct {
	// Cwd is the directory the search starts from. Empty means the process working directory.
	Cwd string
	// Path is the configuration file, relative to Cwd. Empty or the default name searches upward.
	Path string
}

// ResolveOptions configuration for the Resolve method.
type ResolveOptions struct {
	ConfigOptions
	// Coordinates to resolve. Empty resolves every module dependency.
	Coordinates []string
}

// StageOptions configuration for the Stage method.
type StageOptions struct {
	ConfigOptions
	// Modules to stage. Empty stages every module.
	Modules []string
	NoCache bool
}

// CopyDepsOptions configuration for the CopyDeps method.
type CopyDepsOptions struct {
	ConfigOptions
	Module  string
	NoCache bool
}

// CopyDepsResult reports the outcome of CopyDeps.
type CopyDepsResult struct {
	// Copied are the dependencies copied from local sources.
	Copied []domain.StagedArtifact
	// Remote are the dependencies served by remote sources, left to the build engine.
	Remote []resolver.Resolution
}

// SetJSONLogs switches the logger to JSON output when it supports it.
func (a *App) SetJSONLogs(enable bool) {
	if l, ok := a.logger.(interface{ SetJSON(bool) }); ok {
		l.SetJSON(enable)
	}
}

// Resolve maps coordinates to the repository source that serves them.
func (a *App) Resolve(ctx context.Context, opts ResolveOptions) ([]resolver.Resolution, error) {
	cfg, err := a.loadConfig(opts.ConfigOptions)
	if err != nil {
		return nil, err
	}

	coords := cfg.Dependencies()
	if len(opts.Coordinates) > 0 {
		coords = make([]domain.ModuleCoordinate, 0, len(opts.Coordinates))
		for _, s := range opts.Coordinates {
			c, err := domain.ParseModuleCoordinate(s)
			if err != nil {
				return nil, err
			}
			coords = append(coords, c)
		}
	}

	defer a.closeTelemetry()
	return a.pipeline(cfg).ResolveAll(ctx, coords)
}

// Stage normalizes every artifact in the selected modules' libs directories and
// places it in the release directory.
func (a *App) Stage(ctx context.Context, opts StageOptions) ([]domain.StagedArtifact, error) {
	cfg, err := a.loadConfig(opts.ConfigOptions)
	if err != nil {
		return nil, err
	}

	modules, err := selectModules(cfg, opts.Modules)
	if err != nil {
		return nil, err
	}

	var (
		requests []stager.Request
		errs     []error
	)
	for _, m := range modules {
		reqs, err := a.moduleRequests(cfg, m)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(reqs) == 0 {
			a.logger.Warn(fmt.Sprintf("module %s has no built artifacts in %s", m.Coordinate.Name, m.LibsDir))
			continue
		}
		requests = append(requests, reqs...)
	}

	a.logger.Info(fmt.Sprintf("staging %d artifacts into %s", len(requests), cfg.ReleaseDir))

	defer a.closeTelemetry()
	staged, err := a.stager.StageAll(ctx, cfg.ReleaseDir, requests, opts.NoCache)
	if len(errs) == 0 {
		return staged, err
	}
	if err == nil {
		err = domain.ErrStagingFailed
	}
	return staged, errors.Join(append([]error{err}, errs...)...)
}

// CopyDeps resolves a module's dependencies and copies the locally available ones
// into its deps directory.
func (a *App) CopyDeps(ctx context.Context, opts CopyDepsOptions) (*CopyDepsResult, error) {
	cfg, err := a.loadConfig(opts.ConfigOptions)
	if err != nil {
		return nil, err
	}

	m, ok := cfg.Module(opts.Module)
	if !ok {
		return nil, zerr.With(zerr.Wrap(domain.ErrModuleNotFound, "unknown module"), "module", opts.Module)
	}

	defer a.closeTelemetry()

	p := a.pipeline(cfg)
	resolutions, resolveErr := p.ResolveAll(ctx, m.Dependencies)

	// Dependency jars keep their content; only permissions are applied.
	settings := cfg.Archives
	settings.TimestampPolicy = domain.TimestampPreserve
	settings.FileOrderPolicy = domain.OrderArbitrary

	result := &CopyDepsResult{}
	var (
		requests []stager.Request
		errs     []error
	)
	for _, r := range resolutions {
		path, err := p.Locate(r.Source, r.Coordinate)
		switch {
		case errors.Is(err, domain.ErrRemoteSource):
			result.Remote = append(result.Remote, r)
		case err != nil:
			errs = append(errs, err)
		default:
			dst := filepath.Join(m.DepsDir, filepath.Base(path))
			requests = append(requests, stager.Request{
				Coordinate: r.Coordinate,
				Descriptor: domain.NewArtifactDescriptor(path, dst, settings),
			})
		}
	}

	copied, stageErr := a.stager.StageAll(ctx, m.DepsDir, requests, opts.NoCache)
	result.Copied = copied

	if resolveErr != nil {
		errs = append([]error{resolveErr}, errs...)
	}
	if stageErr != nil {
		errs = append(errs, stageErr)
	}
	if len(errs) > 0 {
		return result, errors.Join(errs...)
	}
	return result, nil
}

func (a *App) loadConfig(opts ConfigOptions) (*domain.Config, error) {
	cwd := opts.Cwd
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, zerr.Wrap(err, "failed to get working directory")
		}
		cwd = wd
	}

	cfg, err := a.configLoader.Load(cwd, opts.Path)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load configuration")
	}
	return cfg, nil
}

func (a *App) pipeline(cfg *domain.Config) *resolver.Pipeline {
	return resolver.NewPipeline(cfg.Repositories, cfg.Root, a.locator, a.telemetry, a.logger).
		WithStrict(cfg.Strict)
}

func (a *App) closeTelemetry() {
	if err := a.telemetry.Close(); err != nil {
		a.logger.Warn(fmt.Sprintf("failed to close telemetry: %v", err))
	}
}

// moduleRequests builds one staging request per file in the module's libs directory.
func (a *App) moduleRequests(cfg *domain.Config, m domain.Module) ([]stager.Request, error) {
	info, err := os.Stat(m.LibsDir)
	if err != nil || !info.IsDir() {
		err := zerr.With(zerr.Wrap(domain.ErrArtifactNotBuilt, "libs directory does not exist"), "module", m.Coordinate.Name.String())
		return nil, zerr.With(err, "path", m.LibsDir)
	}

	var requests []stager.Request
	for path := range a.walker.WalkFiles(m.LibsDir, nil) {
		rel, err := filepath.Rel(m.LibsDir, path)
		if err != nil {
			return nil, domain.NewStagingIOError(path, "relativize artifact path", err)
		}
		requests = append(requests, stager.Request{
			Coordinate: m.Coordinate,
			Descriptor: domain.NewArtifactDescriptor(path, filepath.Join(cfg.ReleaseDir, rel), cfg.Archives),
		})
	}
	return requests, nil
}

func selectModules(cfg *domain.Config, names []string) ([]domain.Module, error) {
	if len(names) == 0 {
		return cfg.Modules, nil
	}

	modules := make([]domain.Module, 0, len(names))
	for _, name := range names {
		m, ok := cfg.Module(name)
		if !ok {
			return nil, zerr.With(zerr.Wrap(domain.ErrModuleNotFound, "unknown module"), "module", name)
		}
		modules = append(modules, m)
	}
	return modules, nil
}
