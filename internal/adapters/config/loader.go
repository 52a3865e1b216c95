// Package config provides the configuration loader for crate.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"go.trai.ch/crate/internal/core/domain"
	"go.trai.ch/crate/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

const defaultReleaseDir = "releases"

var validModuleNameRegex = regexp.MustCompile("^[a-zA-Z0-9._-]+$")

// Loader implements ports.ConfigLoader using a YAML file.
type Loader struct {
	Logger ports.Logger
}

// NewLoader creates a new Loader with the given logger.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{Logger: logger}
}

// Load reads the configuration and returns it with a sealed repository filter set.
// An empty path, or the default file name, is searched for from cwd upward.
func (l *Loader) Load(cwd, path string) (*domain.Config, error) {
	configPath, err := findConfiguration(cwd, path)
	if err != nil {
		return nil, err
	}

	var file Cratefile
	if err := readAndUnmarshalYAML(configPath, &file); err != nil {
		return nil, zerr.With(err, "path", configPath)
	}

	cfg := &domain.Config{
		Root:   resolveRoot(configPath, file.Root),
		Strict: file.Strict,
	}

	releases := file.Releases
	if releases == "" {
		releases = defaultReleaseDir
	}
	cfg.ReleaseDir = resolvePath(cfg.Root, releases)

	if cfg.Repositories, err = buildRepositories(file.Repositories); err != nil {
		return nil, err
	}

	if cfg.Archives, err = buildArchiveSettings(file.Archives); err != nil {
		return nil, err
	}

	if cfg.Modules, err = buildModules(cfg.Root, file.Group, file.Modules); err != nil {
		return nil, err
	}

	cfg.Ambiguities = cfg.Repositories.Ambiguities()
	if len(cfg.Ambiguities) > 0 {
		errs := make([]error, 0, len(cfg.Ambiguities))
		for _, a := range cfg.Ambiguities {
			errs = append(errs, a.Err())
		}
		if cfg.Strict {
			return nil, errors.Join(errs...)
		}
		for _, a := range cfg.Ambiguities {
			l.Logger.Warn(fmt.Sprintf("ambiguous repository rules in %s: %s '%s'",
				strings.Join(a.Sources, ", "), a.Reason, a.Pattern))
		}
	}

	return cfg, nil
}

func findConfiguration(cwd, path string) (string, error) {
	if path != "" && path != domain.ConfigFileName {
		configPath := resolvePath(cwd, path)
		if _, err := os.Stat(configPath); err != nil {
			return "", zerr.With(zerr.Wrap(domain.ErrConfigNotFound, "config file does not exist"), "path", configPath)
		}
		return configPath, nil
	}

	currentDir := cwd
	for {
		configPath := filepath.Join(currentDir, domain.ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			// Reached root
			break
		}
		currentDir = parentDir
	}

	return "", zerr.With(zerr.Wrap(domain.ErrConfigNotFound, "no config file in any parent directory"), "cwd", cwd)
}

func buildRepositories(dtos []RepositoryDTO) (*domain.RepositoryFilterSet, error) {
	set, err := domain.NewRepositoryFilterSet()
	if err != nil {
		return nil, err
	}

	names := make(map[string]struct{}, len(dtos))
	for i := range dtos {
		dto := dtos[i]
		source, err := buildRepository(dto)
		if err != nil {
			return nil, zerr.With(err, "repository", repositoryLabel(dto, i))
		}

		if _, dup := names[source.String()]; dup {
			return nil, zerr.With(zerr.Wrap(domain.ErrConfiguration, "duplicate repository name"), "repository", source.String())
		}
		names[source.String()] = struct{}{}

		if err := set.Register(source); err != nil {
			return nil, err
		}
	}

	set.Seal()
	return set, nil
}

func buildRepository(dto RepositoryDTO) (domain.RepositorySource, error) {
	kind, err := domain.ParseSourceKind(dto.Kind)
	if err != nil {
		return domain.RepositorySource{}, err
	}

	if kind != domain.SourceCentral && dto.Location == "" {
		return domain.RepositorySource{}, zerr.Wrap(domain.ErrConfiguration, "repository location is required")
	}

	rules := make([]domain.FilterRule, 0, len(dto.Include)+len(dto.Exclude)+len(dto.Rules))
	for _, p := range dto.Include {
		if isEmptyPattern(p) {
			continue
		}
		r, err := domain.NewFilterRule(p, domain.FilterInclude, shorthandTarget(p))
		if err != nil {
			return domain.RepositorySource{}, err
		}
		rules = append(rules, r)
	}
	for _, p := range dto.Exclude {
		if isEmptyPattern(p) {
			continue
		}
		r, err := domain.NewFilterRule(p, domain.FilterExclude, shorthandTarget(p))
		if err != nil {
			return domain.RepositorySource{}, err
		}
		rules = append(rules, r)
	}
	for _, rule := range dto.Rules {
		if isEmptyPattern(rule.Pattern) {
			continue
		}
		r, err := domain.NewFilterRule(
			rule.Pattern,
			domain.FilterMode(strings.ToLower(rule.Mode)),
			domain.FilterTarget(strings.ToLower(rule.Target)),
		)
		if err != nil {
			return domain.RepositorySource{}, err
		}
		rules = append(rules, r)
	}

	return domain.RepositorySource{
		Name:      dto.Name,
		Kind:      kind,
		Location:  dto.Location,
		Rules:     rules,
		Exclusive: dto.Exclusive,
	}, nil
}

// isEmptyPattern reports whether a configured rule has no pattern. Such a rule filters
// nothing and is dropped, leaving the source to admit every coordinate.
func isEmptyPattern(p string) bool {
	return strings.TrimSpace(p) == ""
}

// shorthandTarget matches patterns containing a colon against "group:name".
func shorthandTarget(pattern string) domain.FilterTarget {
	if strings.Contains(pattern, ":") {
		return domain.TargetModule
	}
	return domain.TargetGroup
}

func buildArchiveSettings(dto ArchivesDTO) (domain.ArchiveSettings, error) {
	settings := domain.DefaultArchiveSettings()

	if dto.PreserveFileTimestamps != nil && *dto.PreserveFileTimestamps {
		settings.TimestampPolicy = domain.TimestampPreserve
	}
	if dto.ReproducibleFileOrder != nil && !*dto.ReproducibleFileOrder {
		settings.FileOrderPolicy = domain.OrderArbitrary
	}
	if dto.DirMode != nil {
		settings.Permissions.DirMode = os.FileMode(*dto.DirMode)
	}
	if dto.FileMode != nil {
		settings.Permissions.FileMode = os.FileMode(*dto.FileMode)
	}

	return settings, nil
}

func buildModules(root, defaultGroup string, dtos []ModuleDTO) ([]domain.Module, error) {
	modules := make([]domain.Module, 0, len(dtos))
	seen := make(map[string]struct{}, len(dtos))

	for _, dto := range dtos {
		if !validModuleNameRegex.MatchString(dto.Name) {
			return nil, zerr.With(zerr.Wrap(domain.ErrConfiguration, "invalid module name"), "module", dto.Name)
		}
		if _, dup := seen[dto.Name]; dup {
			return nil, zerr.With(zerr.Wrap(domain.ErrConfiguration, "duplicate module name"), "module", dto.Name)
		}
		seen[dto.Name] = struct{}{}

		group := dto.Group
		if group == "" {
			group = defaultGroup
		}
		if group == "" {
			return nil, zerr.With(zerr.Wrap(domain.ErrConfiguration, "module has no group"), "module", dto.Name)
		}

		libs := dto.Libs
		if libs == "" {
			libs = filepath.Join(dto.Name, "build", "libs")
		}
		deps := dto.Deps
		if deps == "" {
			deps = filepath.Join(dto.Name, "build", "deps")
		}

		dependencies := make([]domain.ModuleCoordinate, 0, len(dto.Dependencies))
		for _, d := range dto.Dependencies {
			c, err := domain.ParseModuleCoordinate(d)
			if err != nil {
				return nil, zerr.With(err, "module", dto.Name)
			}
			dependencies = append(dependencies, c)
		}

		modules = append(modules, domain.Module{
			Coordinate:   domain.NewModuleCoordinate(group, dto.Name, dto.Version),
			LibsDir:      resolvePath(root, libs),
			DepsDir:      resolvePath(root, deps),
			Dependencies: dependencies,
		})
	}

	return modules, nil
}

func repositoryLabel(dto RepositoryDTO, index int) string {
	if dto.Name != "" {
		return dto.Name
	}
	return "#" + strconv.Itoa(index)
}

func resolveRoot(configPath, configuredRoot string) string {
	return resolvePath(filepath.Dir(configPath), configuredRoot)
}

func resolvePath(base, p string) string {
	if p == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readAndUnmarshalYAML reads a YAML file and unmarshals it into the target struct.
func readAndUnmarshalYAML[T any](configPath string, target *T) error {
	// #nosec G304 -- configPath is validated by caller
	configFile, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Join(domain.ErrConfigReadFailed, err)
	}

	if parseErr := yaml.Unmarshal(configFile, target); parseErr != nil {
		return errors.Join(domain.ErrConfigParseFailed, parseErr)
	}

	return nil
}
