package domain

import (
	"errors"
	"regexp"
	"strings"

	"go.trai.ch/zerr"
)

// SourceKind is the kind of a repository source.
type SourceKind string

const (
	// SourceCentral is the public Maven Central registry.
	SourceCentral SourceKind = "central"
	// SourceFlatDir is a local directory of jars without repository layout.
	SourceFlatDir SourceKind = "flatdir"
	// SourceCustom is any other repository, remote or a local Maven-layout directory.
	SourceCustom SourceKind = "custom"
)

// ParseSourceKind converts a configuration string into a SourceKind.
func ParseSourceKind(s string) (SourceKind, error) {
	switch SourceKind(strings.ToLower(strings.TrimSpace(s))) {
	case SourceCentral:
		return SourceCentral, nil
	case SourceFlatDir, "flat-dir", "flat_dir":
		return SourceFlatDir, nil
	case SourceCustom, "maven":
		return SourceCustom, nil
	default:
		return "", zerr.With(zerr.Wrap(ErrInvalidSourceKind, "unknown repository kind"), "kind", s)
	}
}

// FilterMode states whether a rule admits or rejects the coordinates it matches.
type FilterMode string

const (
	// FilterInclude admits only matching coordinates.
	FilterInclude FilterMode = "include"
	// FilterExclude admits everything except matching coordinates.
	FilterExclude FilterMode = "exclude"
)

// FilterTarget selects the part of a coordinate a rule is matched against.
type FilterTarget string

const (
	// TargetGroup matches the rule against the coordinate group.
	TargetGroup FilterTarget = "group"
	// TargetModule matches the rule against "group:name".
	TargetModule FilterTarget = "module"
)

// FilterRule is a single include or exclude pattern of a repository source.
type FilterRule struct {
	Pattern string
	Mode    FilterMode
	Target  FilterTarget

	re *regexp.Regexp
}

// NewFilterRule compiles a rule. The pattern must match the whole target string.
func NewFilterRule(pattern string, mode FilterMode, target FilterTarget) (FilterRule, error) {
	switch mode {
	case FilterInclude, FilterExclude:
	default:
		return FilterRule{}, zerr.With(zerr.Wrap(ErrConfiguration, "unknown filter mode"), "mode", string(mode))
	}

	if target == "" {
		target = TargetGroup
	}
	switch target {
	case TargetGroup, TargetModule:
	default:
		return FilterRule{}, zerr.With(zerr.Wrap(ErrConfiguration, "unknown filter target"), "target", string(target))
	}

	if pattern == "" {
		return FilterRule{}, zerr.Wrap(ErrInvalidFilterPattern, "empty pattern")
	}

	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return FilterRule{}, errors.Join(ErrInvalidFilterPattern, zerr.With(err, "pattern", pattern))
	}

	return FilterRule{Pattern: pattern, Mode: mode, Target: target, re: re}, nil
}

// MustFilterRule is like NewFilterRule but panics on error. Intended for tests and constants.
func MustFilterRule(pattern string, mode FilterMode, target FilterTarget) FilterRule {
	r, err := NewFilterRule(pattern, mode, target)
	if err != nil {
		panic(err)
	}
	return r
}

// Matches reports whether the rule's pattern matches the coordinate.
func (r FilterRule) Matches(c ModuleCoordinate) bool {
	if r.re == nil {
		return false
	}
	if r.Target == TargetModule {
		return r.re.MatchString(c.Module())
	}
	return r.re.MatchString(c.Group.String())
}

// RepositorySource is a location consulted when resolving a coordinate.
type RepositorySource struct {
	Name     string
	Kind     SourceKind
	Location string
	Rules    []FilterRule

	// Exclusive sources own every coordinate their include rules match.
	Exclusive bool
}

// hasIncludes reports whether the source declares at least one include rule.
func (s RepositorySource) hasIncludes() bool {
	for _, r := range s.Rules {
		if r.Mode == FilterInclude {
			return true
		}
	}
	return false
}

// includes reports whether any include rule matches c.
func (s RepositorySource) includes(c ModuleCoordinate) bool {
	for _, r := range s.Rules {
		if r.Mode == FilterInclude && r.Matches(c) {
			return true
		}
	}
	return false
}

// excludes reports whether any exclude rule matches c.
func (s RepositorySource) excludes(c ModuleCoordinate) bool {
	for _, r := range s.Rules {
		if r.Mode == FilterExclude && r.Matches(c) {
			return true
		}
	}
	return false
}

// Admits reports whether the source's own rules admit c.
// Exclusion wins when an include and an exclude rule both match.
func (s RepositorySource) Admits(c ModuleCoordinate) bool {
	if s.excludes(c) {
		return false
	}
	if s.hasIncludes() {
		return s.includes(c)
	}
	return true
}

// IsRemote reports whether the source points at a network registry.
func (s RepositorySource) IsRemote() bool {
	if s.Kind == SourceCentral {
		return true
	}
	loc := strings.ToLower(s.Location)
	return strings.HasPrefix(loc, "http://") || strings.HasPrefix(loc, "https://")
}

// String returns the name of the source, or kind and location when unnamed.
func (s RepositorySource) String() string {
	if s.Name != "" {
		return s.Name
	}
	if s.Location == "" {
		return string(s.Kind)
	}
	return string(s.Kind) + "(" + s.Location + ")"
}
