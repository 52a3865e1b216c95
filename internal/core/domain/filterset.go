package domain

import (
	"slices"

	"go.trai.ch/zerr"
)

// Ambiguity describes overlapping rules that give two answers for the same coordinates.
type Ambiguity struct {
	Sources []string
	Pattern string
	Reason  string
}

// Err converts the ambiguity into a configuration error carrying its details.
func (a Ambiguity) Err() error {
	err := zerr.With(zerr.Wrap(ErrConfiguration, a.Reason), "sources", a.Sources)
	if a.Pattern != "" {
		err = zerr.With(err, "pattern", a.Pattern)
	}
	return err
}

// RepositoryFilterSet is the ordered list of repository sources consulted during resolution.
// Sources are registered while the configuration is loaded; once sealed the set is read-only
// and safe for concurrent use.
type RepositoryFilterSet struct {
	sources []RepositorySource
	sealed  bool
}

// NewRepositoryFilterSet creates a filter set and registers the given sources in order.
func NewRepositoryFilterSet(sources ...RepositorySource) (*RepositoryFilterSet, error) {
	fs := &RepositoryFilterSet{}
	for _, s := range sources {
		if err := fs.Register(s); err != nil {
			return nil, err
		}
	}
	return fs, nil
}

// Register appends a source to the end of the search order.
func (fs *RepositoryFilterSet) Register(source RepositorySource) error {
	if fs.sealed {
		return zerr.With(zerr.Wrap(ErrFilterSetSealed, "cannot register source"), "source", source.String())
	}

	if _, err := ParseSourceKind(string(source.Kind)); err != nil {
		return zerr.With(err, "source", source.String())
	}

	for _, r := range source.Rules {
		if r.re == nil {
			err := zerr.With(zerr.Wrap(ErrInvalidFilterPattern, "filter rule was not compiled"), "source", source.String())
			return zerr.With(err, "pattern", r.Pattern)
		}
	}

	if source.Exclusive && !source.hasIncludes() {
		return zerr.With(zerr.Wrap(ErrConfiguration, "exclusive source without include rules"), "source", source.String())
	}

	source.Rules = slices.Clone(source.Rules)
	fs.sources = append(fs.sources, source)
	return nil
}

// Seal freezes the set. Further calls to Register fail.
func (fs *RepositoryFilterSet) Seal() {
	fs.sealed = true
}

// Len returns the number of registered sources.
func (fs *RepositoryFilterSet) Len() int {
	return len(fs.sources)
}

// Sources returns a copy of the registered sources in registration order.
func (fs *RepositoryFilterSet) Sources() []RepositorySource {
	return slices.Clone(fs.sources)
}

// Names returns the source names in registration order.
func (fs *RepositoryFilterSet) Names() []string {
	names := make([]string, 0, len(fs.sources))
	for _, s := range fs.sources {
		names = append(names, s.String())
	}
	return names
}

// Matches returns, in registration order, every source that admits c.
// When an exclusive source claims c, only exclusive claimants are returned.
func (fs *RepositoryFilterSet) Matches(c ModuleCoordinate) []RepositorySource {
	var owners []RepositorySource
	for _, s := range fs.sources {
		if s.Exclusive && s.includes(c) && !s.excludes(c) {
			owners = append(owners, s)
		}
	}
	if len(owners) > 0 {
		return owners
	}

	var matched []RepositorySource
	for _, s := range fs.sources {
		if s.Admits(c) {
			matched = append(matched, s)
		}
	}
	return matched
}

// Conflicts returns the ambiguities that apply to c: sources where an include rule
// and an exclude rule both match.
func (fs *RepositoryFilterSet) Conflicts(c ModuleCoordinate) []Ambiguity {
	var out []Ambiguity
	for _, s := range fs.sources {
		if s.includes(c) && s.excludes(c) {
			out = append(out, Ambiguity{
				Sources: []string{s.String()},
				Pattern: c.String(),
				Reason:  "coordinate matches both include and exclude rules",
			})
		}
	}
	return out
}

// Ambiguities performs a best-effort static check of the configured rules.
func (fs *RepositoryFilterSet) Ambiguities() []Ambiguity {
	var out []Ambiguity

	for _, s := range fs.sources {
		for _, inc := range s.Rules {
			if inc.Mode != FilterInclude {
				continue
			}
			for _, exc := range s.Rules {
				if exc.Mode == FilterExclude && exc.Target == inc.Target && exc.Pattern == inc.Pattern {
					out = append(out, Ambiguity{
						Sources: []string{s.String()},
						Pattern: inc.Pattern,
						Reason:  "pattern is both included and excluded",
					})
				}
			}
		}
	}

	for i, a := range fs.sources {
		if !a.Exclusive {
			continue
		}
		for _, b := range fs.sources[i+1:] {
			if !b.Exclusive {
				continue
			}
			for _, ra := range a.Rules {
				if ra.Mode != FilterInclude {
					continue
				}
				for _, rb := range b.Rules {
					if rb.Mode == FilterInclude && rb.Target == ra.Target && rb.Pattern == ra.Pattern {
						out = append(out, Ambiguity{
							Sources: []string{a.String(), b.String()},
							Pattern: ra.Pattern,
							Reason:  "exclusive sources claim the same pattern",
						})
					}
				}
			}
		}
	}

	return out
}
