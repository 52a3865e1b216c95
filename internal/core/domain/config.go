package domain

import "slices"

// ConfigFileName is the name of the configuration file looked up from the working directory.
const ConfigFileName = "crate.yaml"

// ManifestDirName is the directory, inside a staging directory, holding its manifest.
const ManifestDirName = ".crate"

// Module is a project module whose built artifacts are staged.
type Module struct {
	Coordinate   ModuleCoordinate
	LibsDir      string
	DepsDir      string
	Dependencies []ModuleCoordinate
}

// Config is the loaded, validated session configuration.
type Config struct {
	Root         string
	ReleaseDir   string
	Strict       bool
	Repositories *RepositoryFilterSet
	Archives     ArchiveSettings
	Modules      []Module
	Ambiguities  []Ambiguity
}

// Module returns the module with the given name.
func (c *Config) Module(name string) (Module, bool) {
	i := slices.IndexFunc(c.Modules, func(m Module) bool {
		return m.Coordinate.Name.String() == name
	})
	if i < 0 {
		return Module{}, false
	}
	return c.Modules[i], true
}

// Dependencies returns the deduplicated dependencies of every module, in declaration order.
func (c *Config) Dependencies() []ModuleCoordinate {
	seen := make(map[ModuleCoordinate]struct{})
	var out []ModuleCoordinate
	for _, m := range c.Modules {
		for _, d := range m.Dependencies {
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
			out = append(out, d)
		}
	}
	return out
}
