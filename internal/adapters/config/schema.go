package config

import (
	"io/fs"
	"strconv"
	"strings"

	"go.trai.ch/crate/internal/core/domain"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// Cratefile represents the structure of the crate.yaml configuration file.
type Cratefile struct {
	Version      string          `yaml:"version"`
	Root         string          `yaml:"root"`
	Group        string          `yaml:"group"`
	Releases     string          `yaml:"releases"`
	Strict       bool            `yaml:"strict"`
	Repositories []RepositoryDTO `yaml:"repositories"`
	Archives     ArchivesDTO     `yaml:"archives"`
	Modules      []ModuleDTO     `yaml:"modules"`
}

// RepositoryDTO represents a repository source in the configuration.
// Rules can be given as include/exclude shorthand lists or in long form.
type RepositoryDTO struct {
	Name      string    `yaml:"name"`
	Kind      string    `yaml:"kind"`
	Location  string    `yaml:"location"`
	Exclusive bool      `yaml:"exclusive"`
	Include   []string  `yaml:"include"`
	Exclude   []string  `yaml:"exclude"`
	Rules     []RuleDTO `yaml:"rules"`
}

// RuleDTO represents a long-form filter rule.
type RuleDTO struct {
	Pattern string `yaml:"pattern"`
	Mode    string `yaml:"mode"`
	Target  string `yaml:"target"`
}

// ArchivesDTO represents the archive normalization settings.
// Unset fields fall back to domain.DefaultArchiveSettings.
type ArchivesDTO struct {
	PreserveFileTimestamps *bool `yaml:"preserveFileTimestamps"`
	ReproducibleFileOrder  *bool `yaml:"reproducibleFileOrder"`
	DirMode                *Mode `yaml:"dirMode"`
	FileMode               *Mode `yaml:"fileMode"`
}

// ModuleDTO represents a project module in the configuration.
type ModuleDTO struct {
	Name         string   `yaml:"name"`
	Group        string   `yaml:"group"`
	Version      string   `yaml:"version"`
	Libs         string   `yaml:"libs"`
	Deps         string   `yaml:"deps"`
	Dependencies []string `yaml:"dependencies"`
}

// Mode is a permission mode. YAML integers are taken as written (0755 and 493 are equal);
// strings are always read as octal.
type Mode fs.FileMode

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *Mode) UnmarshalYAML(node *yaml.Node) error {
	var v uint64
	switch node.ShortTag() {
	case "!!str":
		s := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(node.Value), "0o"), "0O")
		parsed, err := strconv.ParseUint(s, 8, 32)
		if err != nil {
			return zerr.With(zerr.Wrap(domain.ErrInvalidPermissions, "mode is not an octal number"), "mode", node.Value)
		}
		v = parsed
	case "!!int":
		if err := node.Decode(&v); err != nil {
			return zerr.With(zerr.Wrap(domain.ErrInvalidPermissions, "mode is not a number"), "mode", node.Value)
		}
	default:
		return zerr.With(zerr.Wrap(domain.ErrInvalidPermissions, "mode must be a number or string"), "mode", node.Value)
	}

	if v > uint64(fs.ModePerm) {
		return zerr.With(zerr.Wrap(domain.ErrInvalidPermissions, "mode out of range"), "mode", node.Value)
	}
	*m = Mode(v)
	return nil
}
