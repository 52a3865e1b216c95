package domain

import (
	"strings"

	"go.trai.ch/zerr"
)

// ModuleCoordinate identifies a dependency or a produced artifact by group, name and version.
// It is an immutable value and is safe to use as a map key.
type ModuleCoordinate struct {
	Group   InternedString
	Name    InternedString
	Version InternedString
}

// NewModuleCoordinate creates a coordinate from its three parts.
func NewModuleCoordinate(group, name, version string) ModuleCoordinate {
	return ModuleCoordinate{
		Group:   NewInternedString(group),
		Name:    NewInternedString(name),
		Version: NewInternedString(version),
	}
}

// ParseModuleCoordinate parses "group:name:version" or "group:name".
func ParseModuleCoordinate(s string) (ModuleCoordinate, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return ModuleCoordinate{}, zerr.With(zerr.Wrap(ErrInvalidCoordinate, "cannot parse coordinate"), "coordinate", s)
	}

	group, name := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if group == "" || name == "" {
		return ModuleCoordinate{}, zerr.With(zerr.Wrap(ErrInvalidCoordinate, "cannot parse coordinate"), "coordinate", s)
	}

	version := ""
	if len(parts) == 3 {
		version = strings.TrimSpace(parts[2])
	}

	return NewModuleCoordinate(group, name, version), nil
}

// Module returns the "group:name" form used by module-level filter rules.
func (c ModuleCoordinate) Module() string {
	return c.Group.String() + ":" + c.Name.String()
}

// String returns the "group:name:version" form, omitting an empty version.
func (c ModuleCoordinate) String() string {
	if c.Version.String() == "" {
		return c.Module()
	}
	return c.Module() + ":" + c.Version.String()
}

// MarshalText implements encoding.TextMarshaler.
func (c ModuleCoordinate) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *ModuleCoordinate) UnmarshalText(text []byte) error {
	parsed, err := ParseModuleCoordinate(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
