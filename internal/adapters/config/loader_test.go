package config_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/crate/internal/adapters/config"
	"go.trai.ch/crate/internal/core/domain"
	"go.trai.ch/crate/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

const fullConfig = `
version: "1"
group: com.openosrs.externals
releases: releases
repositories:
  - name: libs
    kind: flatdir
    location: libs
    exclusive: true
    include: ['com\.openosrs.*']
  - name: jcenter
    kind: custom
    location: https://jcenter.bintray.com
    exclude: ['com\.openosrs.*']
  - name: central
    kind: central
archives:
  preserveFileTimestamps: false
  reproducibleFileOrder: true
  dirMode: 0755
  fileMode: 0644
modules:
  - name: autoprayer
    version: 1.0.0
    libs: autoprayer/build/libs
    deps: autoprayer/build/deps
    dependencies: ["com.openosrs:client:1.0", "com.google.guava:guava:31.0"]
  - name: pvptools
    version: 2.1.0
`

func createFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newLoader(t *testing.T) *config.Loader {
	t.Helper()
	ctrl := gomock.NewController(t)
	mockLogger := mocks.NewMockLogger(ctrl)
	return config.NewLoader(mockLogger)
}

func TestLoader_Load_Full(t *testing.T) {
	root := t.TempDir()
	createFile(t, root, domain.ConfigFileName, fullConfig)

	cfg, err := newLoader(t).Load(root, "")
	require.NoError(t, err)

	assert.Equal(t, root, cfg.Root)
	assert.Equal(t, filepath.Join(root, "releases"), cfg.ReleaseDir)
	assert.False(t, cfg.Strict)
	assert.Empty(t, cfg.Ambiguities)

	assert.Equal(t, []string{"libs", "jcenter", "central"}, cfg.Repositories.Names())
	sources := cfg.Repositories.Sources()
	assert.Equal(t, domain.SourceFlatDir, sources[0].Kind)
	assert.True(t, sources[0].Exclusive)
	assert.True(t, sources[1].IsRemote())
	assert.True(t, sources[2].IsRemote())

	assert.Equal(t, domain.DefaultArchiveSettings(), cfg.Archives)

	require.Len(t, cfg.Modules, 2)
	m := cfg.Modules[0]
	assert.Equal(t, "com.openosrs.externals:autoprayer:1.0.0", m.Coordinate.String())
	assert.Equal(t, filepath.Join(root, "autoprayer", "build", "libs"), m.LibsDir)
	assert.Equal(t, filepath.Join(root, "autoprayer", "build", "deps"), m.DepsDir)
	require.Len(t, m.Dependencies, 2)
	assert.Equal(t, "com.openosrs:client:1.0", m.Dependencies[0].String())

	defaults := cfg.Modules[1]
	assert.Equal(t, filepath.Join(root, "pvptools", "build", "libs"), defaults.LibsDir)
	assert.Equal(t, filepath.Join(root, "pvptools", "build", "deps"), defaults.DepsDir)
}

func TestLoader_Load_FilterSetIsSealed(t *testing.T) {
	root := t.TempDir()
	createFile(t, root, domain.ConfigFileName, fullConfig)

	cfg, err := newLoader(t).Load(root, "")
	require.NoError(t, err)

	err = cfg.Repositories.Register(domain.RepositorySource{Name: "late", Kind: domain.SourceCentral})
	assert.ErrorIs(t, err, domain.ErrFilterSetSealed)
}

func TestLoader_Load_Defaults(t *testing.T) {
	root := t.TempDir()
	createFile(t, root, domain.ConfigFileName, `version: "1"`)

	cfg, err := newLoader(t).Load(root, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "releases"), cfg.ReleaseDir)
	assert.Equal(t, 0, cfg.Repositories.Len())
	assert.Equal(t, domain.DefaultArchiveSettings(), cfg.Archives)
	assert.Empty(t, cfg.Modules)
}

func TestLoader_Load_ArchiveSettings(t *testing.T) {
	tests := []struct {
		name     string
		archives string
		want     domain.ArchiveSettings
		wantErr  error
	}{
		{
			name:     "octal literal",
			archives: "dirMode: 0750\n  fileMode: 0640",
			want:     settings(0o750, 0o640, domain.TimestampStrip, domain.OrderReproducible),
		},
		{
			name:     "decimal",
			archives: "dirMode: 493\n  fileMode: 420",
			want:     settings(0o755, 0o644, domain.TimestampStrip, domain.OrderReproducible),
		},
		{
			name:     "string",
			archives: "dirMode: \"0755\"\n  fileMode: \"644\"",
			want:     settings(0o755, 0o644, domain.TimestampStrip, domain.OrderReproducible),
		},
		{
			name:     "preserve and arbitrary",
			archives: "preserveFileTimestamps: true\n  reproducibleFileOrder: false",
			want:     settings(0o755, 0o644, domain.TimestampPreserve, domain.OrderArbitrary),
		},
		{
			name:     "out of range",
			archives: "dirMode: 755",
			wantErr:  domain.ErrInvalidPermissions,
		},
		{
			name:     "not octal",
			archives: "fileMode: \"rw-r--r--\"",
			wantErr:  domain.ErrInvalidPermissions,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			createFile(t, root, domain.ConfigFileName, "version: \"1\"\narchives:\n  "+tt.archives+"\n")

			cfg, err := newLoader(t).Load(root, "")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, domain.ErrConfigParseFailed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Archives)
		})
	}
}

func settings(dir, file fs.FileMode, ts domain.TimestampPolicy, order domain.FileOrderPolicy) domain.ArchiveSettings {
	return domain.ArchiveSettings{
		Permissions:     domain.Permissions{DirMode: dir, FileMode: file},
		TimestampPolicy: ts,
		FileOrderPolicy: order,
	}
}

func TestLoader_Load_LongFormRules(t *testing.T) {
	root := t.TempDir()
	createFile(t, root, domain.ConfigFileName, `
version: "1"
repositories:
  - name: local
    kind: flatdir
    location: libs
    rules:
      - {pattern: 'com\.openosrs:client', mode: include, target: module}
  - name: shorthand
    kind: flatdir
    location: other
    include: ['net\.runelite:.*']
`)

	cfg, err := newLoader(t).Load(root, "")
	require.NoError(t, err)

	sources := cfg.Repositories.Sources()
	require.Len(t, sources[0].Rules, 1)
	assert.Equal(t, domain.TargetModule, sources[0].Rules[0].Target)
	assert.Equal(t, domain.TargetModule, sources[1].Rules[0].Target)

	assert.True(t, sources[0].Admits(domain.NewModuleCoordinate("com.openosrs", "client", "1.0")))
	assert.False(t, sources[0].Admits(domain.NewModuleCoordinate("com.openosrs", "http-api", "1.0")))
}

func TestLoader_Load_EmptyPatternAdmitsEverything(t *testing.T) {
	root := t.TempDir()
	createFile(t, root, domain.ConfigFileName, `
version: "1"
repositories:
  - name: longform
    kind: flatdir
    location: libs
    rules:
      - {mode: include}
  - name: shorthand
    kind: custom
    location: https://jcenter.bintray.com
    include: ['']
    exclude: ['  ']
`)

	cfg, err := newLoader(t).Load(root, "")
	require.NoError(t, err)

	guava := domain.NewModuleCoordinate("com.google.guava", "guava", "31.0")
	for _, s := range cfg.Repositories.Sources() {
		assert.Empty(t, s.Rules, s.Name)
		assert.True(t, s.Admits(guava), s.Name)
	}
	assert.Len(t, cfg.Repositories.Matches(guava), 2)
}

func TestLoader_Load_AmbiguityWarns(t *testing.T) {
	root := t.TempDir()
	createFile(t, root, domain.ConfigFileName, `
version: "1"
repositories:
  - name: confused
    kind: flatdir
    location: libs
    include: ['com\.example']
    exclude: ['com\.example']
`)

	ctrl := gomock.NewController(t)
	mockLogger := mocks.NewMockLogger(ctrl)
	mockLogger.EXPECT().Warn(gomock.Any()).Times(1)

	cfg, err := config.NewLoader(mockLogger).Load(root, "")
	require.NoError(t, err)
	require.Len(t, cfg.Ambiguities, 1)
	assert.Equal(t, []string{"confused"}, cfg.Ambiguities[0].Sources)
}

func TestLoader_Load_AmbiguityStrict(t *testing.T) {
	root := t.TempDir()
	createFile(t, root, domain.ConfigFileName, `
version: "1"
strict: true
repositories:
  - {name: a, kind: flatdir, location: a, exclusive: true, include: ['com\.example']}
  - {name: b, kind: flatdir, location: b, exclusive: true, include: ['com\.example']}
`)

	_, err := newLoader(t).Load(root, "")
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestLoader_Load_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "invalid yaml",
			content: "repositories: [",
			wantErr: domain.ErrConfigParseFailed,
		},
		{
			name:    "unknown kind",
			content: "repositories:\n  - {name: x, kind: ivy, location: x}",
			wantErr: domain.ErrInvalidSourceKind,
		},
		{
			name:    "invalid pattern",
			content: "repositories:\n  - {name: x, kind: flatdir, location: x, include: ['com\\.(']}",
			wantErr: domain.ErrInvalidFilterPattern,
		},
		{
			name:    "missing location",
			content: "repositories:\n  - {name: x, kind: flatdir}",
			wantErr: domain.ErrConfiguration,
		},
		{
			name:    "duplicate repository",
			content: "repositories:\n  - {name: x, kind: central}\n  - {name: x, kind: central}",
			wantErr: domain.ErrConfiguration,
		},
		{
			name:    "exclusive without includes",
			content: "repositories:\n  - {name: x, kind: flatdir, location: x, exclusive: true}",
			wantErr: domain.ErrConfiguration,
		},
		{
			name:    "invalid coordinate",
			content: "group: g\nmodules:\n  - {name: m, dependencies: ['guava']}",
			wantErr: domain.ErrInvalidCoordinate,
		},
		{
			name:    "module without group",
			content: "modules:\n  - {name: m}",
			wantErr: domain.ErrConfiguration,
		},
		{
			name:    "duplicate module",
			content: "group: g\nmodules:\n  - {name: m}\n  - {name: m}",
			wantErr: domain.ErrConfiguration,
		},
		{
			name:    "invalid module name",
			content: "group: g\nmodules:\n  - {name: 'a/b'}",
			wantErr: domain.ErrConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			createFile(t, root, domain.ConfigFileName, tt.content)

			_, err := newLoader(t).Load(root, "")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
