package stager_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/crate/internal/adapters/archive"
	"go.trai.ch/crate/internal/adapters/cas"
	"go.trai.ch/crate/internal/adapters/fs"
	"go.trai.ch/crate/internal/adapters/telemetry"
	"go.trai.ch/crate/internal/core/domain"
	"go.trai.ch/crate/internal/core/ports/mocks"
	"go.trai.ch/crate/internal/engine/stager"
	"go.uber.org/mock/gomock"
)

var autoprayer = domain.NewModuleCoordinate("com.openosrs.externals", "autoprayer", "1.0.0")

func newStager() *stager.Stager {
	s := stager.New(archive.NewNormalizer(), fs.NewHasher(), cas.NewStore(), telemetry.NewNoOp())
	stager.SetNow(s, func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) })
	return s
}

func writeJar(t *testing.T, path string, modTime time.Time) {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range []string{"net/runelite/Plugin.class", "META-INF/MANIFEST.MF"} {
		out, err := w.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modTime})
		require.NoError(t, err)
		_, err = out.Write([]byte(name))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}

func descriptor(src, dst string) domain.ArtifactDescriptor {
	return domain.NewArtifactDescriptor(src, dst, domain.DefaultArchiveSettings())
}

func TestStager_Stage_ByteIdentical(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "build", "libs", "autoprayer-1.0.0.jar")
	dst := filepath.Join(root, "releases", "autoprayer-1.0.0.jar")
	writeJar(t, src, time.Now())

	s := newStager()

	first, err := s.Stage(context.Background(), autoprayer, descriptor(src, dst))
	require.NoError(t, err)
	firstBytes, err := os.ReadFile(dst)
	require.NoError(t, err)

	// Rebuild with a different timestamp.
	writeJar(t, src, time.Now().Add(time.Hour))

	second, err := s.Stage(context.Background(), autoprayer, descriptor(src, dst))
	require.NoError(t, err)
	secondBytes, err := os.ReadFile(dst)
	require.NoError(t, err)

	assert.True(t, bytes.Equal(firstBytes, secondBytes))
	assert.Equal(t, first.Checksum, second.Checksum)
	assert.Equal(t, 2, first.Entries)
	assert.Equal(t, int64(len(firstBytes)), first.Size)
	assert.Equal(t, dst, first.DestinationPath)
	assert.Equal(t, autoprayer, first.Coordinate)

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultFileMode, info.Mode().Perm())
	assert.True(t, info.ModTime().Equal(domain.ReproducibleEpoch))
	assert.Equal(t, domain.StageStaged, s.State(dst))
}

func TestStager_Stage_PlainFile(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "build", "libs", "NOTICE.txt")
	dst := filepath.Join(root, "releases", "NOTICE.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0o750))
	require.NoError(t, os.WriteFile(src, []byte("notice"), 0o600))

	desc := descriptor(src, dst)
	desc.Permissions.FileMode = 0o640

	staged, err := newStager().Stage(context.Background(), autoprayer, desc)
	require.NoError(t, err)
	assert.Zero(t, staged.Entries)

	content, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "notice", string(content))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
	assert.True(t, info.ModTime().Equal(domain.ReproducibleEpoch))
}

func TestStager_Stage_PreserveTimestamps(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "NOTICE.txt")
	dst := filepath.Join(root, "out", "NOTICE.txt")
	require.NoError(t, os.WriteFile(src, []byte("notice"), 0o600))

	desc := descriptor(src, dst)
	desc.TimestampPolicy = domain.TimestampPreserve

	_, err := newStager().Stage(context.Background(), autoprayer, desc)
	require.NoError(t, err)

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.False(t, info.ModTime().Equal(domain.ReproducibleEpoch))
}

func TestStager_Stage_NotBuilt(t *testing.T) {
	root := t.TempDir()
	dst := filepath.Join(root, "releases", "missing.jar")
	s := newStager()

	_, err := s.Stage(context.Background(), autoprayer, descriptor(filepath.Join(root, "missing.jar"), dst))
	require.ErrorIs(t, err, domain.ErrArtifactNotBuilt)
	assert.Equal(t, domain.StageFailed, s.State(dst))

	_, statErr := os.Stat(dst)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestStager_Stage_Canceled(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "autoprayer-1.0.0.jar")
	releases := filepath.Join(root, "releases")
	dst := filepath.Join(releases, "autoprayer-1.0.0.jar")
	writeJar(t, src, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newStager()
	_, err := s.Stage(ctx, autoprayer, descriptor(src, dst))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.StageFailed, s.State(dst))

	entries, err := os.ReadDir(releases)
	require.NoError(t, err)
	assert.Empty(t, entries, "no destination or temporary file may be left behind")
}

func TestStager_Stage_NormalizeFailure(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "broken.jar")
	dst := filepath.Join(root, "releases", "broken.jar")
	require.NoError(t, os.WriteFile(src, []byte("not a zip"), 0o600))

	s := newStager()
	_, err := s.Stage(context.Background(), autoprayer, descriptor(src, dst))
	require.ErrorIs(t, err, domain.ErrStagingIO)
	assert.ErrorIs(t, err, zip.ErrFormat)
	assert.Equal(t, domain.StageFailed, s.State(dst))
}

func TestStager_Stage_UnwritableDestination(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, root string) string
	}{
		{
			name: "release directory is a file",
			setup: func(t *testing.T, root string) string {
				releases := filepath.Join(root, "releases")
				require.NoError(t, os.WriteFile(releases, []byte("not a directory"), 0o600))
				return filepath.Join(releases, "a.txt")
			},
		},
		{
			name: "destination is a directory",
			setup: func(t *testing.T, root string) string {
				dst := filepath.Join(root, "releases", "a.txt")
				require.NoError(t, os.MkdirAll(filepath.Join(dst, "keep"), 0o750))
				return dst
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			src := filepath.Join(root, "a.txt")
			require.NoError(t, os.WriteFile(src, []byte("a"), 0o600))
			dst := tt.setup(t, root)

			s := newStager()
			_, err := s.Stage(context.Background(), autoprayer, descriptor(src, dst))
			require.ErrorIs(t, err, domain.ErrStagingIO)
			assert.Equal(t, domain.StageFailed, s.State(dst))

			err = filepath.WalkDir(root, func(path string, _ os.DirEntry, err error) error {
				require.NoError(t, err)
				assert.False(t, strings.HasSuffix(path, ".tmp"), "temporary file left behind: %s", path)
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestStager_Stage_RecordsVertex(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a.txt")
	dst := filepath.Join(root, "out", "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("a"), 0o600))

	ctrl := gomock.NewController(t)
	mockTelemetry := mocks.NewMockTelemetry(ctrl)
	mockVertex := mocks.NewMockVertex(ctrl)
	mockTelemetry.EXPECT().Record(gomock.Any(), "stage "+dst).Return(context.Background(), mockVertex)
	mockVertex.EXPECT().Complete(nil)

	s := stager.New(archive.NewNormalizer(), fs.NewHasher(), cas.NewStore(), mockTelemetry)
	_, err := s.Stage(context.Background(), autoprayer, descriptor(src, dst))
	require.NoError(t, err)
}

func TestStager_StageAll(t *testing.T) {
	root := t.TempDir()
	releases := filepath.Join(root, "releases")

	var requests []stager.Request
	for _, name := range []string{"a.jar", "b.jar"} {
		src := filepath.Join(root, "libs", name)
		writeJar(t, src, time.Now())
		requests = append(requests, stager.Request{
			Coordinate: autoprayer,
			Descriptor: descriptor(src, filepath.Join(releases, name)),
		})
	}
	requests = append(requests, stager.Request{
		Coordinate: autoprayer,
		Descriptor: descriptor(filepath.Join(root, "libs", "missing.jar"), filepath.Join(releases, "missing.jar")),
	})

	staged, err := newStager().StageAll(context.Background(), releases, requests, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStagingFailed)
	assert.ErrorIs(t, err, domain.ErrArtifactNotBuilt)

	require.Len(t, staged, 2)
	assert.Equal(t, filepath.Join(releases, "a.jar"), staged[0].DestinationPath)
	assert.Equal(t, filepath.Join(releases, "b.jar"), staged[1].DestinationPath)

	record, err := cas.NewStore().Get(releases, staged[0].DestinationPath)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, staged[0].Checksum, record.Checksum)
	assert.Equal(t, autoprayer.String(), record.Coordinate)
}

func TestStager_StageAll_SameDestination(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "libs", "a.jar")
	dst := filepath.Join(root, "releases", "a.jar")
	writeJar(t, src, time.Now())

	requests := make([]stager.Request, 8)
	for i := range requests {
		requests[i] = stager.Request{Coordinate: autoprayer, Descriptor: descriptor(src, dst)}
	}

	staged, err := newStager().StageAll(context.Background(), filepath.Dir(dst), requests, true)
	require.NoError(t, err)
	require.Len(t, staged, len(requests))
	for _, a := range staged {
		assert.Equal(t, staged[0].Checksum, a.Checksum)
	}

	entries, err := os.ReadDir(filepath.Dir(dst))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"a.jar", domain.ManifestDirName}, names)
}

// recordCheckingStore asserts that every record describes the destination bytes at
// the moment it is written.
type recordCheckingStore struct {
	*cas.Store
	hasher *fs.Hasher

	mu         sync.Mutex
	mismatches []string
}

func (c *recordCheckingStore) Put(root string, record domain.StagingRecord) error {
	time.Sleep(time.Millisecond)
	sum, err := c.hasher.ComputeFileHash(record.Destination)
	if err != nil || sum != record.Checksum {
		c.mu.Lock()
		c.mismatches = append(c.mismatches, record.Source)
		c.mu.Unlock()
	}
	return c.Store.Put(root, record)
}

func TestStager_StageAll_SameDestinationRecordMatchesFile(t *testing.T) {
	root := t.TempDir()
	releases := filepath.Join(root, "releases")
	dst := filepath.Join(releases, "a.txt")

	requests := make([]stager.Request, 16)
	for i := range requests {
		src := filepath.Join(root, "libs", "v"+strings.Repeat("x", i)+".txt")
		require.NoError(t, os.MkdirAll(filepath.Dir(src), 0o750))
		require.NoError(t, os.WriteFile(src, []byte(strings.Repeat("v", i+1)), 0o600))
		requests[i] = stager.Request{Coordinate: autoprayer, Descriptor: descriptor(src, dst)}
	}

	store := &recordCheckingStore{Store: cas.NewStore(), hasher: fs.NewHasher()}
	s := stager.New(archive.NewNormalizer(), fs.NewHasher(), store, telemetry.NewNoOp())
	_, err := s.StageAll(context.Background(), releases, requests, true)
	require.NoError(t, err)
	assert.Empty(t, store.mismatches)

	record, err := store.Get(releases, dst)
	require.NoError(t, err)
	require.NotNil(t, record)
	sum, err := fs.NewHasher().ComputeFileHash(dst)
	require.NoError(t, err)
	assert.Equal(t, sum, record.Checksum)
}

func TestStager_StageAll_UsesVertexContext(t *testing.T) {
	type ctxKey struct{}

	root := t.TempDir()
	releases := filepath.Join(root, "releases")
	src := filepath.Join(root, "libs", "a.jar")
	dst := filepath.Join(releases, "a.jar")
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0o750))
	require.NoError(t, os.WriteFile(src, []byte("jar"), 0o600))

	ctrl := gomock.NewController(t)
	mockTelemetry := mocks.NewMockTelemetry(ctrl)
	mockVertex := mocks.NewMockVertex(ctrl)
	mockNormalizer := mocks.NewMockArchiveNormalizer(ctrl)

	vertexCtx := context.WithValue(context.Background(), ctxKey{}, "stage")
	mockTelemetry.EXPECT().Record(gomock.Any(), "stage "+dst).Return(vertexCtx, mockVertex)
	mockVertex.EXPECT().Complete(nil)
	mockNormalizer.EXPECT().Supports(src).Return(true)
	mockNormalizer.EXPECT().Normalize(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ io.ReaderAt, _ int64, w io.Writer, _ domain.ArtifactDescriptor) (int, error) {
			assert.Equal(t, "stage", ctx.Value(ctxKey{}))
			_, err := w.Write([]byte("normalized"))
			return 1, err
		})

	s := stager.New(mockNormalizer, fs.NewHasher(), cas.NewStore(), mockTelemetry)
	staged, err := s.StageAll(context.Background(), releases, []stager.Request{
		{Coordinate: autoprayer, Descriptor: descriptor(src, dst)},
	}, true)
	require.NoError(t, err)
	require.Len(t, staged, 1)
	assert.Equal(t, 1, staged[0].Entries)

	content, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "normalized", string(content))
}

func TestStager_StageAll_StoreFailure(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("a"), 0o600))

	ctrl := gomock.NewController(t)
	mockStore := mocks.NewMockStagingStore(ctrl)
	mockStore.EXPECT().Get(root, gomock.Any()).Return(nil, nil)
	mockStore.EXPECT().Put(root, gomock.Any()).Return(domain.ErrStoreWriteFailed)

	s := stager.New(archive.NewNormalizer(), fs.NewHasher(), mockStore, telemetry.NewNoOp())
	staged, err := s.StageAll(context.Background(), root, []stager.Request{
		{Coordinate: autoprayer, Descriptor: descriptor(src, filepath.Join(root, "out", "a.txt"))},
	}, false)
	require.ErrorIs(t, err, domain.ErrStoreWriteFailed)
	assert.Empty(t, staged)
}

func TestStager_StageAll_UpToDate(t *testing.T) {
	root := t.TempDir()
	releases := filepath.Join(root, "releases")
	src := filepath.Join(root, "libs", "a.jar")
	dst := filepath.Join(releases, "a.jar")
	writeJar(t, src, time.Now())
	requests := []stager.Request{{Coordinate: autoprayer, Descriptor: descriptor(src, dst)}}

	first, err := newStager().StageAll(context.Background(), releases, requests, false)
	require.NoError(t, err)
	require.Len(t, first, 1)

	ctrl := gomock.NewController(t)
	mockTelemetry := mocks.NewMockTelemetry(ctrl)
	mockVertex := mocks.NewMockVertex(ctrl)
	mockTelemetry.EXPECT().Record(gomock.Any(), "stage "+dst).Return(context.Background(), mockVertex)
	gomock.InOrder(
		mockVertex.EXPECT().Cached(),
		mockVertex.EXPECT().Complete(nil),
	)

	s := stager.New(archive.NewNormalizer(), fs.NewHasher(), cas.NewStore(), mockTelemetry)
	second, err := s.StageAll(context.Background(), releases, requests, false)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Checksum, second[0].Checksum)
	assert.Equal(t, first[0].SourceChecksum, second[0].SourceChecksum)
	assert.True(t, first[0].StagedAt.Equal(second[0].StagedAt))
	assert.Equal(t, domain.StageStaged, s.State(dst))
}

func TestStager_StageAll_StaleRecord(t *testing.T) {
	root := t.TempDir()
	releases := filepath.Join(root, "releases")
	src := filepath.Join(root, "libs", "a.txt")
	dst := filepath.Join(releases, "a.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0o750))
	require.NoError(t, os.WriteFile(src, []byte("v1"), 0o600))

	s := newStager()
	desc := descriptor(src, dst)
	_, err := s.StageAll(context.Background(), releases, []stager.Request{{Coordinate: autoprayer, Descriptor: desc}}, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(src, []byte("v2"), 0o600))
	_, err = s.StageAll(context.Background(), releases, []stager.Request{{Coordinate: autoprayer, Descriptor: desc}}, false)
	require.NoError(t, err)

	content, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(content))

	desc.Permissions.FileMode = 0o600
	_, err = s.StageAll(context.Background(), releases, []stager.Request{{Coordinate: autoprayer, Descriptor: desc}}, false)
	require.NoError(t, err)

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
