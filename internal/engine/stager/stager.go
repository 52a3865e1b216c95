// Package stager normalizes built artifacts and moves them to their release location.
package stager

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"go.trai.ch/crate/internal/core/domain"
	"go.trai.ch/crate/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// Request is one artifact to stage.
type Request struct {
	Coordinate domain.ModuleCoordinate
	Descriptor domain.ArtifactDescriptor
}

// Stager runs the staging state machine for build outputs.
type Stager struct {
	normalizer ports.ArchiveNormalizer
	hasher     ports.Hasher
	store      ports.StagingStore
	telemetry  ports.Telemetry
	now        func() time.Time

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	states map[string]domain.StageState
}

// New creates a new Stager.
func New(
	normalizer ports.ArchiveNormalizer,
	hasher ports.Hasher,
	store ports.StagingStore,
	telemetry ports.Telemetry,
) *Stager {
	return &Stager{
		normalizer: normalizer,
		hasher:     hasher,
		store:      store,
		telemetry:  telemetry,
		now:        time.Now,
		locks:      make(map[string]*sync.Mutex),
		states:     make(map[string]domain.StageState),
	}
}

// State returns the last known state of the artifact staged to destination.
func (s *Stager) State(destination string) domain.StageState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.states[filepath.Clean(destination)]; ok {
		return state
	}
	return domain.StageUnbuilt
}

// StageAll stages every request with bounded parallelism and records each staged
// artifact in the release manifest under root. A failure never stops sibling requests.
// Unless noCache is set, a request whose source, settings and destination match its
// manifest record is skipped.
func (s *Stager) StageAll(
	ctx context.Context,
	root string,
	requests []Request,
	noCache bool,
) ([]domain.StagedArtifact, error) {
	results := make([]*domain.StagedArtifact, len(requests))

	var (
		errMu sync.Mutex
		errs  []error
	)
	addErr := func(err error) {
		errMu.Lock()
		defer errMu.Unlock()
		errs = append(errs, err)
	}

	g := new(errgroup.Group)
	g.SetLimit(runtime.NumCPU())

	for i, req := range requests {
		g.Go(func() error {
			staged, err := s.stageAndRecord(ctx, root, req, noCache)
			if err != nil {
				addErr(err)
				return nil
			}
			results[i] = &staged
			return nil
		})
	}
	_ = g.Wait()

	staged := make([]domain.StagedArtifact, 0, len(requests))
	for _, r := range results {
		if r != nil {
			staged = append(staged, *r)
		}
	}

	if len(errs) > 0 {
		return staged, errors.Join(append([]error{domain.ErrStagingFailed}, errs...)...)
	}
	return staged, nil
}

// stageAndRecord stages req and writes its manifest record while holding the
// destination lock, so the record always describes the bytes on disk.
func (s *Stager) stageAndRecord(
	ctx context.Context,
	root string,
	req Request,
	noCache bool,
) (domain.StagedArtifact, error) {
	dst := filepath.Clean(req.Descriptor.DestinationPath)

	unlock := s.lock(dst)
	defer unlock()

	ctx, vertex := s.telemetry.Record(ctx, "stage "+dst)

	if !noCache {
		if cached, ok := s.cached(root, dst, req); ok {
			vertex.Cached()
			vertex.Complete(nil)
			return cached, nil
		}
	}

	staged, err := s.stage(ctx, dst, req.Coordinate, req.Descriptor)
	if err != nil {
		vertex.Complete(err)
		return domain.StagedArtifact{}, zerr.With(err, "artifact", req.Descriptor.SourcePath)
	}

	if err := s.store.Put(root, domain.NewStagingRecord(staged, req.Descriptor.Fingerprint())); err != nil {
		vertex.Complete(err)
		return domain.StagedArtifact{}, err
	}

	vertex.Complete(nil)
	return staged, nil
}

// cached reports whether dst is already up to date according to the manifest under
// root. Any lookup failure counts as a miss. The caller holds the destination lock.
func (s *Stager) cached(root, dst string, req Request) (domain.StagedArtifact, bool) {
	record, err := s.store.Get(root, dst)
	if err != nil || record == nil {
		return domain.StagedArtifact{}, false
	}
	if record.Settings != req.Descriptor.Fingerprint() || record.Source != req.Descriptor.SourcePath {
		return domain.StagedArtifact{}, false
	}

	srcSum, err := s.hasher.ComputeFileHash(req.Descriptor.SourcePath)
	if err != nil || srcSum != record.SourceChecksum {
		return domain.StagedArtifact{}, false
	}
	dstSum, err := s.hasher.ComputeFileHash(dst)
	if err != nil || dstSum != record.Checksum {
		return domain.StagedArtifact{}, false
	}

	s.setState(dst, domain.StageStaged)

	return domain.StagedArtifact{
		Coordinate:      req.Coordinate,
		SourcePath:      req.Descriptor.SourcePath,
		DestinationPath: dst,
		SourceChecksum:  srcSum,
		Checksum:        dstSum,
		Size:            record.Size,
		StagedAt:        record.StagedAt,
	}, true
}

// Stage normalizes the artifact at desc.SourcePath and atomically places it at
// desc.DestinationPath. Stages sharing a destination are serialized.
func (s *Stager) Stage(
	ctx context.Context,
	coord domain.ModuleCoordinate,
	desc domain.ArtifactDescriptor,
) (domain.StagedArtifact, error) {
	dst := filepath.Clean(desc.DestinationPath)

	unlock := s.lock(dst)
	defer unlock()

	ctx, vertex := s.telemetry.Record(ctx, "stage "+dst)

	staged, err := s.stage(ctx, dst, coord, desc)
	vertex.Complete(err)
	return staged, err
}

// stage runs the state machine for one artifact. The caller holds the lock on dst.
func (s *Stager) stage(
	ctx context.Context,
	dst string,
	coord domain.ModuleCoordinate,
	desc domain.ArtifactDescriptor,
) (domain.StagedArtifact, error) {
	run := &stageRun{stager: s, dst: dst, state: domain.StageUnbuilt}
	s.setState(dst, run.state)

	staged, err := run.execute(ctx, coord, desc)
	if err != nil {
		run.fail()
	}
	return staged, err
}

func (s *Stager) lock(dst string) func() {
	s.mu.Lock()
	l, ok := s.locks[dst]
	if !ok {
		l = &sync.Mutex{}
		s.locks[dst] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *Stager) setState(dst string, state domain.StageState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[dst] = state
}

// stageRun is a single pass through the staging state machine.
type stageRun struct {
	stager *Stager
	dst    string
	state  domain.StageState
}

func (r *stageRun) advance(next domain.StageState) error {
	state, err := r.state.Transition(next)
	if err != nil {
		return err
	}
	r.state = state
	r.stager.setState(r.dst, state)
	return nil
}

func (r *stageRun) fail() {
	if r.state.IsTerminal() {
		return
	}
	_ = r.advance(domain.StageFailed)
}

func (r *stageRun) execute(
	ctx context.Context,
	coord domain.ModuleCoordinate,
	desc domain.ArtifactDescriptor,
) (domain.StagedArtifact, error) {
	info, err := os.Stat(desc.SourcePath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return domain.StagedArtifact{}, zerr.With(zerr.Wrap(domain.ErrArtifactNotBuilt, "source does not exist"), "path", desc.SourcePath)
	case err != nil:
		return domain.StagedArtifact{}, domain.NewStagingIOError(desc.SourcePath, "stat source", err)
	case !info.Mode().IsRegular():
		return domain.StagedArtifact{}, zerr.With(zerr.Wrap(domain.ErrArtifactNotBuilt, "source is not a regular file"), "path", desc.SourcePath)
	}
	if err := r.advance(domain.StageBuilt); err != nil {
		return domain.StagedArtifact{}, err
	}

	srcSum, err := r.stager.hasher.ComputeFileHash(desc.SourcePath)
	if err != nil {
		return domain.StagedArtifact{}, domain.NewStagingIOError(desc.SourcePath, "compute source checksum", err)
	}

	dir := filepath.Dir(r.dst)
	if err := os.MkdirAll(dir, desc.Permissions.DirMode.Perm()); err != nil {
		return domain.StagedArtifact{}, domain.NewStagingIOError(dir, "create destination directory", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(r.dst)+".*.tmp")
	if err != nil {
		return domain.StagedArtifact{}, domain.NewStagingIOError(dir, "create temporary file", err)
	}
	tmpName := tmp.Name()
	renamed := false
	defer func() {
		_ = tmp.Close()
		if !renamed {
			_ = os.Remove(tmpName)
		}
	}()

	entries, err := r.write(ctx, tmp, info.Size(), desc)
	if err != nil {
		return domain.StagedArtifact{}, err
	}
	if err := tmp.Close(); err != nil {
		return domain.StagedArtifact{}, domain.NewStagingIOError(tmpName, "close temporary file", err)
	}
	if err := r.advance(domain.StageNormalized); err != nil {
		return domain.StagedArtifact{}, err
	}

	if err := os.Chmod(tmpName, desc.Permissions.FileMode.Perm()); err != nil {
		return domain.StagedArtifact{}, domain.NewStagingIOError(tmpName, "set file mode", err)
	}
	if desc.TimestampPolicy == domain.TimestampStrip {
		if err := os.Chtimes(tmpName, domain.ReproducibleEpoch, domain.ReproducibleEpoch); err != nil {
			return domain.StagedArtifact{}, domain.NewStagingIOError(tmpName, "set modification time", err)
		}
	}

	checksum, err := r.stager.hasher.ComputeFileHash(tmpName)
	if err != nil {
		return domain.StagedArtifact{}, domain.NewStagingIOError(tmpName, "compute checksum", err)
	}
	stat, err := os.Stat(tmpName)
	if err != nil {
		return domain.StagedArtifact{}, domain.NewStagingIOError(tmpName, "stat staged file", err)
	}

	// Last point at which cancellation leaves the destination untouched.
	if err := ctx.Err(); err != nil {
		return domain.StagedArtifact{}, err
	}
	if err := os.Rename(tmpName, r.dst); err != nil {
		return domain.StagedArtifact{}, domain.NewStagingIOError(r.dst, "rename into place", err)
	}
	renamed = true

	if err := r.advance(domain.StageStaged); err != nil {
		return domain.StagedArtifact{}, err
	}

	return domain.StagedArtifact{
		Coordinate:      coord,
		SourcePath:      desc.SourcePath,
		DestinationPath: r.dst,
		SourceChecksum:  srcSum,
		Checksum:        checksum,
		Size:            stat.Size(),
		Entries:         entries,
		StagedAt:        r.stager.now(),
	}, nil
}

// write copies the source into w, normalizing it when it is a supported archive.
func (r *stageRun) write(ctx context.Context, w io.Writer, size int64, desc domain.ArtifactDescriptor) (int, error) {
	//nolint:gosec // source path comes from the build output directory
	src, err := os.Open(desc.SourcePath)
	if err != nil {
		return 0, domain.NewStagingIOError(desc.SourcePath, "open source", err)
	}
	defer func() { _ = src.Close() }()

	if r.stager.normalizer.Supports(desc.SourcePath) {
		entries, err := r.stager.normalizer.Normalize(ctx, src, size, w, desc)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, ctxErr
			}
			return 0, domain.NewStagingIOError(desc.SourcePath, "normalize archive", err)
		}
		return entries, nil
	}

	if _, err := io.Copy(w, &ctxReader{ctx: ctx, r: src}); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, domain.NewStagingIOError(desc.SourcePath, "copy file", err)
	}
	return 0, nil
}

// ctxReader stops reading once its context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
