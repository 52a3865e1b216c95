// Package archive rewrites zip-based archives (jar, war, zip) for reproducible output.
package archive

import (
	"archive/zip"
	"context"
	"io"
	"io/fs"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"go.trai.ch/crate/internal/core/domain"
	"go.trai.ch/crate/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.ArchiveNormalizer = (*Normalizer)(nil)

// MS-DOS encoding of domain.ReproducibleEpoch. zip.Writer.CreateRaw ignores
// FileHeader.Modified, so the raw fields are written directly.
const (
	epochDOSDate uint16 = 2<<5 | 1
	epochDOSTime uint16 = 0
)

var archiveExts = []string{".jar", ".war", ".ear", ".aar", ".zip"}

// Normalizer rewrites entry metadata without recompressing entry data.
type Normalizer struct{}

// NewNormalizer creates a new Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Supports reports whether path has a zip-based archive extension.
func (n *Normalizer) Supports(p string) bool {
	return slices.Contains(archiveExts, strings.ToLower(filepath.Ext(p)))
}

// Normalize copies the archive in src to dst, rewriting timestamps, order and permissions.
func (n *Normalizer) Normalize(
	ctx context.Context,
	src io.ReaderAt,
	size int64,
	dst io.Writer,
	desc domain.ArtifactDescriptor,
) (int, error) {
	r, err := zip.NewReader(src, size)
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, "failed to open archive"), "path", desc.SourcePath)
	}

	files := slices.Clone(r.File)
	if desc.FileOrderPolicy == domain.OrderReproducible {
		slices.SortStableFunc(files, func(a, b *zip.File) int {
			return strings.Compare(entryKey(a.Name), entryKey(b.Name))
		})
	}

	w := zip.NewWriter(dst)
	if err := w.SetComment(r.Comment); err != nil {
		return 0, zerr.Wrap(err, "failed to copy archive comment")
	}

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := copyEntry(w, f, desc); err != nil {
			return i, zerr.With(err, "entry", f.Name)
		}
	}

	if err := w.Close(); err != nil {
		return len(files), zerr.Wrap(err, "failed to finish archive")
	}
	return len(files), nil
}

func copyEntry(w *zip.Writer, f *zip.File, desc domain.ArtifactDescriptor) error {
	hdr := f.FileHeader

	if desc.TimestampPolicy == domain.TimestampStrip {
		hdr.Modified = domain.ReproducibleEpoch
		hdr.ModifiedDate = epochDOSDate
		hdr.ModifiedTime = epochDOSTime
		// Extra fields carry extended and NTFS timestamps.
		hdr.Extra = nil
	}

	if isDir(f.Name) {
		hdr.SetMode(fs.ModeDir | desc.Permissions.DirMode.Perm())
	} else {
		hdr.SetMode(desc.Permissions.FileMode.Perm())
	}

	raw, err := f.OpenRaw()
	if err != nil {
		return zerr.Wrap(err, "failed to open entry")
	}
	out, err := w.CreateRaw(&hdr)
	if err != nil {
		return zerr.Wrap(err, "failed to create entry")
	}
	if _, err := io.Copy(out, raw); err != nil {
		return zerr.Wrap(err, "failed to copy entry")
	}
	return nil
}

// entryKey is the normalized, slash-separated path used to order entries.
func entryKey(name string) string {
	return path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))
}

func isDir(name string) bool {
	return strings.HasSuffix(name, "/")
}
