package fs

import (
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/crate/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Hasher = (*Hasher)(nil)

// Hasher computes content checksums of staged artifacts.
type Hasher struct{}

// NewHasher creates a new Hasher.
func NewHasher() *Hasher {
	return &Hasher{}
}

// ComputeFileHash computes the XXHash of a file's content as 16 hex digits.
func (h *Hasher) ComputeFileHash(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // Path is controlled by caller
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to open file"), "path", path)
	}
	defer f.Close() //nolint:errcheck // Best effort close in defer

	return h.ComputeHash(f)
}

// ComputeHash computes the XXHash of everything read from r.
func (h *Hasher) ComputeHash(r io.Reader) (string, error) {
	digest := xxhash.New()
	if _, err := io.Copy(digest, r); err != nil {
		return "", zerr.Wrap(err, "failed to hash content")
	}
	return fmt.Sprintf("%016x", digest.Sum64()), nil
}
