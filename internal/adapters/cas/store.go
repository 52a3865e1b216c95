// Package cas implements the release manifest: one record per staged artifact.
package cas

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"go.trai.ch/crate/internal/core/domain"
	"go.trai.ch/crate/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.StagingStore = (*Store)(nil)

// Store implements ports.StagingStore using a file-per-destination strategy.
// Records for different destinations never share a file, so concurrent staging of
// distinct artifacts needs no locking here.
type Store struct{}

// NewStore creates a new StagingStore.
func NewStore() *Store {
	return &Store{}
}

// Get retrieves the record for a destination.
func (s *Store) Get(root, destination string) (*domain.StagingRecord, error) {
	filename := s.filename(root, destination)
	//nolint:gosec // Path is constructed from trusted directory and hashed filename
	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Join(domain.ErrStoreReadFailed, zerr.With(err, "path", filename))
	}

	var record domain.StagingRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, errors.Join(domain.ErrStoreReadFailed, zerr.With(err, "path", filename))
	}

	return &record, nil
}

// Put stores the record.
func (s *Store) Put(root string, record domain.StagingRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return errors.Join(domain.ErrStoreWriteFailed, err)
	}

	filename := s.filename(root, record.Destination)
	if err := os.MkdirAll(filepath.Dir(filename), 0o750); err != nil {
		return errors.Join(domain.ErrStoreWriteFailed, zerr.With(err, "path", filename))
	}

	tmp, err := os.CreateTemp(filepath.Dir(filename), filepath.Base(filename)+".*.tmp")
	if err != nil {
		return errors.Join(domain.ErrStoreWriteFailed, zerr.With(err, "path", filename))
	}
	tmpName := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		_ = os.Remove(tmpName)
		return errors.Join(domain.ErrStoreWriteFailed, zerr.With(err, "path", tmpName))
	}
	if err := os.Rename(tmpName, filename); err != nil {
		_ = os.Remove(tmpName)
		return errors.Join(domain.ErrStoreWriteFailed, zerr.With(err, "path", filename))
	}

	return nil
}

func (s *Store) filename(root, destination string) string {
	hash := sha256.Sum256([]byte(filepath.Clean(destination)))
	return filepath.Join(root, domain.ManifestDirName, "manifest", hex.EncodeToString(hash[:])+".json")
}
