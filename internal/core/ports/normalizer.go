package ports

import (
	"context"
	"io"

	"go.trai.ch/crate/internal/core/domain"
)

// ArchiveNormalizer rewrites archive metadata for reproducible output.
//
//go:generate go run go.uber.org/mock/mockgen -source=normalizer.go -destination=mocks/mock_normalizer.go -package=mocks
type ArchiveNormalizer interface {
	// Supports reports whether the file at path is an archive the normalizer can rewrite.
	Supports(path string) bool

	// Normalize reads the archive from src and writes the normalized archive to dst,
	// applying the descriptor's timestamp, order and permission policies.
	// It returns the number of entries written.
	Normalize(ctx context.Context, src io.ReaderAt, size int64, dst io.Writer, desc domain.ArtifactDescriptor) (int, error)
}
