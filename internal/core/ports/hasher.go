package ports

// Hasher defines the interface for computing artifact checksums.
//
//go:generate go run go.uber.org/mock/mockgen -source=hasher.go -destination=mocks/mock_hasher.go -package=mocks
type Hasher interface {
	// ComputeFileHash returns the hex checksum of the file content at path.
	ComputeFileHash(path string) (string, error)
}
