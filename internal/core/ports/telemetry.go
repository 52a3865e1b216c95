package ports

import (
	"context"
	"io"

	"go.trai.ch/crate/internal/core/domain"
)

//go:generate go run go.uber.org/mock/mockgen -source=telemetry.go -destination=mocks/mock_telemetry.go -package=mocks

// Telemetry records units of work (vertices) for progress reporting.
type Telemetry interface {
	// Record starts a new vertex and returns a context carrying it.
	Record(ctx context.Context, name string) (context.Context, Vertex)
	// Close flushes the recording session.
	Close() error
}

// Vertex is a single recorded unit of work.
type Vertex interface {
	// Stdout returns a writer for the vertex output stream.
	Stdout() io.Writer
	// Log records a message on the vertex.
	Log(level domain.LogLevel, msg string)
	// Complete marks the vertex as finished, successfully when err is nil.
	Complete(err error)
	// Cached marks the vertex as satisfied without doing work.
	Cached()
}

type vertexKey struct{}

// ContextWithVertex returns a copy of ctx carrying v.
func ContextWithVertex(ctx context.Context, v Vertex) context.Context {
	return context.WithValue(ctx, vertexKey{}, v)
}

// VertexFromContext returns the vertex carried by ctx, if any.
func VertexFromContext(ctx context.Context) (Vertex, bool) {
	v, ok := ctx.Value(vertexKey{}).(Vertex)
	return v, ok
}
