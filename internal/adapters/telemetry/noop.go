// Package telemetry provides the no-op telemetry adapter.
package telemetry

import (
	"context"
	"io"

	"go.trai.ch/crate/internal/core/domain"
	"go.trai.ch/crate/internal/core/ports"
)

var (
	_ ports.Telemetry = (*NoOp)(nil)
	_ ports.Vertex    = (*NoOpVertex)(nil)
)

// NoOp is a no-op implementation of ports.Telemetry.
type NoOp struct{}

// NewNoOp creates a new NoOp telemetry.
func NewNoOp() *NoOp {
	return &NoOp{}
}

// Record returns a vertex that discards everything.
func (t *NoOp) Record(ctx context.Context, _ string) (context.Context, ports.Vertex) {
	v := &NoOpVertex{}
	return ports.ContextWithVertex(ctx, v), v
}

// Close does nothing.
func (t *NoOp) Close() error { return nil }

// NoOpVertex is a no-op implementation of ports.Vertex.
type NoOpVertex struct{}

// Stdout returns io.Discard.
func (v *NoOpVertex) Stdout() io.Writer { return io.Discard }

// Log does nothing.
func (v *NoOpVertex) Log(_ domain.LogLevel, _ string) {}

// Complete does nothing.
func (v *NoOpVertex) Complete(_ error) {}

// Cached does nothing.
func (v *NoOpVertex) Cached() {}
