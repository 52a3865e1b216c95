package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/crate/internal/adapters/telemetry"
	"go.trai.ch/crate/internal/core/domain"
	"go.trai.ch/crate/internal/core/ports"
)

func TestNoOp_Record(t *testing.T) {
	tel := telemetry.NewNoOp()

	ctx, v := tel.Record(context.Background(), "stage autoprayer")
	require.NotNil(t, v)

	fromCtx, ok := ports.VertexFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, v, fromCtx)

	n, err := v.Stdout().Write([]byte("discarded"))
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	v.Log(domain.LogLevelWarn, "ignored")
	v.Cached()
	v.Complete(errors.New("ignored"))
	assert.NoError(t, tel.Close())
}
