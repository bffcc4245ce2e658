package rng

import (
	"context"
	"math/rand/v2"
	"testing"

	"goequity/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func draws(t *testing.T, a *PCGAdapter, stream string, seed uint64, n int) []float64 {
	t.Helper()
	src, err := a.Source(context.Background(), stream, seed)
	require.NoError(t, err)
	r := rand.New(src)
	out := make([]float64, n)
	for i := range out {
		out[i] = r.Float64()
	}
	return out
}

func TestSource_Deterministic(t *testing.T) {
	a := &PCGAdapter{}
	first := draws(t, a, "comparator", 7, 16)

	// interleave another stream; the original must be unaffected
	_ = draws(t, a, "intervention", 7, 100)
	second := draws(t, a, "comparator", 7, 16)

	assert.Equal(t, first, second)
}

func TestSource_StreamsDiffer(t *testing.T) {
	a := &PCGAdapter{}
	assert.NotEqual(t, draws(t, a, "comparator", 1, 4), draws(t, a, "intervention", 1, 4))
	assert.NotEqual(t, draws(t, a, "comparator", 1, 4), draws(t, a, "comparator", 2, 4))
}

func TestSource_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPCGAdapter().Source(ctx, "comparator", 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValidateSeed(t *testing.T) {
	a := &PCGAdapter{}
	expected := draws(t, a, "check", 42, 3)

	require.NoError(t, a.ValidateSeed(context.Background(), "check", 42, expected))

	err := a.ValidateSeed(context.Background(), "check", 43, expected)
	assert.ErrorIs(t, err, core.ErrSeedMismatch)
}
