package rng

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"

	"goequity/domain/core"
	"goequity/ports"
)

// PCGAdapter implements ports.RNGPort with PCG streams keyed by
// (seed, fnv64a(stream)).
type PCGAdapter struct{}

// NewPCGAdapter creates the default RNG adapter
func NewPCGAdapter() ports.RNGPort {
	return &PCGAdapter{}
}

// Source returns a fresh PCG source for the stream/seed pair
func (a *PCGAdapter) Source(ctx context.Context, stream string, seed uint64) (rand.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rand.NewPCG(seed, hashString(stream)), nil
}

// ValidateSeed draws len(expected) uniform values and compares them exactly
func (a *PCGAdapter) ValidateSeed(ctx context.Context, stream string, seed uint64, expected []float64) error {
	src, err := a.Source(ctx, stream, seed)
	if err != nil {
		return err
	}
	r := rand.New(src)
	for i, want := range expected {
		if got := r.Float64(); got != want {
			return fmt.Errorf("%w: stream %s seed %d draw %d = %v, want %v",
				core.ErrSeedMismatch, stream, seed, i, got, want)
		}
	}
	return nil
}

func hashString(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
