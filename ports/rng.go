package ports

import (
	"context"
	"math/rand/v2"
)

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// Source creates an independent deterministic stream for a named
	// operation. The same (stream, seed) pair always yields the same
	// sequence, regardless of any other stream drawn before it.
	Source(ctx context.Context, stream string, seed uint64) (rand.Source, error)

	// ValidateSeed ensures the seed produces expected deterministic results
	ValidateSeed(ctx context.Context, stream string, seed uint64, expected []float64) error
}
