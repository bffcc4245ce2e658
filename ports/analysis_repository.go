package ports

import (
	"context"

	"goequity/domain/core"
	"goequity/domain/run"
)

// AnalysisRepository defines the interface for analysis persistence
type AnalysisRepository interface {
	// Save stores a completed analysis. Saving an existing ID replaces it.
	Save(ctx context.Context, record *run.Record) error

	// Get retrieves a stored analysis by ID
	Get(ctx context.Context, id core.AnalysisID) (*run.Record, error)

	// List returns the most recent analyses, newest first
	List(ctx context.Context, limit int) ([]*run.Record, error)

	// Delete removes an analysis
	Delete(ctx context.Context, id core.AnalysisID) error
}
