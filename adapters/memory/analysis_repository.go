package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"goequity/domain/core"
	"goequity/domain/run"
	"goequity/ports"
)

// AnalysisRepository implements ports.AnalysisRepository with in-memory storage
type AnalysisRepository struct {
	records map[core.AnalysisID]*run.Record
	mu      sync.RWMutex
}

// NewAnalysisRepository creates an empty repository
func NewAnalysisRepository() *AnalysisRepository {
	return &AnalysisRepository{
		records: make(map[core.AnalysisID]*run.Record),
	}
}

func (s *AnalysisRepository) Save(ctx context.Context, record *run.Record) error {
	if record == nil || record.Manifest == nil {
		return fmt.Errorf("record has no manifest")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.ID()] = record
	return nil
}

func (s *AnalysisRepository) Get(ctx context.Context, id core.AnalysisID) (*run.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.records[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", core.ErrAnalysisNotFound, id)
	}
	return record, nil
}

func (s *AnalysisRepository) List(ctx context.Context, limit int) ([]*run.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]*run.Record, 0, len(s.records))
	for _, r := range s.records {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[j].Manifest.CreatedAt.Before(results[i].Manifest.CreatedAt)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *AnalysisRepository) Delete(ctx context.Context, id core.AnalysisID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; !exists {
		return fmt.Errorf("%w: %s", core.ErrAnalysisNotFound, id)
	}
	delete(s.records, id)
	return nil
}

var _ ports.AnalysisRepository = (*AnalysisRepository)(nil)
