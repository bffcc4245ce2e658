package memory

import (
	"context"
	"testing"
	"time"

	"goequity/domain/core"
	"goequity/domain/run"
	"goequity/domain/survival"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(createdAt time.Time) *run.Record {
	arm := survival.NewFitted(survival.FamilyWeibull, []float64{3, 10}, nil)
	m := run.NewRunManifest(core.NewAnalysisID(), run.KindBaseCase, arm, arm, run.Settings{NGroups: 5}, 0, "test")
	m.CreatedAt = core.NewTimestamp(createdAt)
	return &run.Record{Manifest: m}
}

func TestAnalysisRepository_SaveGetDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewAnalysisRepository()

	r := record(time.Now())
	require.NoError(t, repo.Save(ctx, r))

	got, err := repo.Get(ctx, r.ID())
	require.NoError(t, err)
	assert.Same(t, r, got)

	require.NoError(t, repo.Delete(ctx, r.ID()))
	_, err = repo.Get(ctx, r.ID())
	assert.ErrorIs(t, err, core.ErrAnalysisNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, r.ID()), core.ErrAnalysisNotFound)

	assert.Error(t, repo.Save(ctx, &run.Record{}))
}

func TestAnalysisRepository_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewAnalysisRepository()

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	oldest := record(base)
	middle := record(base.Add(time.Minute))
	newest := record(base.Add(2 * time.Minute))
	for _, r := range []*run.Record{middle, oldest, newest} {
		require.NoError(t, repo.Save(ctx, r))
	}

	all, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, newest.ID(), all[0].ID())
	assert.Equal(t, middle.ID(), all[1].ID())
	assert.Equal(t, oldest.ID(), all[2].ID())

	limited, err := repo.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
