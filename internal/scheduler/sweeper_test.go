package scheduler

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/pokerlens/pokeragent-worker/internal/models"
	"github.com/pokerlens/pokeragent-worker/internal/storage"
)

type staleStore struct {
	storage.JobStore
	stale []*models.AnalysisJob
}

func (s *staleStore) ListStaleJobs(_ context.Context, _ time.Time) ([]*models.AnalysisJob, error) {
	return s.stale, nil
}

func TestSweepLogsStuckJobs(t *testing.T) {
	store := &staleStore{stale: []*models.AnalysisJob{{
		ID:            "job-stuck",
		Status:        models.JobStatusPhase2InProgress,
		TotalSegments: 2,
		UpdatedAt:     time.Now().Add(-3 * time.Hour),
	}}}

	var buf bytes.Buffer
	s := NewSweeper(store, "@every 10m", 2*time.Hour, zerolog.New(&buf))

	s.Sweep(context.Background())

	assert.Contains(t, buf.String(), "job-stuck")
	assert.Contains(t, buf.String(), "job stuck in progress")
}

func TestSweepNoStaleJobs(t *testing.T) {
	var buf bytes.Buffer
	s := NewSweeper(&staleStore{}, "@every 10m", time.Hour, zerolog.New(&buf))

	s.Sweep(context.Background())

	assert.NotContains(t, buf.String(), "job stuck in progress")
}
