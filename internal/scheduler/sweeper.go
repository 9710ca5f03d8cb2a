// Package scheduler runs periodic maintenance. The only job today is a
// report-only sweep for analysis jobs stuck in progress; failed segments
// are never re-dispatched automatically, so a stuck job surfaces here for
// an operator instead.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/pokerlens/pokeragent-worker/internal/storage"
)

// Sweeper logs in-progress jobs whose last update is older than maxAge.
type Sweeper struct {
	jobs   storage.JobStore
	spec   string
	maxAge time.Duration
	cron   *cron.Cron
	log    zerolog.Logger
}

func NewSweeper(jobs storage.JobStore, spec string, maxAge time.Duration, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		jobs:   jobs,
		spec:   spec,
		maxAge: maxAge,
		cron:   cron.New(),
		log:    log.With().Str("component", "stale-job-sweeper").Logger(),
	}
}

// Start registers the sweep and begins the cron loop.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.Sweep(context.Background()) }); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info().Str("spec", s.spec).Dur("max_age", s.maxAge).Msg("stale job sweep scheduled")
	return nil
}

// Stop halts the cron loop, waiting for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep logs every stale job once. Exported so an operator endpoint or
// test can trigger it directly.
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.maxAge)
	stale, err := s.jobs.ListStaleJobs(ctx, cutoff)
	if err != nil {
		s.log.Error().Err(err).Msg("stale job query failed")
		return
	}

	for _, job := range stale {
		s.log.Warn().
			Str("job_id", job.ID).
			Str("status", string(job.Status)).
			Int("completed_segments", job.CompletedSegments).
			Int("total_segments", job.TotalSegments).
			Int("phase2_completed", job.Phase2CompletedHands).
			Int("phase2_total", job.Phase2TotalHands).
			Time("updated_at", job.UpdatedAt).
			Msg("job stuck in progress")
	}
	if len(stale) == 0 {
		s.log.Debug().Msg("no stale jobs")
	}
}
