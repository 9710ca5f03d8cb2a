package orchestrator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pokerlens/pokeragent-worker/internal/models"
	"github.com/pokerlens/pokeragent-worker/internal/storage"
)

// Dispatcher hands units of work to the task queue. Delivery is
// at-least-once; redelivery of failed segments is the queue's decision,
// the orchestrator never re-enqueues on its own.
type Dispatcher interface {
	EnqueueSegment(ctx context.Context, payload models.SegmentTaskPayload) error
	EnqueueHand(ctx context.Context, payload models.HandTaskPayload) error
}

// Orchestrator drives the job state machine. Every counter mutation goes
// through the store's transactional UpdateJob so completions arriving from
// parallel workers are never lost.
type Orchestrator struct {
	jobs     storage.JobStore
	dispatch Dispatcher
	log      zerolog.Logger
}

func New(jobs storage.JobStore, dispatch Dispatcher, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:     jobs,
		dispatch: dispatch,
		log:      log.With().Str("component", "orchestrator").Logger(),
	}
}

// SubmitRequest describes a new analysis job.
type SubmitRequest struct {
	JobID     string // optional, generated when empty
	StreamID  string
	SourceRef string
	Platform  string
	Segments  []models.TimeRange
}

// Submit persists a new job with every segment pending and dispatches one
// phase-1 unit per segment.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*models.AnalysisJob, error) {
	if req.SourceRef == "" {
		return nil, fmt.Errorf("sourceRef is required")
	}
	if len(req.Segments) == 0 {
		return nil, fmt.Errorf("at least one segment range is required")
	}
	for i, r := range req.Segments {
		if !r.Valid() {
			return nil, fmt.Errorf("segment %d has invalid range [%.1f, %.1f]", i, r.Start, r.End)
		}
	}

	jobID := req.JobID
	if jobID == "" {
		jobID = uuid.New().String()
	}

	now := time.Now().UTC()
	job := &models.AnalysisJob{
		ID:            jobID,
		StreamID:      req.StreamID,
		SourceRef:     req.SourceRef,
		Platform:      req.Platform,
		Segments:      make([]models.SegmentRecord, len(req.Segments)),
		TotalSegments: len(req.Segments),
		Phase:         models.PhaseBoundaries,
		Status:        models.JobStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for i, r := range req.Segments {
		job.Segments[i] = models.SegmentRecord{Range: r, Status: models.SegmentPending}
	}

	if err := o.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	for i, r := range req.Segments {
		payload := models.SegmentTaskPayload{
			JobID:        jobID,
			StreamID:     req.StreamID,
			SegmentIndex: i,
			SourceRef:    req.SourceRef,
			Range:        r,
			Platform:     req.Platform,
		}
		if err := o.dispatch.EnqueueSegment(ctx, payload); err != nil {
			return nil, fmt.Errorf("failed to enqueue segment %d of job %s: %w", i, jobID, err)
		}
	}

	o.log.Info().Str("job_id", jobID).Int("segments", len(req.Segments)).Msg("job submitted")
	return job, nil
}

// OnSegmentStart marks a segment processing and moves a pending job into
// phase1-in-progress. A segment already in a terminal state stays there;
// the queue redelivers tasks, and segment transitions are one-way.
func (o *Orchestrator) OnSegmentStart(ctx context.Context, jobID string, segmentIndex int) (*models.AnalysisJob, error) {
	return o.jobs.UpdateJob(ctx, jobID, func(job *models.AnalysisJob) error {
		seg, err := segmentAt(job, segmentIndex)
		if err != nil {
			return err
		}
		if terminal(seg.Status) {
			return nil
		}
		seg.Status = models.SegmentProcessing
		if job.Status == models.JobStatusPending {
			job.Status = models.JobStatusPhase1InProgress
		}
		return nil
	})
}

// OnSegmentComplete records a segment's discovered hand count and, when it
// was the last outstanding segment, finalizes phase 1. Idempotent under
// redelivery: a segment counted once is never counted again.
func (o *Orchestrator) OnSegmentComplete(ctx context.Context, jobID string, segmentIndex, handsFound int) (*models.AnalysisJob, error) {
	return o.jobs.UpdateJob(ctx, jobID, func(job *models.AnalysisJob) error {
		seg, err := segmentAt(job, segmentIndex)
		if err != nil {
			return err
		}
		if terminal(seg.Status) {
			return nil
		}
		seg.Status = models.SegmentCompleted
		n := handsFound
		seg.HandsFound = &n

		job.CompletedSegments++
		job.HandsFound += handsFound
		finalizePhase1(job)
		return nil
	})
}

// OnSegmentFailed records a terminal segment failure. The job keeps going
// with partial data. Idempotent under redelivery like OnSegmentComplete.
func (o *Orchestrator) OnSegmentFailed(ctx context.Context, jobID string, segmentIndex int, cause string) (*models.AnalysisJob, error) {
	return o.jobs.UpdateJob(ctx, jobID, func(job *models.AnalysisJob) error {
		seg, err := segmentAt(job, segmentIndex)
		if err != nil {
			return err
		}
		if terminal(seg.Status) {
			return nil
		}
		seg.Status = models.SegmentFailed
		seg.Error = cause

		job.FailedSegments++
		job.Error = fmt.Sprintf("segment %d failed: %s", segmentIndex, cause)
		finalizePhase1(job)
		return nil
	})
}

// DispatchPhase2 takes the aggregated boundaries from all segments, moves
// the job into phase 2, and enqueues one hand task per boundary. A job
// whose segments found no hands completes immediately.
func (o *Orchestrator) DispatchPhase2(ctx context.Context, jobID string, hands []models.HandTimestamp) (*models.AnalysisJob, error) {
	job, err := o.jobs.UpdateJob(ctx, jobID, func(job *models.AnalysisJob) error {
		if !job.Phase1Done() {
			return fmt.Errorf("job %s has %d of %d segments outstanding", jobID,
				job.TotalSegments-job.CompletedSegments-job.FailedSegments, job.TotalSegments)
		}
		if job.Status == models.JobStatusPhase2InProgress || job.Status == models.JobStatusCompleted {
			return fmt.Errorf("job %s already dispatched to phase 2", jobID)
		}
		job.Phase2TotalHands = len(hands)
		job.Phase2CompletedHands = 0
		if len(hands) == 0 {
			complete(job)
			return nil
		}
		job.Phase = models.PhaseExtraction
		job.Status = models.JobStatusPhase2InProgress
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(hands) == 0 {
		o.log.Info().Str("job_id", jobID).Msg("no hands discovered, job completed")
		return job, nil
	}

	for _, h := range hands {
		payload := models.HandTaskPayload{
			JobID:     jobID,
			StreamID:  job.StreamID,
			SourceRef: job.SourceRef,
			Hand:      h,
			Platform:  job.Platform,
		}
		if err := o.dispatch.EnqueueHand(ctx, payload); err != nil {
			return nil, fmt.Errorf("failed to enqueue hand %d of job %s: %w", h.HandNumber, jobID, err)
		}
	}

	o.log.Info().Str("job_id", jobID).Int("hands", len(hands)).Msg("phase 2 dispatched")
	return job, nil
}

// OnHandComplete increments the hand counter, recomputes progress, and
// finalizes the job once every hand is accounted for. The counter never
// passes phase2TotalHands; redelivered completions past that are no-ops.
func (o *Orchestrator) OnHandComplete(ctx context.Context, jobID string) (*models.AnalysisJob, error) {
	return o.jobs.UpdateJob(ctx, jobID, func(job *models.AnalysisJob) error {
		o.accountHand(job)
		return nil
	})
}

// OnHandFailed counts a terminally failed hand toward completion and
// records the cause on the job, so one bad hand neither stalls the job nor
// disappears from its document.
func (o *Orchestrator) OnHandFailed(ctx context.Context, jobID string, handNumber int, cause string) (*models.AnalysisJob, error) {
	return o.jobs.UpdateJob(ctx, jobID, func(job *models.AnalysisJob) error {
		if o.accountHand(job) {
			job.Error = fmt.Sprintf("hand %d failed: %s", handNumber, cause)
		}
		return nil
	})
}

// accountHand reports whether the hand was counted; once the counter hits
// phase2TotalHands further deliveries are no-ops.
func (o *Orchestrator) accountHand(job *models.AnalysisJob) bool {
	if job.Phase2CompletedHands >= job.Phase2TotalHands {
		return false
	}
	job.Phase2CompletedHands++
	job.Progress = phase2Progress(job.Phase2CompletedHands, job.Phase2TotalHands)
	if job.Phase2CompletedHands >= job.Phase2TotalHands {
		complete(job)
	}
	return true
}

// GetJob exposes the current job document.
func (o *Orchestrator) GetJob(ctx context.Context, jobID string) (*models.AnalysisJob, error) {
	return o.jobs.GetJob(ctx, jobID)
}

func terminal(s models.SegmentStatus) bool {
	return s == models.SegmentCompleted || s == models.SegmentFailed
}

func segmentAt(job *models.AnalysisJob, idx int) (*models.SegmentRecord, error) {
	if idx < 0 || idx >= len(job.Segments) {
		return nil, fmt.Errorf("job %s has no segment %d", job.ID, idx)
	}
	return &job.Segments[idx], nil
}

func finalizePhase1(job *models.AnalysisJob) {
	accounted := job.CompletedSegments + job.FailedSegments
	if job.TotalSegments > 0 {
		job.Progress = int(math.Round(30 * float64(accounted) / float64(job.TotalSegments)))
	}
	if job.Phase1Done() {
		job.Status = models.JobStatusPhase1Complete
	}
}

// phase2Progress maps hand completion onto the 30-100 band. Phase 1 owns
// the first 30 points.
func phase2Progress(done, total int) int {
	if total <= 0 {
		return 100
	}
	p := int(math.Round(30 + 70*float64(done)/float64(total)))
	if p < 30 {
		p = 30
	}
	if p > 100 {
		p = 100
	}
	return p
}

func complete(job *models.AnalysisJob) {
	now := time.Now().UTC()
	job.Phase = models.PhaseCompleted
	job.Status = models.JobStatusCompleted
	job.Progress = 100
	job.CompletedAt = &now
}
