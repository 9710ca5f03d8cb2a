// Package processor holds the queue-facing units of work: one processor
// per task type, each pulling together extraction, analysis, and the
// orchestrator notifications for a single payload.
package processor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pokerlens/pokeragent-worker/internal/analyzer"
	"github.com/pokerlens/pokeragent-worker/internal/models"
)

// BoundarySource yields hand boundaries for one clip.
type BoundarySource interface {
	AnalyzeBoundaries(ctx context.Context, clip models.ExtractedClip, platform string) ([]models.HandTimestamp, error)
}

// SegmentNotifier is the slice of the orchestrator a segment unit touches.
type SegmentNotifier interface {
	OnSegmentStart(ctx context.Context, jobID string, segmentIndex int) (*models.AnalysisJob, error)
	OnSegmentComplete(ctx context.Context, jobID string, segmentIndex, handsFound int) (*models.AnalysisJob, error)
	OnSegmentFailed(ctx context.Context, jobID string, segmentIndex int, cause string) (*models.AnalysisJob, error)
}

// CallbackPoster delivers a segment's aggregated boundaries to the
// configured callback endpoint. A non-2xx response is an error.
type CallbackPoster interface {
	PostSegmentResult(ctx context.Context, cb models.SegmentCallback) error
}

// SegmentProcessor runs one phase-1 unit of work end to end.
type SegmentProcessor struct {
	clips           analyzer.ClipSource
	boundaries      BoundarySource
	notifier        SegmentNotifier
	callback        CallbackPoster // nil when no callback URL is configured
	maxRangeSeconds float64
	log             zerolog.Logger
}

func NewSegmentProcessor(clips analyzer.ClipSource, boundaries BoundarySource, notifier SegmentNotifier, callback CallbackPoster, maxRangeSeconds float64, log zerolog.Logger) *SegmentProcessor {
	return &SegmentProcessor{
		clips:           clips,
		boundaries:      boundaries,
		notifier:        notifier,
		callback:        callback,
		maxRangeSeconds: maxRangeSeconds,
		log:             log.With().Str("component", "segment-processor").Logger(),
	}
}

// Process extracts the segment's clips, detects boundaries in each, posts
// the aggregated result to the callback endpoint, and notifies the
// orchestrator. Any failure marks the segment failed; the error is also
// returned so the queue can apply its own redelivery policy.
func (p *SegmentProcessor) Process(ctx context.Context, payload models.SegmentTaskPayload) error {
	log := p.log.With().Str("job_id", payload.JobID).Int("segment", payload.SegmentIndex).Logger()

	if _, err := p.notifier.OnSegmentStart(ctx, payload.JobID, payload.SegmentIndex); err != nil {
		return fmt.Errorf("failed to mark segment started: %w", err)
	}

	ownerKey := fmt.Sprintf("job-%s-seg-%d", payload.JobID, payload.SegmentIndex)
	clips, err := p.clips.Extract(ctx, payload.SourceRef,
		[]models.TimeRange{payload.Range}, ownerKey, p.maxRangeSeconds)
	defer p.clips.Cleanup(context.WithoutCancel(ctx), clips)
	if err != nil {
		return p.fail(ctx, payload, fmt.Errorf("clip extraction failed: %w", err))
	}

	var hands []models.HandTimestamp
	for _, clip := range clips {
		found, err := p.boundaries.AnalyzeBoundaries(ctx, clip, payload.Platform)
		if err != nil {
			return p.fail(ctx, payload, fmt.Errorf("boundary analysis of %s failed: %w", clip.ObjectPath, err))
		}
		hands = append(hands, found...)
	}

	if p.callback != nil {
		cb := models.SegmentCallback{
			JobID:     payload.JobID,
			StreamID:  payload.StreamID,
			SourceRef: payload.SourceRef,
			Platform:  payload.Platform,
			Hands:     hands,
		}
		if err := p.callback.PostSegmentResult(ctx, cb); err != nil {
			return p.fail(ctx, payload, fmt.Errorf("segment callback failed: %w", err))
		}
	}

	if _, err := p.notifier.OnSegmentComplete(ctx, payload.JobID, payload.SegmentIndex, len(hands)); err != nil {
		return fmt.Errorf("failed to mark segment complete: %w", err)
	}

	log.Info().Int("hands", len(hands)).Msg("segment processed")
	return nil
}

// fail records the terminal failure on the job, then returns the original
// error. A notification failure is logged but does not mask the cause.
func (p *SegmentProcessor) fail(ctx context.Context, payload models.SegmentTaskPayload, cause error) error {
	if _, err := p.notifier.OnSegmentFailed(ctx, payload.JobID, payload.SegmentIndex, cause.Error()); err != nil {
		p.log.Error().Err(err).Str("job_id", payload.JobID).Int("segment", payload.SegmentIndex).
			Msg("failed to record segment failure")
	}
	return cause
}
