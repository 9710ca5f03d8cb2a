package processor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pokerlens/pokeragent-worker/internal/models"
)

// HandSource extracts one hand's full record.
type HandSource interface {
	AnalyzeHand(ctx context.Context, sourceRef string, ts models.HandTimestamp, platform string) (*models.HandRecord, error)
}

// HandRecorder persists finished hand records.
type HandRecorder interface {
	SaveHandRecord(ctx context.Context, rec *models.HandRecord) error
}

// HandNotifier is the slice of the orchestrator a hand unit touches.
type HandNotifier interface {
	OnHandComplete(ctx context.Context, jobID string) (*models.AnalysisJob, error)
	OnHandFailed(ctx context.Context, jobID string, handNumber int, cause string) (*models.AnalysisJob, error)
}

// TerminalError marks a unit failure that must not be redelivered: the
// failure is already recorded on the job and re-running the unit cannot
// succeed.
type TerminalError struct {
	Err error
}

func (e *TerminalError) Error() string {
	return e.Err.Error()
}

func (e *TerminalError) Unwrap() error {
	return e.Err
}

// HandProcessor runs one phase-2 unit of work.
type HandProcessor struct {
	analyzer HandSource
	records  HandRecorder
	notifier HandNotifier
	log      zerolog.Logger
}

func NewHandProcessor(analyzer HandSource, records HandRecorder, notifier HandNotifier, log zerolog.Logger) *HandProcessor {
	return &HandProcessor{
		analyzer: analyzer,
		records:  records,
		notifier: notifier,
		log:      log.With().Str("component", "hand-processor").Logger(),
	}
}

// Process analyzes one hand and persists the record. A hand that fails
// analysis is terminal: the failure is recorded on the job, the hand is
// still counted toward completion so one bad hand cannot stall the job,
// and a TerminalError goes back to the caller.
func (p *HandProcessor) Process(ctx context.Context, payload models.HandTaskPayload) error {
	log := p.log.With().Str("job_id", payload.JobID).Int("hand", payload.Hand.HandNumber).Logger()

	rec, err := p.analyzer.AnalyzeHand(ctx, payload.SourceRef, payload.Hand, payload.Platform)
	if err != nil {
		log.Error().Err(err).Msg("hand analysis failed")
		if _, nerr := p.notifier.OnHandFailed(ctx, payload.JobID, payload.Hand.HandNumber, err.Error()); nerr != nil {
			return fmt.Errorf("failed to record hand failure: %w", nerr)
		}
		return &TerminalError{Err: fmt.Errorf("hand %d analysis failed: %w", payload.Hand.HandNumber, err)}
	}

	rec.JobID = payload.JobID
	rec.StreamID = payload.StreamID
	if err := p.records.SaveHandRecord(ctx, rec); err != nil {
		return fmt.Errorf("failed to persist hand %d: %w", payload.Hand.HandNumber, err)
	}

	log.Info().Str("quality", rec.Analysis.HandQuality).Strs("tags", rec.Tags).Msg("hand recorded")
	return p.notify(ctx, payload.JobID)
}

func (p *HandProcessor) notify(ctx context.Context, jobID string) error {
	if _, err := p.notifier.OnHandComplete(ctx, jobID); err != nil {
		return fmt.Errorf("failed to record hand completion: %w", err)
	}
	return nil
}
