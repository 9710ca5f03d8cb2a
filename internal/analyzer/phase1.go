package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"github.com/pokerlens/pokeragent-worker/internal/models"
	"github.com/pokerlens/pokeragent-worker/internal/prompt"
	"github.com/pokerlens/pokeragent-worker/internal/storage"
	"github.com/pokerlens/pokeragent-worker/internal/utils"
)

// VideoModel is the slice of the model client the analyzers depend on.
type VideoModel interface {
	GenerateContent(ctx context.Context, video []byte, mimeType, prompt string) (string, error)
}

// Model-call retry policy shared by both phases: 3 attempts, 2s initial
// delay, doubling per attempt.
const modelCallAttempts = 3

var modelCallDelay = 2 * time.Second

func retryOpts(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Attempts(modelCallAttempts),
		retry.Delay(modelCallDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	}
}

// BoundaryAnalyzer runs phase 1: one model call per extracted clip that
// yields only hand start/end boundaries.
type BoundaryAnalyzer struct {
	model   VideoModel
	objects storage.ObjectStore
	prompts *prompt.Builder
	log     zerolog.Logger
}

// NewBoundaryAnalyzer wires a phase-1 analyzer.
func NewBoundaryAnalyzer(model VideoModel, objects storage.ObjectStore, prompts *prompt.Builder, log zerolog.Logger) *BoundaryAnalyzer {
	return &BoundaryAnalyzer{
		model:   model,
		objects: objects,
		prompts: prompts,
		log:     log.With().Str("component", "boundary-analyzer").Logger(),
	}
}

// AnalyzeBoundaries asks the model for hand boundaries inside one clip.
// Model-call and parse failures are retried together under the shared
// policy. Entries without a numeric hand index or a start/end pair are
// dropped with a warning; a response with zero valid entries is an empty
// result, not an error. Returned timestamps are absolute: the clip's start
// offset plus the boundary's relative offset.
func (a *BoundaryAnalyzer) AnalyzeBoundaries(ctx context.Context, clip models.ExtractedClip, platform string) ([]models.HandTimestamp, error) {
	promptText, err := a.prompts.Boundary()
	if err != nil {
		return nil, err
	}

	video, err := a.objects.Download(ctx, clip.ObjectPath)
	if err != nil {
		return nil, fmt.Errorf("failed to download clip: %w", err)
	}

	var resp struct {
		Hands []map[string]any `json:"hands"`
	}
	err = retry.Do(func() error {
		raw, err := a.model.GenerateContent(ctx, video, "video/mp4", promptText)
		if err != nil {
			return err
		}
		return utils.ParseModelJSON(raw, &resp)
	}, retryOpts(ctx)...)
	if err != nil {
		return nil, fmt.Errorf("boundary analysis failed after %d attempts: %w", modelCallAttempts, err)
	}

	var out []models.HandTimestamp
	for i, entry := range resp.Hands {
		ts, ok := a.validEntry(entry, clip.Range.Start)
		if !ok {
			a.log.Warn().Int("index", i).Str("platform", platform).Interface("entry", entry).Msg("dropping invalid boundary entry")
			continue
		}
		out = append(out, ts)
	}

	a.log.Info().Str("clip", clip.ObjectPath).Int("hands", len(out)).Msg("boundaries detected")
	return out, nil
}

// validEntry checks one raw boundary entry and converts its clip-relative
// offsets to absolute timestamps.
func (a *BoundaryAnalyzer) validEntry(entry map[string]any, clipStart float64) (models.HandTimestamp, bool) {
	num, ok := entry["hand"].(float64)
	if !ok {
		return models.HandTimestamp{}, false
	}

	start, ok := entry["start"].(string)
	if !ok {
		return models.HandTimestamp{}, false
	}
	end, ok := entry["end"].(string)
	if !ok {
		return models.HandTimestamp{}, false
	}

	startSec, err := models.ParseClock(start)
	if err != nil {
		return models.HandTimestamp{}, false
	}
	endSec, err := models.ParseClock(end)
	if err != nil {
		return models.HandTimestamp{}, false
	}

	return models.HandTimestamp{
		HandNumber: int(num),
		Start:      models.FormatClock(clipStart + startSec),
		End:        models.FormatClock(clipStart + endSec),
	}, true
}
