package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pokerlens/pokeragent-worker/internal/models"
	"github.com/pokerlens/pokeragent-worker/internal/prompt"
	"github.com/pokerlens/pokeragent-worker/internal/storage"
	"github.com/pokerlens/pokeragent-worker/internal/utils"
)

// ValidationError marks a model response that parsed but is structurally
// unusable. Validation failures are fatal for the hand; they are not
// retried at the model-call layer.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("model response missing required field %q", e.Field)
}

// ClipSource isolates the clip extractor behind an interface so tests can
// substitute a double.
type ClipSource interface {
	Extract(ctx context.Context, sourceRef string, ranges []models.TimeRange, ownerKey string, maxRangeSeconds float64) ([]models.ExtractedClip, error)
	Cleanup(ctx context.Context, clips []models.ExtractedClip)
}

// HandAnalyzer runs phase 2: one model call (plus bounded re-prompts) per
// hand that yields the full structured extraction.
type HandAnalyzer struct {
	model           VideoModel
	clips           ClipSource
	objects         storage.ObjectStore
	prompts         *prompt.Builder
	maxRangeSeconds float64
	log             zerolog.Logger
}

// NewHandAnalyzer wires a phase-2 analyzer. maxRangeSeconds caps the tight
// per-hand clip and is far below the phase-1 cap.
func NewHandAnalyzer(model VideoModel, clips ClipSource, objects storage.ObjectStore, prompts *prompt.Builder, maxRangeSeconds float64, log zerolog.Logger) *HandAnalyzer {
	return &HandAnalyzer{
		model:           model,
		clips:           clips,
		objects:         objects,
		prompts:         prompts,
		maxRangeSeconds: maxRangeSeconds,
		log:             log.With().Str("component", "hand-analyzer").Logger(),
	}
}

// handResponse mirrors the extraction template's JSON shape.
type handResponse struct {
	HandNumber int               `json:"handNumber"`
	Stakes     string            `json:"stakes"`
	PotSize    float64           `json:"potSize"`
	Board      models.Board      `json:"board"`
	Players    []models.Player   `json:"players"`
	Actions    []models.Action   `json:"actions"`
	Winners    []string          `json:"winners"`
	Tags       []string          `json:"tags"`
	Analysis   models.AIAnalysis `json:"analysis"`
}

var requiredFields = []string{"handNumber", "players", "board", "analysis"}

// AnalyzeHand extracts one hand. The temporary clip it creates is deleted
// on every exit path. Model-call and parse failures share the phase-1
// retry policy; a parsed response missing required fields is a fatal
// validation error for this hand.
func (a *HandAnalyzer) AnalyzeHand(ctx context.Context, sourceRef string, ts models.HandTimestamp, platform string) (*models.HandRecord, error) {
	startSec, err := models.ParseClock(ts.Start)
	if err != nil {
		return nil, fmt.Errorf("bad hand start: %w", err)
	}
	endSec, err := models.ParseClock(ts.End)
	if err != nil {
		return nil, fmt.Errorf("bad hand end: %w", err)
	}
	if endSec <= startSec {
		return nil, fmt.Errorf("hand range [%s, %s] is empty", ts.Start, ts.End)
	}

	ownerKey := fmt.Sprintf("hand-%d-%s", ts.HandNumber, uuid.NewString()[:8])
	clips, err := a.clips.Extract(ctx, sourceRef,
		[]models.TimeRange{{Start: startSec, End: endSec}},
		ownerKey, a.maxRangeSeconds)
	// Shared-storage clips go away whether analysis succeeds or not.
	defer a.clips.Cleanup(context.WithoutCancel(ctx), clips)
	if err != nil {
		return nil, fmt.Errorf("failed to extract hand clip: %w", err)
	}
	if len(clips) > 1 {
		a.log.Warn().Int("hand", ts.HandNumber).Int("clips", len(clips)).Msg("hand longer than clip cap, analyzing first piece only")
	}

	video, err := a.objects.Download(ctx, clips[0].ObjectPath)
	if err != nil {
		return nil, fmt.Errorf("failed to download hand clip: %w", err)
	}

	basePrompt, err := a.prompts.Extraction(platform, "", nil)
	if err != nil {
		return nil, err
	}

	var rec *models.HandRecord
	var errs []HandError
	promptText := basePrompt
	for iteration := 0; iteration < maxIterations; iteration++ {
		rec, err = a.extractOnce(ctx, video, promptText, ts)
		if err != nil {
			return nil, err
		}

		errs = CheckHand(rec)
		if !ShouldRetry(rec, errs, iteration) {
			break
		}

		a.log.Info().Int("hand", ts.HandNumber).Int("iteration", iteration).
			Int("errors", len(errs)).Float64("confidence", rec.Analysis.Confidence).
			Msg("re-prompting with correction feedback")
		promptText = OptimizePrompt(basePrompt, errs, iteration+1)
	}

	if len(errs) > 0 {
		a.log.Warn().Int("hand", ts.HandNumber).Int("errors", len(errs)).Msg("accepting hand with residual inconsistencies")
	}
	return rec, nil
}

// extractOnce performs one prompt round: model call with retries, parse,
// required-field validation, normalization.
func (a *HandAnalyzer) extractOnce(ctx context.Context, video []byte, promptText string, ts models.HandTimestamp) (*models.HandRecord, error) {
	var fields map[string]json.RawMessage
	err := retry.Do(func() error {
		raw, err := a.model.GenerateContent(ctx, video, "video/mp4", promptText)
		if err != nil {
			return err
		}
		return utils.ParseModelJSON(raw, &fields)
	}, retryOpts(ctx)...)
	if err != nil {
		return nil, fmt.Errorf("hand extraction failed after %d attempts: %w", modelCallAttempts, err)
	}

	for _, f := range requiredFields {
		if _, ok := fields[f]; !ok {
			return nil, &ValidationError{Field: f}
		}
	}

	full, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to re-marshal response: %w", err)
	}
	var resp handResponse
	if err := json.Unmarshal(full, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode hand response: %w", err)
	}
	if len(resp.Players) == 0 {
		return nil, &ValidationError{Field: "players"}
	}

	tags := NormalizeTags(resp.Tags)
	rec := &models.HandRecord{
		ID:         uuid.NewString(),
		HandNumber: resp.HandNumber,
		Stakes:     resp.Stakes,
		PotSize:    resp.PotSize,
		Board:      resp.Board,
		Players:    resp.Players,
		Actions:    resp.Actions,
		Winners:    resp.Winners,
		Tags:       tags,
		Analysis:   NormalizeAnalysis(tags, resp.Analysis),
		Timestamp:  ts,
		CreatedAt:  time.Now().UTC(),
	}
	return rec, nil
}
