package analyzer

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pokerlens/pokeragent-worker/internal/models"
	"github.com/pokerlens/pokeragent-worker/internal/prompt"
)

const goodHandJSON = `{
	"handNumber": 7,
	"stakes": "100/200",
	"potSize": 4400,
	"board": {"flop": ["As", "Kd", "7h"], "turn": "2c", "river": "9s"},
	"players": [
		{"name": "Ivan", "position": "BTN", "seat": 1, "stack": 20000, "holeCards": ["Ah", "Kh"]},
		{"name": "Patrik", "position": "BB", "seat": 3, "stack": 18000}
	],
	"actions": [
		{"player": "Ivan", "street": "preflop", "action": "raise", "amount": 600, "pot": 300},
		{"player": "Patrik", "street": "preflop", "action": "call", "amount": 400}
	],
	"winners": ["Ivan"],
	"tags": ["big-pot", "bluff", "big-pot", "not-a-real-tag"],
	"analysis": {
		"confidence": 0.93,
		"reasoning": "Standard value line.",
		"playerReads": [{"player": "Ivan", "emotionalState": "zen", "playStyle": "aggressive"}],
		"handQuality": "routine"
	}
}`

func newHandAnalyzer(model VideoModel, objects *fakeObjects, clips *fakeClips) *HandAnalyzer {
	return NewHandAnalyzer(model, clips, objects, prompt.NewBuilder(), 300, zerolog.Nop())
}

func testHandTS() models.HandTimestamp {
	return models.HandTimestamp{HandNumber: 7, Start: "00:31:00", End: "00:33:30"}
}

func TestAnalyzeHandHappyPath(t *testing.T) {
	objects := newFakeObjects()
	clips := &fakeClips{objects: objects}
	model := &fakeModel{responses: []string{goodHandJSON}}

	rec, err := newHandAnalyzer(model, objects, clips).
		AnalyzeHand(context.Background(), "streams/s1.mp4", testHandTS(), "triton")
	require.NoError(t, err)

	assert.Equal(t, 7, rec.HandNumber)
	assert.Equal(t, "100/200", rec.Stakes)
	// Tags filtered to the vocabulary and de-duplicated, order preserved.
	assert.Equal(t, []string{"big-pot", "bluff"}, rec.Tags)
	// Unknown emotional state falls back to neutral.
	assert.Equal(t, "neutral", rec.Analysis.PlayerReads[0].EmotionalState)
	assert.Equal(t, "aggressive", rec.Analysis.PlayerReads[0].PlayStyle)
	assert.InDelta(t, 0.93, rec.Analysis.Confidence, 1e-9)

	// One call: confidence above the first-iteration threshold, no blockers.
	assert.Equal(t, 1, model.calls)
	// The temporary clip is gone.
	require.Len(t, clips.cleaned, 1)
	assert.Empty(t, objects.data)
}

func TestAnalyzeHandMissingPlayersIsFatal(t *testing.T) {
	objects := newFakeObjects()
	clips := &fakeClips{objects: objects}
	model := &fakeModel{responses: []string{
		`{"handNumber": 1, "board": {}, "analysis": {"confidence": 0.9}}`,
	}}

	_, err := newHandAnalyzer(model, objects, clips).
		AnalyzeHand(context.Background(), "streams/s1.mp4", testHandTS(), "generic")
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "players", verr.Field)

	// Clip deleted on the failure path too.
	require.Len(t, clips.cleaned, 1)
	assert.Empty(t, objects.data)
}

func TestAnalyzeHandReprompingOnLowConfidence(t *testing.T) {
	lowConfidence := `{
		"handNumber": 2,
		"board": {"flop": ["As", "As", "7h"]},
		"players": [{"name": "Ivan", "stack": 1000}],
		"actions": [],
		"tags": [],
		"analysis": {"confidence": 0.4, "handQuality": "routine"}
	}`
	objects := newFakeObjects()
	clips := &fakeClips{objects: objects}
	model := &fakeModel{responses: []string{lowConfidence, lowConfidence, goodHandJSON}}

	rec, err := newHandAnalyzer(model, objects, clips).
		AnalyzeHand(context.Background(), "streams/s1.mp4", testHandTS(), "generic")
	require.NoError(t, err)
	assert.Equal(t, 7, rec.HandNumber)
	assert.Equal(t, 3, model.calls)

	// Later prompts carry the correction feedback for the duplicate ace.
	assert.Contains(t, model.prompts[1], "appears more than once")
	assert.NotContains(t, model.prompts[0], "appears more than once")
}

func TestAnalyzeHandRetriesTransientModelFailure(t *testing.T) {
	shortRetryDelay(t)
	objects := newFakeObjects()
	clips := &fakeClips{objects: objects}
	model := &fakeModel{
		errs:      []error{errors.New("deadline exceeded")},
		responses: []string{goodHandJSON},
	}

	rec, err := newHandAnalyzer(model, objects, clips).
		AnalyzeHand(context.Background(), "streams/s1.mp4", testHandTS(), "triton")
	require.NoError(t, err)
	assert.Equal(t, 7, rec.HandNumber)
	assert.Equal(t, 2, model.calls)

	// Clip deleted despite the mid-call retry.
	require.Len(t, clips.cleaned, 1)
	assert.Empty(t, objects.data)
}

func TestAnalyzeHandFailsAfterExhaustedRetries(t *testing.T) {
	shortRetryDelay(t)
	objects := newFakeObjects()
	clips := &fakeClips{objects: objects}
	transient := errors.New("502 bad gateway")
	model := &fakeModel{errs: []error{transient, transient, transient}}

	_, err := newHandAnalyzer(model, objects, clips).
		AnalyzeHand(context.Background(), "streams/s1.mp4", testHandTS(), "generic")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 3, model.calls)
	require.Len(t, clips.cleaned, 1)
}

func TestAnalyzeHandExtractionFailure(t *testing.T) {
	objects := newFakeObjects()
	clips := &fakeClips{objects: objects, extractErr: assert.AnError}
	model := &fakeModel{responses: []string{goodHandJSON}}

	_, err := newHandAnalyzer(model, objects, clips).
		AnalyzeHand(context.Background(), "streams/s1.mp4", testHandTS(), "generic")
	require.Error(t, err)
	assert.Zero(t, model.calls)
}

func TestAnalyzeHandRejectsEmptyRange(t *testing.T) {
	objects := newFakeObjects()
	clips := &fakeClips{objects: objects}
	model := &fakeModel{responses: []string{goodHandJSON}}

	_, err := newHandAnalyzer(model, objects, clips).AnalyzeHand(
		context.Background(), "streams/s1.mp4",
		models.HandTimestamp{HandNumber: 1, Start: "00:10:00", End: "00:10:00"}, "generic")
	assert.Error(t, err)
}
