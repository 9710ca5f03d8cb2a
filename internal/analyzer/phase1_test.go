package analyzer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pokerlens/pokeragent-worker/internal/models"
	"github.com/pokerlens/pokeragent-worker/internal/prompt"
)

func newBoundaryAnalyzer(model VideoModel, objects *fakeObjects) *BoundaryAnalyzer {
	return NewBoundaryAnalyzer(model, objects, prompt.NewBuilder(), zerolog.Nop())
}

func clipAt(start float64) models.ExtractedClip {
	return models.ExtractedClip{ObjectPath: "clips/test/0.mp4", Range: models.TimeRange{Start: start, End: start + 1800}}
}

func TestAnalyzeBoundariesAbsoluteOffsets(t *testing.T) {
	objects := newFakeObjects()
	objects.data["clips/test/0.mp4"] = []byte("video")
	model := &fakeModel{responses: []string{
		`{"hands":[{"hand":1,"start":"00:30","end":"02:00"},{"hand":2,"start":"05:00","end":"07:15"}]}`,
	}}

	got, err := newBoundaryAnalyzer(model, objects).AnalyzeBoundaries(context.Background(), clipAt(1800), "triton")
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Clip starts at 1800s into the source; 30s in becomes 00:30:30.
	assert.Equal(t, models.HandTimestamp{HandNumber: 1, Start: "00:30:30", End: "00:32:00"}, got[0])
	assert.Equal(t, models.HandTimestamp{HandNumber: 2, Start: "00:35:00", End: "00:37:15"}, got[1])
}

func TestAnalyzeBoundariesDropsInvalidEntries(t *testing.T) {
	objects := newFakeObjects()
	objects.data["clips/test/0.mp4"] = []byte("video")
	model := &fakeModel{responses: []string{`{"hands":[
		{"hand":1,"start":"00:10","end":"01:00"},
		{"start":"02:00","end":"03:00"},
		{"hand":"two","start":"04:00","end":"05:00"},
		{"hand":3,"start":"06:00"},
		{"hand":4,"start":"not a time","end":"08:00"}
	]}`}}

	got, err := newBoundaryAnalyzer(model, objects).AnalyzeBoundaries(context.Background(), clipAt(0), "generic")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].HandNumber)
}

func TestAnalyzeBoundariesEmptyResponseIsNotAnError(t *testing.T) {
	objects := newFakeObjects()
	objects.data["clips/test/0.mp4"] = []byte("video")
	model := &fakeModel{responses: []string{`{"hands":[]}`}}

	got, err := newBoundaryAnalyzer(model, objects).AnalyzeBoundaries(context.Background(), clipAt(0), "generic")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAnalyzeBoundariesRecoversFencedResponse(t *testing.T) {
	objects := newFakeObjects()
	objects.data["clips/test/0.mp4"] = []byte("video")
	model := &fakeModel{responses: []string{
		"```json\n{\"hands\":[{\"hand\":1,\"start\":\"00:05\",\"end\":\"00:45\"}]}\n```",
	}}

	got, err := newBoundaryAnalyzer(model, objects).AnalyzeBoundaries(context.Background(), clipAt(0), "generic")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "00:00:05", got[0].Start)
}

// shortRetryDelay shrinks the model-call backoff for the duration of one
// test so retry behavior can be exercised without real waits.
func shortRetryDelay(t *testing.T) {
	t.Helper()
	orig := modelCallDelay
	modelCallDelay = time.Millisecond
	t.Cleanup(func() { modelCallDelay = orig })
}

func TestAnalyzeBoundariesRetriesTransientFailure(t *testing.T) {
	shortRetryDelay(t)
	objects := newFakeObjects()
	objects.data["clips/test/0.mp4"] = []byte("video")
	model := &fakeModel{
		errs:      []error{errors.New("503 backend overloaded")},
		responses: []string{`{"hands":[{"hand":1,"start":"00:10","end":"01:00"}]}`},
	}

	got, err := newBoundaryAnalyzer(model, objects).AnalyzeBoundaries(context.Background(), clipAt(0), "generic")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, model.calls)
}

func TestAnalyzeBoundariesFailsAfterExhaustedRetries(t *testing.T) {
	shortRetryDelay(t)
	objects := newFakeObjects()
	objects.data["clips/test/0.mp4"] = []byte("video")
	transient := errors.New("connection reset")
	model := &fakeModel{errs: []error{transient, transient, transient}}

	_, err := newBoundaryAnalyzer(model, objects).AnalyzeBoundaries(context.Background(), clipAt(0), "generic")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 3, model.calls)
}

func TestAnalyzeBoundariesMissingClip(t *testing.T) {
	model := &fakeModel{responses: []string{`{"hands":[]}`}}
	_, err := newBoundaryAnalyzer(model, newFakeObjects()).AnalyzeBoundaries(context.Background(), clipAt(0), "generic")
	assert.Error(t, err)
	assert.Zero(t, model.calls)
}
