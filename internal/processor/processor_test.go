package processor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pokerlens/pokeragent-worker/internal/models"
)

type fakeClips struct {
	clips      []models.ExtractedClip
	extractErr error
	cleaned    []models.ExtractedClip
	ownerKeys  []string
}

func (f *fakeClips) Extract(_ context.Context, _ string, _ []models.TimeRange, ownerKey string, _ float64) ([]models.ExtractedClip, error) {
	f.ownerKeys = append(f.ownerKeys, ownerKey)
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	return f.clips, nil
}

func (f *fakeClips) Cleanup(_ context.Context, clips []models.ExtractedClip) {
	f.cleaned = append(f.cleaned, clips...)
}

type fakeBoundaries struct {
	perClip map[string][]models.HandTimestamp
	err     error
}

func (f *fakeBoundaries) AnalyzeBoundaries(_ context.Context, clip models.ExtractedClip, _ string) ([]models.HandTimestamp, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.perClip[clip.ObjectPath], nil
}

type notifierCall struct {
	op     string
	index  int
	hands  int
	reason string
}

type fakeNotifier struct {
	calls []notifierCall
}

func (f *fakeNotifier) OnSegmentStart(_ context.Context, _ string, idx int) (*models.AnalysisJob, error) {
	f.calls = append(f.calls, notifierCall{op: "start", index: idx})
	return &models.AnalysisJob{}, nil
}

func (f *fakeNotifier) OnSegmentComplete(_ context.Context, _ string, idx, hands int) (*models.AnalysisJob, error) {
	f.calls = append(f.calls, notifierCall{op: "complete", index: idx, hands: hands})
	return &models.AnalysisJob{}, nil
}

func (f *fakeNotifier) OnSegmentFailed(_ context.Context, _ string, idx int, cause string) (*models.AnalysisJob, error) {
	f.calls = append(f.calls, notifierCall{op: "failed", index: idx, reason: cause})
	return &models.AnalysisJob{}, nil
}

type fakeCallback struct {
	posted []models.SegmentCallback
	err    error
}

func (f *fakeCallback) PostSegmentResult(_ context.Context, cb models.SegmentCallback) error {
	if f.err != nil {
		return f.err
	}
	f.posted = append(f.posted, cb)
	return nil
}

func segmentPayload() models.SegmentTaskPayload {
	return models.SegmentTaskPayload{
		JobID:        "job-1",
		StreamID:     "stream-1",
		SegmentIndex: 2,
		SourceRef:    "videos/v.mp4",
		Range:        models.TimeRange{Start: 0, End: 3600},
		Platform:     "triton",
	}
}

func TestSegmentProcessorAggregatesAcrossClips(t *testing.T) {
	clips := &fakeClips{clips: []models.ExtractedClip{
		{ObjectPath: "clips/a", Range: models.TimeRange{Start: 0, End: 1800}},
		{ObjectPath: "clips/b", Range: models.TimeRange{Start: 1800, End: 3600}},
	}}
	boundaries := &fakeBoundaries{perClip: map[string][]models.HandTimestamp{
		"clips/a": {{HandNumber: 1, Start: "00:01:00", End: "00:05:00"}, {HandNumber: 2, Start: "00:06:00", End: "00:09:00"}},
		"clips/b": {{HandNumber: 3, Start: "00:31:00", End: "00:34:00"}},
	}}
	notifier := &fakeNotifier{}
	callback := &fakeCallback{}

	p := NewSegmentProcessor(clips, boundaries, notifier, callback, 1800, zerolog.Nop())
	err := p.Process(context.Background(), segmentPayload())
	require.NoError(t, err)

	require.Len(t, notifier.calls, 2)
	assert.Equal(t, notifierCall{op: "start", index: 2}, notifier.calls[0])
	assert.Equal(t, notifierCall{op: "complete", index: 2, hands: 3}, notifier.calls[1])

	require.Len(t, callback.posted, 1)
	assert.Equal(t, "job-1", callback.posted[0].JobID)
	assert.Len(t, callback.posted[0].Hands, 3)

	assert.Len(t, clips.cleaned, 2)
	require.Len(t, clips.ownerKeys, 1)
	assert.Equal(t, "job-job-1-seg-2", clips.ownerKeys[0])
}

func TestSegmentProcessorExtractionFailure(t *testing.T) {
	clips := &fakeClips{extractErr: errors.New("ffmpeg exploded")}
	notifier := &fakeNotifier{}

	p := NewSegmentProcessor(clips, &fakeBoundaries{}, notifier, nil, 1800, zerolog.Nop())
	err := p.Process(context.Background(), segmentPayload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffmpeg exploded")

	require.Len(t, notifier.calls, 2)
	assert.Equal(t, "failed", notifier.calls[1].op)
	assert.Contains(t, notifier.calls[1].reason, "ffmpeg exploded")
}

func TestSegmentProcessorCallbackFailureIsHard(t *testing.T) {
	clips := &fakeClips{clips: []models.ExtractedClip{{ObjectPath: "clips/a"}}}
	notifier := &fakeNotifier{}
	callback := &fakeCallback{err: errors.New("callback endpoint returned 500")}

	p := NewSegmentProcessor(clips, &fakeBoundaries{}, notifier, callback, 1800, zerolog.Nop())
	err := p.Process(context.Background(), segmentPayload())
	require.Error(t, err)

	assert.Equal(t, "failed", notifier.calls[len(notifier.calls)-1].op)
	assert.Len(t, clips.cleaned, 1)
}

func TestSegmentProcessorNoCallbackConfigured(t *testing.T) {
	clips := &fakeClips{clips: []models.ExtractedClip{{ObjectPath: "clips/a"}}}
	notifier := &fakeNotifier{}

	p := NewSegmentProcessor(clips, &fakeBoundaries{}, notifier, nil, 1800, zerolog.Nop())
	require.NoError(t, p.Process(context.Background(), segmentPayload()))
	assert.Equal(t, "complete", notifier.calls[1].op)
}

type fakeHandSource struct {
	rec *models.HandRecord
	err error
}

func (f *fakeHandSource) AnalyzeHand(_ context.Context, _ string, _ models.HandTimestamp, _ string) (*models.HandRecord, error) {
	return f.rec, f.err
}

type fakeRecorder struct {
	saved []*models.HandRecord
	err   error
}

func (f *fakeRecorder) SaveHandRecord(_ context.Context, rec *models.HandRecord) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, rec)
	return nil
}

type fakeHandNotifier struct {
	completions int
	failures    []string
}

func (f *fakeHandNotifier) OnHandComplete(_ context.Context, _ string) (*models.AnalysisJob, error) {
	f.completions++
	return &models.AnalysisJob{}, nil
}

func (f *fakeHandNotifier) OnHandFailed(_ context.Context, _ string, handNumber int, cause string) (*models.AnalysisJob, error) {
	f.failures = append(f.failures, fmt.Sprintf("hand %d: %s", handNumber, cause))
	return &models.AnalysisJob{}, nil
}

func handPayload() models.HandTaskPayload {
	return models.HandTaskPayload{
		JobID:     "job-1",
		StreamID:  "stream-1",
		SourceRef: "videos/v.mp4",
		Hand:      models.HandTimestamp{HandNumber: 7, Start: "00:10:00", End: "00:13:00"},
		Platform:  "hustler",
	}
}

func TestHandProcessorPersistsAndNotifies(t *testing.T) {
	source := &fakeHandSource{rec: &models.HandRecord{ID: "rec-1", HandNumber: 7}}
	recorder := &fakeRecorder{}
	notifier := &fakeHandNotifier{}

	p := NewHandProcessor(source, recorder, notifier, zerolog.Nop())
	require.NoError(t, p.Process(context.Background(), handPayload()))

	require.Len(t, recorder.saved, 1)
	assert.Equal(t, "job-1", recorder.saved[0].JobID)
	assert.Equal(t, "stream-1", recorder.saved[0].StreamID)
	assert.Equal(t, 1, notifier.completions)
}

func TestHandProcessorAnalysisFailureIsTerminalAndRecorded(t *testing.T) {
	source := &fakeHandSource{err: errors.New("model gave up")}
	recorder := &fakeRecorder{}
	notifier := &fakeHandNotifier{}

	p := NewHandProcessor(source, recorder, notifier, zerolog.Nop())
	err := p.Process(context.Background(), handPayload())

	var term *TerminalError
	require.ErrorAs(t, err, &term)
	assert.Contains(t, term.Error(), "model gave up")

	assert.Empty(t, recorder.saved)
	assert.Zero(t, notifier.completions)
	require.Len(t, notifier.failures, 1)
	assert.Equal(t, "hand 7: model gave up", notifier.failures[0])
}

func TestHandProcessorPersistFailureReturnsError(t *testing.T) {
	source := &fakeHandSource{rec: &models.HandRecord{ID: "rec-1"}}
	recorder := &fakeRecorder{err: errors.New("insert failed")}
	notifier := &fakeHandNotifier{}

	p := NewHandProcessor(source, recorder, notifier, zerolog.Nop())
	err := p.Process(context.Background(), handPayload())
	require.Error(t, err)
	assert.Zero(t, notifier.completions)
}
