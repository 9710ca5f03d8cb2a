package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/pokerlens/pokeragent-worker/internal/models"
)

// fakeModel replays canned responses, recording the prompts it saw.
type fakeModel struct {
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (f *fakeModel) GenerateContent(_ context.Context, _ []byte, _ string, prompt string) (string, error) {
	idx := f.calls
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if idx < len(f.errs) && f.errs[idx] != nil {
		return "", f.errs[idx]
	}
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

// fakeObjects is an in-memory object store.
type fakeObjects struct {
	data    map[string][]byte
	deleted []string
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{data: map[string][]byte{}}
}

func (f *fakeObjects) SignedReadURL(_ context.Context, objectPath string, _ time.Duration) (string, error) {
	return "https://signed.example/" + objectPath, nil
}

func (f *fakeObjects) UploadFile(_ context.Context, _ string, objectPath string) error {
	f.data[objectPath] = []byte("clip")
	return nil
}

func (f *fakeObjects) Download(_ context.Context, objectPath string) ([]byte, error) {
	data, ok := f.data[objectPath]
	if !ok {
		return nil, fmt.Errorf("no object %s", objectPath)
	}
	return data, nil
}

func (f *fakeObjects) Delete(_ context.Context, objectPath string) error {
	delete(f.data, objectPath)
	f.deleted = append(f.deleted, objectPath)
	return nil
}

// fakeClips is a ClipSource double backed by fakeObjects.
type fakeClips struct {
	objects    *fakeObjects
	extractErr error
	cleaned    []models.ExtractedClip
}

func (f *fakeClips) Extract(ctx context.Context, _ string, ranges []models.TimeRange, ownerKey string, maxRangeSeconds float64) ([]models.ExtractedClip, error) {
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	var clips []models.ExtractedClip
	for i, r := range ranges {
		path := fmt.Sprintf("clips/%s/%d.mp4", ownerKey, i)
		f.objects.data[path] = []byte("hand clip")
		clips = append(clips, models.ExtractedClip{ObjectPath: path, LocalSize: 9, Range: r})
	}
	return clips, nil
}

func (f *fakeClips) Cleanup(ctx context.Context, clips []models.ExtractedClip) {
	f.cleaned = append(f.cleaned, clips...)
	for _, c := range clips {
		_ = f.objects.Delete(ctx, c.ObjectPath)
	}
}
