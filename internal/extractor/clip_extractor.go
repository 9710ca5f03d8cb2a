// Package extractor produces short uploaded video clips from ranges of a
// remote source video, using codec-copy cuts so no re-encode happens.
package extractor

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pokerlens/pokeragent-worker/internal/models"
	"github.com/pokerlens/pokeragent-worker/internal/storage"
	"github.com/pokerlens/pokeragent-worker/internal/utils"
)

// ClipExtractor cuts ranges of a source video into uploaded clips.
type ClipExtractor struct {
	ffmpeg       *utils.FFmpegHelper
	objects      storage.ObjectStore
	signedURLTTL time.Duration
	log          zerolog.Logger
}

// NewClipExtractor wires the extractor with its collaborators.
func NewClipExtractor(ffmpeg *utils.FFmpegHelper, objects storage.ObjectStore, signedURLTTL time.Duration, log zerolog.Logger) *ClipExtractor {
	return &ClipExtractor{
		ffmpeg:       ffmpeg,
		objects:      objects,
		signedURLTTL: signedURLTTL,
		log:          log.With().Str("component", "clip-extractor").Logger(),
	}
}

// SplitRange cuts a range into ceil(duration/max) contiguous sub-ranges
// covering it exactly. The last piece is shorter when the duration is not
// a multiple of max. Ranges at or under max come back unchanged.
func SplitRange(r models.TimeRange, maxRangeSeconds float64) []models.TimeRange {
	duration := r.Duration()
	if duration <= maxRangeSeconds {
		return []models.TimeRange{r}
	}

	pieces := int(math.Ceil(duration / maxRangeSeconds))
	out := make([]models.TimeRange, 0, pieces)
	for i := 0; i < pieces; i++ {
		start := r.Start + float64(i)*maxRangeSeconds
		end := start + maxRangeSeconds
		if end > r.End {
			end = r.End
		}
		out = append(out, models.TimeRange{Start: start, End: end})
	}
	return out
}

// Extract produces one uploaded clip per (split) sub-range. The local
// scratch file lives under a directory namespaced by ownerKey and is
// removed immediately after its upload attempt, success or not. An upload
// failure aborts that sub-range with an error; clips already produced stay
// valid and are returned to the caller for cleanup.
func (e *ClipExtractor) Extract(ctx context.Context, sourceRef string, ranges []models.TimeRange, ownerKey string, maxRangeSeconds float64) ([]models.ExtractedClip, error) {
	scratchDir, err := e.ffmpeg.ScratchDir(ownerKey)
	if err != nil {
		return nil, err
	}
	defer e.ffmpeg.Cleanup(scratchDir)

	var subRanges []models.TimeRange
	for _, r := range ranges {
		if !r.Valid() {
			return nil, fmt.Errorf("invalid range [%.2f, %.2f]", r.Start, r.End)
		}
		subRanges = append(subRanges, SplitRange(r, maxRangeSeconds)...)
	}

	var clips []models.ExtractedClip
	for i, sub := range subRanges {
		clip, err := e.extractOne(ctx, sourceRef, sub, scratchDir, ownerKey, i)
		if err != nil {
			return clips, fmt.Errorf("sub-range %d [%.2f, %.2f]: %w", i, sub.Start, sub.End, err)
		}
		clips = append(clips, clip)
	}

	e.log.Debug().Str("sourceRef", sourceRef).Int("clips", len(clips)).Msg("extraction complete")
	return clips, nil
}

func (e *ClipExtractor) extractOne(ctx context.Context, sourceRef string, sub models.TimeRange, scratchDir, ownerKey string, index int) (models.ExtractedClip, error) {
	readURL, err := e.objects.SignedReadURL(ctx, sourceRef, e.signedURLTTL)
	if err != nil {
		return models.ExtractedClip{}, fmt.Errorf("failed to sign source URL: %w", err)
	}

	localPath := filepath.Join(scratchDir, fmt.Sprintf("clip_%03d_%s.mp4", index, uuid.NewString()[:8]))
	// Local file goes away no matter how the upload ends.
	defer os.Remove(localPath)

	if err := e.ffmpeg.CutClip(ctx, readURL, sub.Start, sub.End, localPath); err != nil {
		return models.ExtractedClip{}, err
	}

	// A codec-copy cut near the end of a stream can produce a broken file
	// without ffmpeg reporting failure.
	if err := e.ffmpeg.ValidateVideo(localPath); err != nil {
		return models.ExtractedClip{}, fmt.Errorf("cut produced unreadable clip: %w", err)
	}
	if dur, err := e.ffmpeg.GetVideoDuration(localPath); err == nil {
		e.log.Debug().Float64("requested", sub.Duration()).Float64("actual", dur).Msg("clip cut")
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return models.ExtractedClip{}, fmt.Errorf("clip file missing after cut: %w", err)
	}

	objectPath := fmt.Sprintf("clips/%s/clip_%03d_%d_%d.mp4", ownerKey, index, int(sub.Start), int(sub.End))
	if err := e.objects.UploadFile(ctx, localPath, objectPath); err != nil {
		return models.ExtractedClip{}, fmt.Errorf("failed to upload clip: %w", err)
	}

	return models.ExtractedClip{
		ObjectPath: objectPath,
		LocalSize:  info.Size(),
		Range:      sub,
	}, nil
}

// Cleanup deletes the shared-storage objects behind the clips. Best-effort:
// a failed delete is logged and swallowed, never fatal to the caller.
func (e *ClipExtractor) Cleanup(ctx context.Context, clips []models.ExtractedClip) {
	for _, clip := range clips {
		if err := e.objects.Delete(ctx, clip.ObjectPath); err != nil {
			e.log.Warn().Err(err).Str("objectPath", clip.ObjectPath).Msg("clip cleanup failed")
		}
	}
}
