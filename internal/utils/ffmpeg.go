package utils

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// FFmpegHelper wraps the ffmpeg/ffprobe binaries for clip operations.
type FFmpegHelper struct {
	ffmpegPath  string
	ffprobePath string
	tempDir     string
}

// NewFFmpegHelper verifies the ffmpeg installation and prepares the scratch
// directory.
func NewFFmpegHelper(tempDir string) (*FFmpegHelper, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	return &FFmpegHelper{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		tempDir:     tempDir,
	}, nil
}

// TempDir returns the base scratch directory.
func (h *FFmpegHelper) TempDir() string {
	return h.tempDir
}

// ScratchDir creates and returns a scratch directory namespaced by ownerKey
// so concurrent tasks never collide on local files.
func (h *FFmpegHelper) ScratchDir(ownerKey string) (string, error) {
	dir := filepath.Join(h.tempDir, ownerKey)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create scratch directory: %w", err)
	}
	return dir, nil
}

// CutClip copies the [start, end] range of the input into outPath without
// re-encoding. The input may be a local path or a signed remote URL; ffmpeg
// reads byte ranges over HTTP on its own.
func (h *FFmpegHelper) CutClip(ctx context.Context, input string, start, end float64, outPath string) error {
	cmd := exec.CommandContext(ctx, h.ffmpegPath,
		"-y",
		"-ss", fmt.Sprintf("%.2f", start),
		"-to", fmt.Sprintf("%.2f", end),
		"-i", input,
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		outPath,
	)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg clip cut failed: %w\n%s", err, tail(string(out), 512))
	}
	return nil
}

// GetVideoDuration returns the duration of a video in seconds.
func (h *FFmpegHelper) GetVideoDuration(videoPath string) (float64, error) {
	cmd := exec.Command(h.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("failed to get duration: %w", err)
	}

	durationStr := strings.TrimSpace(string(output))
	duration, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}

	return duration, nil
}

// ValidateVideo checks that a file is a readable video.
func (h *FFmpegHelper) ValidateVideo(videoPath string) error {
	cmd := exec.Command(h.ffprobePath, "-v", "error", videoPath)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("invalid video file: %w", err)
	}
	return nil
}

// Cleanup removes local files or directories.
func (h *FFmpegHelper) Cleanup(paths ...string) error {
	for _, path := range paths {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to cleanup %s: %w", path, err)
		}
	}
	return nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
