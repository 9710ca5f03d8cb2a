// Package analyzer implements the two model-driven analysis phases and the
// validation/normalization that sits behind them.
package analyzer

import (
	"strings"

	"github.com/pokerlens/pokeragent-worker/internal/models"
)

// Hand quality labels, weakest to strongest.
const (
	QualityRoutine     = "routine"
	QualityInteresting = "interesting"
	QualityHighlight   = "highlight"
	QualityEpic        = "epic"
)

// tagWeights is the closed semantic tag vocabulary with the per-tag
// highlight weight each contributes.
var tagWeights = map[string]int{
	"bluff":     70,
	"hero-call": 75,
	"bad-beat":  85,
	"cooler":    80,
	"all-in":    60,
	"big-pot":   65,
	"suckout":   75,
	"slowroll":  70,
	"soul-read": 90,
	"tilt":      55,
}

var validEmotions = map[string]bool{
	"neutral": true, "confident": true, "nervous": true,
	"frustrated": true, "tilted": true,
}

var validStyles = map[string]bool{
	"balanced": true, "aggressive": true, "passive": true,
	"loose": true, "tight": true,
}

var validQualities = map[string]bool{
	QualityRoutine: true, QualityInteresting: true,
	QualityHighlight: true, QualityEpic: true,
}

// NormalizeTags filters raw tags to the closed vocabulary and de-duplicates
// them preserving first-seen order.
func NormalizeTags(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		tag := strings.ToLower(strings.TrimSpace(t))
		if _, ok := tagWeights[tag]; !ok || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

// NormalizeAnalysis clamps confidence to [0,1] (0.5 when the model left it
// at zero), validates per-player reads against the closed enumerations, and
// derives the final hand quality.
func NormalizeAnalysis(tags []string, raw models.AIAnalysis) models.AIAnalysis {
	out := raw

	switch {
	case out.Confidence == 0:
		out.Confidence = 0.5
	case out.Confidence < 0:
		out.Confidence = 0
	case out.Confidence > 1:
		out.Confidence = 1
	}

	for i := range out.PlayerReads {
		if !validEmotions[out.PlayerReads[i].EmotionalState] {
			out.PlayerReads[i].EmotionalState = "neutral"
		}
		if !validStyles[out.PlayerReads[i].PlayStyle] {
			out.PlayerReads[i].PlayStyle = "balanced"
		}
	}

	out.HandQuality = DeriveHandQuality(tags, out.HandQuality)
	return out
}

// HighlightScore summarizes how notable a hand is from its tags: the
// highest tag weight plus a small bonus for tag variety, capped at 100.
// No valid tags means zero.
func HighlightScore(tags []string) int {
	maxWeight := 0
	count := 0
	for _, tag := range tags {
		w, ok := tagWeights[tag]
		if !ok {
			continue
		}
		count++
		if w > maxWeight {
			maxWeight = w
		}
	}
	if count == 0 {
		return 0
	}

	bonus := count - 1
	if bonus > 3 {
		bonus = 3
	}
	score := maxWeight + 5*bonus
	if score > 100 {
		score = 100
	}
	return score
}

// DeriveHandQuality resolves the final quality label. A non-routine quality
// supplied by the model wins outright; otherwise the label comes from the
// highlight score.
func DeriveHandQuality(tags []string, aiQuality string) string {
	if validQualities[aiQuality] && aiQuality != QualityRoutine {
		return aiQuality
	}

	score := HighlightScore(tags)
	switch {
	case score >= 80:
		return QualityEpic
	case score >= 60:
		return QualityHighlight
	case score >= 40:
		return QualityInteresting
	default:
		return QualityRoutine
	}
}
