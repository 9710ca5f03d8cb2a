package layout

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/pokerlens/pokeragent-worker/internal/models"
)

func newDetector() *Detector {
	return NewDetector(0.7, zerolog.Nop())
}

func TestDetectPrimaryAndChannel(t *testing.T) {
	got := newDetector().Detect(
		"Triton Poker Series Montenegro 2025 - Super High Roller Day 2",
		"Triton Poker",
	)
	assert.Equal(t, "triton", got.Layout)
	assert.Equal(t, models.LayoutSourceMetadata, got.Source)
	// primary 50 + "triton" 20 + "super high roller" 20 + "montenegro" 20 + channel 30 caps at 1.0
	assert.Equal(t, 1.0, got.Confidence)
}

func TestDetectConfidenceIsScoreOver100(t *testing.T) {
	// One primary (50) plus one secondary (20) = 70 points.
	got := newDetector().Detect("hustler casino live stream", "")
	assert.Equal(t, "hustler", got.Layout)
	assert.InDelta(t, 0.7, got.Confidence, 1e-9)
}

func TestDetectNoKeywordsNeverSelects(t *testing.T) {
	got := newDetector().Detect("cooking stream: pasta night with friends", "Kitchen Channel")
	assert.NotEqual(t, "triton", got.Layout)
	assert.NotEqual(t, "hustler", got.Layout)
	assert.Equal(t, GenericLayout, got.Layout)
	assert.Equal(t, models.LayoutSourceFallback, got.Source)
	assert.Equal(t, 0.5, got.Confidence)
}

func TestDetectBelowThresholdFallsBack(t *testing.T) {
	// Secondary-only hits score 20, confidence 0.2 < 0.7.
	got := newDetector().Detect("a pokerstars recap compilation", "")
	assert.Equal(t, GenericLayout, got.Layout)
	assert.Equal(t, models.LayoutSourceFallback, got.Source)
	assert.Equal(t, 0.5, got.Confidence)
}

func TestDetectEmptyMetadata(t *testing.T) {
	got := newDetector().Detect("", "")
	assert.Equal(t, GenericLayout, got.Layout)
	assert.Equal(t, models.LayoutSourceFallback, got.Source)
}

func TestLookupUnknownReturnsGeneric(t *testing.T) {
	def := Lookup("does-not-exist")
	assert.Equal(t, GenericLayout, def.Name)
	assert.NotEmpty(t, def.Regions)
}
