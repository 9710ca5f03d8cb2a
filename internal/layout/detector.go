// Package layout scores video metadata against per-broadcast-format
// keyword tables to pick the on-screen presentation layout that prompts
// should assume.
package layout

import (
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pokerlens/pokeragent-worker/internal/models"
)

// GenericLayout is the fallback when no format scores high enough.
const GenericLayout = "generic"

// Scoring weights for keyword hits.
const (
	primaryHitScore   = 50
	secondaryHitScore = 20
	channelHitScore   = 30
)

// Region is a named on-screen rectangle, normalized 0-1.
type Region struct {
	Name   string  `json:"name"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Definition describes one known broadcast format.
type Definition struct {
	Name              string
	PrimaryKeywords   []string
	SecondaryKeywords []string
	ChannelNames      []string
	Regions           []Region
}

// Known broadcast formats. Region coordinates describe where each show
// renders its graphics overlay; the prompt builder turns them into reading
// hints for the model.
var definitions = []Definition{
	{
		Name:              "triton",
		PrimaryKeywords:   []string{"triton poker", "triton series"},
		SecondaryKeywords: []string{"triton", "super high roller", "montenegro", "jeju"},
		ChannelNames:      []string{"Triton Poker"},
		Regions: []Region{
			{Name: "player_panels", X: 0.0, Y: 0.72, Width: 1.0, Height: 0.28},
			{Name: "board_cards", X: 0.33, Y: 0.58, Width: 0.34, Height: 0.12},
			{Name: "pot_display", X: 0.42, Y: 0.46, Width: 0.16, Height: 0.07},
		},
	},
	{
		Name:              "hustler",
		PrimaryKeywords:   []string{"hustler casino live", "hcl"},
		SecondaryKeywords: []string{"hustler", "max pain monday", "los angeles"},
		ChannelNames:      []string{"Hustler Casino Live"},
		Regions: []Region{
			{Name: "player_panels", X: 0.0, Y: 0.78, Width: 1.0, Height: 0.22},
			{Name: "board_cards", X: 0.3, Y: 0.62, Width: 0.4, Height: 0.12},
			{Name: "pot_display", X: 0.44, Y: 0.05, Width: 0.12, Height: 0.06},
		},
	},
	{
		Name:              "wpt",
		PrimaryKeywords:   []string{"world poker tour", "wpt"},
		SecondaryKeywords: []string{"championship", "final table", "wpt world"},
		ChannelNames:      []string{"World Poker Tour"},
		Regions: []Region{
			{Name: "player_panels", X: 0.0, Y: 0.8, Width: 1.0, Height: 0.2},
			{Name: "board_cards", X: 0.32, Y: 0.66, Width: 0.36, Height: 0.1},
			{Name: "pot_display", X: 0.05, Y: 0.08, Width: 0.14, Height: 0.06},
		},
	},
	{
		Name:              "ept",
		PrimaryKeywords:   []string{"european poker tour", "ept"},
		SecondaryKeywords: []string{"pokerstars", "monte carlo", "barcelona", "prague"},
		ChannelNames:      []string{"PokerStars"},
		Regions: []Region{
			{Name: "player_panels", X: 0.0, Y: 0.76, Width: 1.0, Height: 0.24},
			{Name: "board_cards", X: 0.34, Y: 0.6, Width: 0.32, Height: 0.11},
			{Name: "pot_display", X: 0.43, Y: 0.52, Width: 0.14, Height: 0.06},
		},
	},
	{
		Name:              GenericLayout,
		PrimaryKeywords:   []string{"poker"},
		SecondaryKeywords: []string{"cash game", "tournament", "holdem", "hold'em", "high stakes"},
		Regions: []Region{
			{Name: "player_panels", X: 0.0, Y: 0.75, Width: 1.0, Height: 0.25},
			{Name: "board_cards", X: 0.3, Y: 0.55, Width: 0.4, Height: 0.15},
			{Name: "pot_display", X: 0.4, Y: 0.45, Width: 0.2, Height: 0.08},
		},
	},
}

// Detector picks a layout from textual video metadata.
type Detector struct {
	threshold float64
	log       zerolog.Logger
}

// NewDetector creates a detector. Decisions scoring below threshold
// (confidence, not raw points) fall back to the generic layout.
func NewDetector(threshold float64, log zerolog.Logger) *Detector {
	return &Detector{
		threshold: threshold,
		log:       log.With().Str("component", "layout-detector").Logger(),
	}
}

// Lookup returns the definition for a layout name, or the generic one.
func Lookup(name string) Definition {
	for _, def := range definitions {
		if def.Name == name {
			return def
		}
	}
	return Lookup(GenericLayout)
}

// Detect scores every known format against the combined metadata text and
// channel name, case-insensitively, and picks the highest scorer.
// Confidence is min(score/100, 1). Below-threshold or empty metadata falls
// back to the generic layout at confidence 0.5.
func (d *Detector) Detect(metadataText, channelName string) models.LayoutDecision {
	haystack := strings.ToLower(metadataText + " " + channelName)
	if strings.TrimSpace(haystack) == "" {
		return d.fallback("empty metadata")
	}

	var best models.LayoutDecision
	for _, def := range definitions {
		score := 0
		var matched []string
		for _, kw := range def.PrimaryKeywords {
			if strings.Contains(haystack, strings.ToLower(kw)) {
				score += primaryHitScore
				matched = append(matched, kw)
			}
		}
		for _, kw := range def.SecondaryKeywords {
			if strings.Contains(haystack, strings.ToLower(kw)) {
				score += secondaryHitScore
				matched = append(matched, kw)
			}
		}
		for _, ch := range def.ChannelNames {
			if channelName != "" && strings.Contains(strings.ToLower(channelName), strings.ToLower(ch)) {
				score += channelHitScore
				matched = append(matched, ch)
			}
		}

		confidence := float64(score) / 100
		if confidence > 1 {
			confidence = 1
		}
		if confidence > best.Confidence {
			sort.Strings(matched)
			best = models.LayoutDecision{
				Layout:          def.Name,
				Confidence:      confidence,
				MatchedKeywords: matched,
				Source:          models.LayoutSourceMetadata,
			}
		}
	}

	if best.Confidence < d.threshold {
		return d.fallback("below threshold")
	}

	d.log.Debug().Str("layout", best.Layout).Float64("confidence", best.Confidence).Msg("layout detected")
	return best
}

func (d *Detector) fallback(reason string) models.LayoutDecision {
	d.log.Debug().Str("reason", reason).Msg("falling back to generic layout")
	return models.LayoutDecision{
		Layout:     GenericLayout,
		Confidence: 0.5,
		Source:     models.LayoutSourceFallback,
	}
}
