package analyzer

import (
	"fmt"
	"strings"

	"github.com/pokerlens/pokeragent-worker/internal/models"
)

// Confidence a hand must reach to be accepted without blocking errors,
// rising per iteration so later attempts are held to a higher bar.
var iterationThresholds = []float64{0.85, 0.90, 0.95}

// maxIterations bounds the re-prompt loop.
const maxIterations = 3

// focusAreas maps an error type to the instruction emphasized on retry.
var focusAreas = map[string]string{
	ErrTypeDuplicateCard:   "Re-read every card carefully; each physical card can appear only once across hole cards and the board.",
	ErrTypePotContinuity:   "Track the pot street by street; each street's starting pot must equal the prior street's pot plus all bets made on it.",
	ErrTypeStackContinuity: "Re-read each player's stack at the start and end of the hand and account for every chip they put in or won.",
	ErrTypeActionOrder:     "Follow the action sequence strictly; a player who folded or went all-in takes no further actions.",
	ErrTypeInvalidCard:     "Card tokens must be a rank (2-9, T, J, Q, K, A) followed by a suit (s, h, d, c).",
}

// iterationEmphasis sharpens the tone as attempts run out.
var iterationEmphasis = []string{
	"Re-examine the areas above before answering.",
	"This is the second attempt; the same mistakes were made before. Slow down and verify each flagged area frame by frame.",
	"This is the final attempt. Prioritize correctness of the flagged areas over completeness elsewhere.",
}

// OptimizePrompt appends a correction section to the base prompt: one focus
// area per distinct error type, an explicit line per error, and emphasis
// matched to the iteration number (0-based).
func OptimizePrompt(basePrompt string, errs []HandError, iteration int) string {
	if len(errs) == 0 {
		return basePrompt
	}

	var sb strings.Builder
	sb.WriteString(basePrompt)
	sb.WriteString("\n\nThe previous extraction of this hand had problems.\n")

	sb.WriteString("\nFocus areas:\n")
	seen := make(map[string]bool)
	for _, e := range errs {
		if seen[e.Type] {
			continue
		}
		seen[e.Type] = true
		if focus, ok := focusAreas[e.Type]; ok {
			fmt.Fprintf(&sb, "- %s\n", focus)
		}
	}

	sb.WriteString("\nSpecific problems to correct:\n")
	for _, e := range errs {
		fmt.Fprintf(&sb, "- [%s] %s\n", e.Severity, e.Message)
	}

	idx := iteration
	if idx < 0 {
		idx = 0
	}
	if idx >= len(iterationEmphasis) {
		idx = len(iterationEmphasis) - 1
	}
	sb.WriteString("\n" + iterationEmphasis[idx] + "\n")

	return sb.String()
}

// ShouldRetry decides whether another extraction attempt is worth making:
// only while iterations remain, and only if confidence sits below the
// iteration's threshold or a blocking error is present.
func ShouldRetry(rec *models.HandRecord, errs []HandError, iteration int) bool {
	if iteration >= maxIterations-1 {
		return false
	}

	threshold := iterationThresholds[len(iterationThresholds)-1]
	if iteration < len(iterationThresholds) {
		threshold = iterationThresholds[iteration]
	}

	return rec.Analysis.Confidence < threshold || HasBlocking(errs)
}
