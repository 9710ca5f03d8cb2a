package analyzer

import (
	"fmt"
	"math"
	"strings"

	"github.com/pokerlens/pokeragent-worker/internal/models"
)

// Severity of a consistency error. Critical and high trigger a re-prompt.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Error types reported by CheckHand.
const (
	ErrTypeDuplicateCard  = "duplicate_card"
	ErrTypePotContinuity  = "pot_continuity"
	ErrTypeStackContinuity = "stack_continuity"
	ErrTypeActionOrder    = "action_order"
	ErrTypeInvalidCard    = "invalid_card"
)

// HandError is one structural inconsistency in an extracted hand.
type HandError struct {
	Type     string
	Severity Severity
	Message  string
}

// Numeric comparisons on chip amounts tolerate rounding noise from the
// on-screen graphics.
const amountTolerance = 0.1

var streetOrder = []string{"preflop", "flop", "turn", "river"}

// illegalFollowups maps an action to the actions the same player may not
// take afterwards in the same hand.
var illegalFollowups = map[string][]string{
	"fold":   {"fold", "check", "call", "bet", "raise", "all-in"},
	"all-in": {"check", "call", "bet", "raise", "all-in"},
}

// CheckHand runs all structural consistency checks over a fully-extracted
// hand and returns every violation found.
func CheckHand(rec *models.HandRecord) []HandError {
	var errs []HandError
	errs = append(errs, checkCardTokens(rec)...)
	errs = append(errs, checkDuplicateCards(rec)...)
	errs = append(errs, checkPotContinuity(rec)...)
	errs = append(errs, checkStackContinuity(rec)...)
	errs = append(errs, checkActionOrder(rec)...)
	return errs
}

// ValidCard reports whether a card token has a known rank and suit.
func ValidCard(card string) bool {
	if len(card) != 2 {
		return false
	}
	return strings.ContainsRune("23456789TJQKA", rune(card[0])) &&
		strings.ContainsRune("shdc", rune(card[1]))
}

func allCards(rec *models.HandRecord) []string {
	var cards []string
	for _, p := range rec.Players {
		cards = append(cards, p.HoleCards...)
	}
	cards = append(cards, rec.Board.Flop...)
	if rec.Board.Turn != "" {
		cards = append(cards, rec.Board.Turn)
	}
	if rec.Board.River != "" {
		cards = append(cards, rec.Board.River)
	}
	return cards
}

func checkCardTokens(rec *models.HandRecord) []HandError {
	var errs []HandError
	for _, card := range allCards(rec) {
		if !ValidCard(card) {
			errs = append(errs, HandError{
				Type:     ErrTypeInvalidCard,
				Severity: SeverityMedium,
				Message:  fmt.Sprintf("card token %q is not a valid rank/suit pair", card),
			})
		}
	}
	return errs
}

func checkDuplicateCards(rec *models.HandRecord) []HandError {
	seen := make(map[string]bool)
	var errs []HandError
	for _, card := range allCards(rec) {
		if !ValidCard(card) {
			continue
		}
		if seen[card] {
			errs = append(errs, HandError{
				Type:     ErrTypeDuplicateCard,
				Severity: SeverityCritical,
				Message:  fmt.Sprintf("card %s appears more than once across hole and board cards", card),
			})
		}
		seen[card] = true
	}
	return errs
}

// checkPotContinuity verifies each street's starting pot equals the prior
// street's starting pot plus the prior street's total bets. Streets without
// a recorded pot are skipped.
func checkPotContinuity(rec *models.HandRecord) []HandError {
	type streetInfo struct {
		pot  float64
		bets float64
		seen bool
	}
	streets := make(map[string]*streetInfo)
	for _, s := range streetOrder {
		streets[s] = &streetInfo{}
	}

	for _, act := range rec.Actions {
		info, ok := streets[act.Street]
		if !ok {
			continue
		}
		if !info.seen && act.Pot > 0 {
			info.pot = act.Pot
			info.seen = true
		}
		info.bets += act.Amount
	}

	var errs []HandError
	for i := 1; i < len(streetOrder); i++ {
		prev := streets[streetOrder[i-1]]
		cur := streets[streetOrder[i]]
		if !prev.seen || !cur.seen {
			continue
		}
		expected := prev.pot + prev.bets
		if math.Abs(cur.pot-expected) > amountTolerance {
			errs = append(errs, HandError{
				Type:     ErrTypePotContinuity,
				Severity: SeverityHigh,
				Message: fmt.Sprintf("%s starts with pot %.2f but %s pot %.2f plus bets %.2f gives %.2f",
					streetOrder[i], cur.pot, streetOrder[i-1], prev.pot, prev.bets, expected),
			})
		}
	}
	return errs
}

// checkStackContinuity verifies stack_end = stack_start - all bets + share
// of the pot if the player won. Players without a recorded ending stack are
// skipped.
func checkStackContinuity(rec *models.HandRecord) []HandError {
	invested := make(map[string]float64)
	for _, act := range rec.Actions {
		invested[act.Player] += act.Amount
	}

	winners := make(map[string]bool, len(rec.Winners))
	for _, w := range rec.Winners {
		winners[w] = true
	}
	var share float64
	if len(rec.Winners) > 0 {
		share = rec.PotSize / float64(len(rec.Winners))
	}

	var errs []HandError
	for _, p := range rec.Players {
		if p.StackEnd == 0 {
			continue
		}
		expected := p.Stack - invested[p.Name]
		if winners[p.Name] {
			expected += share
		}
		if math.Abs(p.StackEnd-expected) > amountTolerance {
			errs = append(errs, HandError{
				Type:     ErrTypeStackContinuity,
				Severity: SeverityHigh,
				Message: fmt.Sprintf("player %s ends with stack %.2f, expected %.2f from start %.2f",
					p.Name, p.StackEnd, expected, p.Stack),
			})
		}
	}
	return errs
}

func checkActionOrder(rec *models.HandRecord) []HandError {
	lastAction := make(map[string]string)
	var errs []HandError
	for _, act := range rec.Actions {
		prev, ok := lastAction[act.Player]
		if ok {
			for _, banned := range illegalFollowups[prev] {
				if act.Action == banned {
					errs = append(errs, HandError{
						Type:     ErrTypeActionOrder,
						Severity: SeverityHigh,
						Message: fmt.Sprintf("player %s cannot %s after %s",
							act.Player, act.Action, prev),
					})
					break
				}
			}
		}
		lastAction[act.Player] = act.Action
	}
	return errs
}

// HasBlocking reports whether any error is severe enough to force a retry.
func HasBlocking(errs []HandError) bool {
	for _, e := range errs {
		if e.Severity == SeverityCritical || e.Severity == SeverityHigh {
			return true
		}
	}
	return false
}
