// internal/game/rules.go
package game

import (
	"fmt"

	"github.com/jklem/uno/internal/models"
)

// UnoPenaltyCards is drawn by a player who calls UNO with more than one card.
const UnoPenaltyCards = 2

// Draw4PenaltyCards is both the wild-draw4 penalty and the stake on either
// side of a challenge.
const Draw4PenaltyCards = 4

// Phase is the per-room game lifecycle state.
type Phase string

const (
	PhaseWaiting Phase = "waiting"
	PhasePlaying Phase = "playing"
	PhasePaused  Phase = "paused"
	PhaseEnded   Phase = "ended"
)

// Effect describes what resolving a played card does to the game state.
type Effect struct {
	// SkipNext makes the next player lose their turn.
	SkipNext bool
	// FlipDirection reverses the turn order.
	FlipDirection bool
	// DrawCount is dealt to the next player before they are skipped.
	DrawCount int
	// NeedsColor requires the player to choose the new active color.
	NeedsColor bool
	// Challengeable marks the play as open to a wild-draw4 challenge.
	Challengeable bool
}

// EffectOf maps a card value to its effect. Number cards have none.
func EffectOf(v models.Value) Effect {
	switch v {
	case models.ValueSkip:
		return Effect{SkipNext: true}
	case models.ValueReverse:
		return Effect{FlipDirection: true}
	case models.ValueDraw2:
		return Effect{SkipNext: true, DrawCount: 2}
	case models.ValueWild:
		return Effect{NeedsColor: true}
	case models.ValueWildDraw4:
		return Effect{SkipNext: true, DrawCount: Draw4PenaltyCards, NeedsColor: true, Challengeable: true}
	default:
		return Effect{}
	}
}

// IsPlayable reports whether card may legally be played on top with
// currentColor in effect. Wild cards are always playable. When the top card
// is wild, only the resolved color matters; otherwise a match on either
// color or value is legal.
func IsPlayable(card, top *models.Card, currentColor models.Color) bool {
	if card.IsWild() {
		return true
	}
	if top.IsWild() {
		return card.Color == currentColor
	}
	return card.Color == top.Color || card.Value == top.Value
}

// NextPlayerIndex advances from current by direction around n seats,
// twice when skip is set.
func NextPlayerIndex(current, direction, n int, skip bool) int {
	if n <= 0 {
		return 0
	}
	idx := ((current+direction)%n + n) % n
	if skip {
		idx = ((idx+direction)%n + n) % n
	}
	return idx
}

// ValidateMove checks a play attempt against explicit state and returns the
// card to play. Order of checks follows the error taxonomy: phase, turn,
// index, playability, color choice.
func ValidateMove(phase Phase, currentIdx, playerIdx int, hand []*models.Card, cardIndex int, top *models.Card, currentColor, chosen models.Color) (*models.Card, error) {
	if phase != PhasePlaying {
		return nil, ErrGameNotPlaying
	}
	if playerIdx != currentIdx {
		return nil, ErrNotYourTurn
	}
	if cardIndex < 0 || cardIndex >= len(hand) {
		return nil, ErrInvalidCardIndex
	}
	card := hand[cardIndex]
	if !IsPlayable(card, top, currentColor) {
		return nil, ErrCardNotPlayable
	}
	if card.IsWild() {
		if chosen == "" {
			return nil, ErrMissingColorChoice
		}
		if !chosen.Named() {
			return nil, ErrInvalidColor
		}
	}
	return card, nil
}

// UnoCallResult is the outcome of an UNO call attempt.
type UnoCallResult struct {
	Valid          bool
	ShouldPenalize bool
	Message        string
}

// CheckUnoCall classifies an UNO call. A call with exactly one card and no
// prior call is valid; a call with more cards is itself penalized; anything
// else is an informational no-op. Note that a player who reaches one card
// and simply never calls is not penalized automatically.
func CheckUnoCall(p *models.Player) UnoCallResult {
	switch {
	case len(p.Hand) == 1 && !p.UnoCalled:
		return UnoCallResult{Valid: true, Message: fmt.Sprintf("%s called UNO!", p.Name)}
	case len(p.Hand) > 1:
		return UnoCallResult{ShouldPenalize: true, Message: fmt.Sprintf("%s called UNO with more than one card", p.Name)}
	default:
		return UnoCallResult{Message: "UNO already called"}
	}
}

// FindWinner returns the first player in seat order with an empty hand, or
// nil while the game should continue.
func FindWinner(players []*models.Player) *models.Player {
	for _, p := range players {
		if p.HandEmpty() {
			return p
		}
	}
	return nil
}

// ValidateDraw4Challenge reports whether the accusation is correct: the
// accused, at the time of the wild-draw4 play, held a non-wild card matching
// the color or value then in effect. priorHand is the accused's hand with
// the played card already removed.
func ValidateDraw4Challenge(priorHand []*models.Card, priorTop *models.Card, priorColor models.Color) bool {
	for _, c := range priorHand {
		if c.IsWild() {
			continue
		}
		if c.Color == priorColor {
			return true
		}
		if priorTop != nil && !priorTop.IsWild() && c.Value == priorTop.Value {
			return true
		}
	}
	return false
}
