package models

import (
	"errors"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// ErrHandIndex reports an out-of-range hand index.
var ErrHandIndex = errors.New("hand index out of range")

// Player is one seat in a room. ID is stable across reconnects; ConnID is
// rebound every time the player establishes a new connection.
type Player struct {
	ID     uuid.UUID `json:"id"`
	ConnID uuid.UUID `json:"-"`
	Name   string    `json:"name"`
	IsHost bool      `json:"isHost"`

	Connected bool            `json:"connected"`
	Conn      *websocket.Conn `json:"-"`

	Hand      []*Card `json:"-"`
	UnoCalled bool    `json:"unoCalled"`
	Ready     bool    `json:"ready"`

	GamesPlayed int `json:"gamesPlayed"`
	GamesWon    int `json:"gamesWon"`
	Score       int `json:"score"`
}

// AddCards appends cards to the end of the hand, preserving hand order.
func (p *Player) AddCards(cards []*Card) {
	p.Hand = append(p.Hand, cards...)
}

// CardAt returns the card at idx without removing it.
func (p *Player) CardAt(idx int) (*Card, error) {
	if idx < 0 || idx >= len(p.Hand) {
		return nil, ErrHandIndex
	}
	return p.Hand[idx], nil
}

// RemoveCardAt removes and returns the card at idx. Remaining cards keep
// their relative order; indices above idx shift down by one.
func (p *Player) RemoveCardAt(idx int) (*Card, error) {
	if idx < 0 || idx >= len(p.Hand) {
		return nil, ErrHandIndex
	}
	c := p.Hand[idx]
	p.Hand = append(p.Hand[:idx], p.Hand[idx+1:]...)
	return c, nil
}

// HandEmpty reports the win condition.
func (p *Player) HandEmpty() bool {
	return len(p.Hand) == 0
}

// HandScore sums the score values of the remaining cards.
func (p *Player) HandScore() int {
	sum := 0
	for _, c := range p.Hand {
		sum += c.ScoreValue()
	}
	return sum
}

// CallUno marks the UNO call and reports whether it took effect. The call
// only succeeds with exactly one card in hand and not already called;
// whether a bad call is penalized is decided by the rule engine, not here.
func (p *Player) CallUno() bool {
	if len(p.Hand) != 1 || p.UnoCalled {
		return false
	}
	p.UnoCalled = true
	return true
}
