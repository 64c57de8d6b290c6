package models

import (
	"strconv"

	"github.com/google/uuid"
)

// Color is a card's face color. Black is reserved for wild cards, which have
// no matchable color of their own until the player resolves a color choice.
type Color string

const (
	ColorRed    Color = "red"
	ColorGreen  Color = "green"
	ColorBlue   Color = "blue"
	ColorYellow Color = "yellow"
	ColorBlack  Color = "black"
)

// NamedColors are the four colors a wild card may resolve to.
var NamedColors = [4]Color{ColorRed, ColorGreen, ColorBlue, ColorYellow}

// Named reports whether c is one of the four matchable colors.
func (c Color) Named() bool {
	for _, nc := range NamedColors {
		if c == nc {
			return true
		}
	}
	return false
}

// Value is a card's face value: "0".."9" or one of the action values below.
type Value string

const (
	ValueSkip      Value = "skip"
	ValueReverse   Value = "reverse"
	ValueDraw2     Value = "draw2"
	ValueWild      Value = "wild"
	ValueWildDraw4 Value = "wild-draw4"
)

// DigitValue returns the Value for a number card face 0-9.
func DigitValue(n int) Value {
	return Value(strconv.Itoa(n))
}

// Card is an immutable card instance. The ID distinguishes the two copies of
// each colored face within a deck.
type Card struct {
	ID    uuid.UUID `json:"id"`
	Color Color     `json:"color"`
	Value Value     `json:"value"`
}

// NewCard mints a card with a fresh unique ID.
func NewCard(color Color, value Value) *Card {
	return &Card{ID: uuid.New(), Color: color, Value: value}
}

// IsWild reports whether the card carries no color until played.
func (c *Card) IsWild() bool {
	return c.Value == ValueWild || c.Value == ValueWildDraw4
}

// ScoreValue is the card's worth when counted in an opponent's hand at game
// end. Number cards score face value, action cards 20, wilds 50. Never used
// for play legality.
func (c *Card) ScoreValue() int {
	switch c.Value {
	case ValueSkip, ValueReverse, ValueDraw2:
		return 20
	case ValueWild, ValueWildDraw4:
		return 50
	default:
		n, _ := strconv.Atoi(string(c.Value))
		return n
	}
}
