package game

import (
	"math/rand"
	"time"

	"github.com/jklem/uno/internal/models"
)

// DeckSize is the canonical UNO deck size: per color one 0, two each of 1-9,
// two each of skip/reverse/draw2 (25 x 4 = 100), plus 4 wild and 4 wild-draw4.
const DeckSize = 108

// Deck owns the draw and discard piles for one room. Both piles are stacks;
// index 0 of the draw pile is the top, the last discard element is the
// active card. A Deck is never shared between rooms.
type Deck struct {
	drawPile    []*models.Card
	discardPile []*models.Card
	rng         *rand.Rand
}

// NewDeck builds the 108-card set, shuffled.
func NewDeck() *Deck {
	return NewDeckWithRand(rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewDeckWithRand builds a deck using the given source, for deterministic
// shuffles in tests.
func NewDeckWithRand(rng *rand.Rand) *Deck {
	d := &Deck{rng: rng}
	for _, color := range models.NamedColors {
		d.drawPile = append(d.drawPile, models.NewCard(color, models.DigitValue(0)))
		for n := 1; n <= 9; n++ {
			d.drawPile = append(d.drawPile,
				models.NewCard(color, models.DigitValue(n)),
				models.NewCard(color, models.DigitValue(n)))
		}
		for _, v := range []models.Value{models.ValueSkip, models.ValueReverse, models.ValueDraw2} {
			d.drawPile = append(d.drawPile,
				models.NewCard(color, v),
				models.NewCard(color, v))
		}
	}
	for i := 0; i < 4; i++ {
		d.drawPile = append(d.drawPile,
			models.NewCard(models.ColorBlack, models.ValueWild),
			models.NewCard(models.ColorBlack, models.ValueWildDraw4))
	}
	d.shuffleDraw()
	return d
}

func (d *Deck) shuffleDraw() {
	d.rng.Shuffle(len(d.drawPile), func(i, j int) {
		d.drawPile[i], d.drawPile[j] = d.drawPile[j], d.drawPile[i]
	})
}

// Draw pops up to n cards from the top of the draw pile. It returns fewer
// than n when the pile runs short and never errors; callers that care must
// reshuffle first. With every card in hands it returns an empty slice.
func (d *Deck) Draw(n int) []*models.Card {
	if n > len(d.drawPile) {
		n = len(d.drawPile)
	}
	if n <= 0 {
		return nil
	}
	cards := make([]*models.Card, n)
	copy(cards, d.drawPile[:n])
	d.drawPile = d.drawPile[n:]
	return cards
}

// DrawOne pops the top draw-pile card, or nil when the pile is empty.
func (d *Deck) DrawOne() *models.Card {
	cards := d.Draw(1)
	if len(cards) == 0 {
		return nil
	}
	return cards[0]
}

// Discard pushes card onto the discard pile; it becomes the active top card.
func (d *Deck) Discard(c *models.Card) {
	d.discardPile = append(d.discardPile, c)
}

// Top returns the active discard card, or nil before the first discard.
func (d *Deck) Top() *models.Card {
	if len(d.discardPile) == 0 {
		return nil
	}
	return d.discardPile[len(d.discardPile)-1]
}

// NeedsReshuffle reports whether the draw pile is exhausted while the
// discard pile still holds recyclable cards.
func (d *Deck) NeedsReshuffle() bool {
	return len(d.drawPile) == 0 && len(d.discardPile) > 1
}

// ReshuffleFromDiscard recycles the discard pile into the draw pile, keeping
// the active top card in place. No-op when there is nothing to recycle.
func (d *Deck) ReshuffleFromDiscard() {
	if len(d.discardPile) <= 1 {
		return
	}
	top := d.discardPile[len(d.discardPile)-1]
	d.drawPile = append(d.drawPile, d.discardPile[:len(d.discardPile)-1]...)
	d.discardPile = []*models.Card{top}
	d.shuffleDraw()
}

// ReturnToBottom slides cards under the draw pile. Used when a successful
// wild-draw4 challenge takes penalty cards back.
func (d *Deck) ReturnToBottom(cards []*models.Card) {
	d.drawPile = append(d.drawPile, cards...)
}

// DrawCount is the number of cards left in the draw pile.
func (d *Deck) DrawCount() int { return len(d.drawPile) }

// DiscardCount is the number of cards in the discard pile.
func (d *Deck) DiscardCount() int { return len(d.discardPile) }
