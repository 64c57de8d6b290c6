// internal/game/room_test.go
package game

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jklem/uno/internal/models"
)

// eventRecorder captures broadcast traffic for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (er *eventRecorder) broadcast(targets []BroadcastTarget, ev Event) {
	er.mu.Lock()
	defer er.mu.Unlock()
	er.events = append(er.events, ev)
}

func (er *eventRecorder) ofType(t EventType) []Event {
	er.mu.Lock()
	defer er.mu.Unlock()
	var out []Event
	for _, ev := range er.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// newStartedRoom builds a room with n connected players and a dealt game.
func newStartedRoom(t *testing.T, n int) (*Room, *eventRecorder) {
	t.Helper()
	rec := &eventRecorder{}
	r := newRoom("ABC123", Settings{MaxPlayers: MaxPlayers}, testLogger().WithField("room", "ABC123"))
	r.Broadcast = rec.broadcast
	names := []string{"ana", "ben", "cleo", "dmitri"}
	for i := 0; i < n; i++ {
		r.Players = append(r.Players, &models.Player{
			ID:        uuid.New(),
			Name:      names[i],
			IsHost:    i == 0,
			Connected: true,
		})
	}
	r.mu.Lock()
	require.NoError(t, r.start(r.Players[0]))
	r.mu.Unlock()
	return r, rec
}

// giveHand replaces p's hand with cards previously taken via takeCard. The
// old cards go to the bottom of the draw pile, keeping the supply intact.
func giveHand(r *Room, p *models.Player, cards ...*models.Card) {
	r.Deck.ReturnToBottom(p.Hand)
	p.Hand = nil
	p.AddCards(cards)
}

// takeCard pulls a card matching color/value out of the draw pile, or out
// of a hand (backfilled from the pile) if the deal already claimed every
// copy. The discard pile holds a single card, so at least one copy of any
// multi-copy card is always reachable.
func takeCard(t *testing.T, r *Room, color models.Color, value models.Value) *models.Card {
	t.Helper()
	for i, c := range r.Deck.drawPile {
		if c.Color == color && c.Value == value {
			r.Deck.drawPile = append(r.Deck.drawPile[:i], r.Deck.drawPile[i+1:]...)
			return c
		}
	}
	for _, p := range r.Players {
		for i, c := range p.Hand {
			if c.Color == color && c.Value == value {
				p.Hand = append(p.Hand[:i], p.Hand[i+1:]...)
				p.AddCards(r.Deck.Draw(1))
				return c
			}
		}
	}
	t.Fatalf("no %s %s available", color, value)
	return nil
}

func totalCards(r *Room) int {
	total := r.Deck.DrawCount() + r.Deck.DiscardCount()
	for _, p := range r.Players {
		total += len(p.Hand)
	}
	return total
}

func TestStartDealsSevenEach(t *testing.T) {
	r, rec := newStartedRoom(t, 3)

	assert.Equal(t, PhasePlaying, r.Phase)
	assert.Equal(t, 0, r.CurrentPlayerIndex)
	assert.Equal(t, 1, r.Direction)
	assert.Equal(t, 1, r.TurnNumber)
	for _, p := range r.Players {
		assert.Len(t, p.Hand, StartingHandSize)
	}
	require.NotNil(t, r.Deck.Top())
	assert.False(t, r.Deck.Top().IsWild(), "starting card must not be wild")
	assert.Equal(t, r.Deck.Top().Color, r.CurrentColor)
	assert.Equal(t, DeckSize, totalCards(r))
	assert.Len(t, rec.ofType(EventGameStarted), 3, "one state event per player")
}

func TestStartRequiresHostAndPlayers(t *testing.T) {
	rec := &eventRecorder{}
	r := newRoom("ABC123", Settings{MaxPlayers: 4}, testLogger().WithField("room", "ABC123"))
	r.Broadcast = rec.broadcast
	host := &models.Player{ID: uuid.New(), Name: "ana", IsHost: true, Connected: true}
	r.Players = append(r.Players, host)

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.ErrorIs(t, r.start(host), ErrInsufficientPlayers)

	guest := &models.Player{ID: uuid.New(), Name: "ben", Connected: true}
	r.Players = append(r.Players, guest)
	assert.ErrorIs(t, r.start(guest), ErrNotHost)

	require.NoError(t, r.start(host))
	assert.ErrorIs(t, r.start(host), ErrGameAlreadyStarted)
}

func TestPlayCardMatchingColor(t *testing.T) {
	r, rec := newStartedRoom(t, 2)
	r.mu.Lock()
	defer r.mu.Unlock()

	top := r.Deck.Top()
	// Give the current player a guaranteed color match.
	card := takeCard(t, r, top.Color, models.DigitValue(digitOtherThan(top)))
	p := r.Players[0]
	p.Hand = append(p.Hand, card)

	require.NoError(t, r.playCard(p, len(p.Hand)-1, ""))

	assert.Equal(t, 1, r.CurrentPlayerIndex)
	assert.Equal(t, card, r.Deck.Top())
	assert.Equal(t, card.Color, r.CurrentColor)
	assert.Equal(t, 2, r.TurnNumber)
	assert.Equal(t, DeckSize, totalCards(r))
	require.NotEmpty(t, rec.ofType(EventCardPlayed))
}

// digitOtherThan picks a digit that cannot collide with top's value, so the
// play is a pure color match.
func digitOtherThan(top *models.Card) int {
	if top.Value == models.DigitValue(3) {
		return 4
	}
	return 3
}

func TestPlayCardRejectsOutOfTurn(t *testing.T) {
	r, _ := newStartedRoom(t, 2)
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.playCard(r.Players[1], 0, "")
	assert.ErrorIs(t, err, ErrNotYourTurn)
	assert.Equal(t, 1, r.TurnNumber, "rejected move must not mutate state")
}

func TestPlaySkipCard(t *testing.T) {
	r, _ := newStartedRoom(t, 3)
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.Players[0]
	card := takeCard(t, r, r.Deck.Top().Color, models.ValueSkip)
	p.Hand = append(p.Hand, card)

	require.NoError(t, r.playCard(p, len(p.Hand)-1, ""))
	assert.Equal(t, 2, r.CurrentPlayerIndex, "skip jumps over the next player")
}

func TestPlayReverseThreePlayers(t *testing.T) {
	r, _ := newStartedRoom(t, 3)
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.Players[0]
	card := takeCard(t, r, r.Deck.Top().Color, models.ValueReverse)
	p.Hand = append(p.Hand, card)

	require.NoError(t, r.playCard(p, len(p.Hand)-1, ""))
	assert.Equal(t, -1, r.Direction)
	assert.Equal(t, 2, r.CurrentPlayerIndex, "reverse sends play the other way")
}

func TestPlayReverseTwoPlayersActsAsSkip(t *testing.T) {
	r, _ := newStartedRoom(t, 2)
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.Players[0]
	card := takeCard(t, r, r.Deck.Top().Color, models.ValueReverse)
	p.Hand = append(p.Hand, card)

	require.NoError(t, r.playCard(p, len(p.Hand)-1, ""))
	assert.Equal(t, 0, r.CurrentPlayerIndex, "reverse in a 2-player game keeps the turn")
}

func TestPlayDraw2(t *testing.T) {
	r, _ := newStartedRoom(t, 3)
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.Players[0]
	victim := r.Players[1]
	card := takeCard(t, r, r.Deck.Top().Color, models.ValueDraw2)
	p.Hand = append(p.Hand, card)
	before := len(victim.Hand)

	require.NoError(t, r.playCard(p, len(p.Hand)-1, ""))
	assert.Len(t, victim.Hand, before+2)
	assert.Equal(t, 2, r.CurrentPlayerIndex, "draw2 victim loses their turn")
	assert.Equal(t, DeckSize, totalCards(r))
}

func TestPlayWildDraw4(t *testing.T) {
	r, _ := newStartedRoom(t, 3)
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.Players[0]
	victim := r.Players[1]
	card := takeCard(t, r, models.ColorBlack, models.ValueWildDraw4)
	p.Hand = append(p.Hand, card)
	before := len(victim.Hand)

	require.NoError(t, r.playCard(p, len(p.Hand)-1, models.ColorBlue))

	assert.Len(t, victim.Hand, before+4)
	assert.Equal(t, 2, r.CurrentPlayerIndex)
	assert.Equal(t, models.ColorBlue, r.CurrentColor)
	assert.Equal(t, models.ColorBlue, r.ChosenColor)
	assert.NotNil(t, r.challenge, "wild-draw4 opens a challenge window")
	assert.Equal(t, DeckSize, totalCards(r))
}

func TestWildRequiresColor(t *testing.T) {
	r, _ := newStartedRoom(t, 2)
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.Players[0]
	card := takeCard(t, r, models.ColorBlack, models.ValueWild)
	p.Hand = append(p.Hand, card)

	err := r.playCard(p, len(p.Hand)-1, "")
	assert.ErrorIs(t, err, ErrMissingColorChoice)

	err = r.playCard(p, len(p.Hand)-1, "purple")
	assert.ErrorIs(t, err, ErrInvalidColor)

	require.NoError(t, r.playCard(p, len(p.Hand)-1, models.ColorGreen))
	assert.Equal(t, models.ColorGreen, r.CurrentColor)
}

func TestWinEndsGame(t *testing.T) {
	r, rec := newStartedRoom(t, 2)
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.Players[0]
	loser := r.Players[1]
	card := takeCard(t, r, r.Deck.Top().Color, models.DigitValue(digitOtherThan(r.Deck.Top())))
	giveHand(r, p, card)
	loserScore := loser.HandScore()

	require.NoError(t, r.playCard(p, 0, ""))

	assert.Equal(t, PhaseEnded, r.Phase)
	assert.Equal(t, p, r.Winner)
	assert.Equal(t, 1, p.GamesWon)
	assert.Equal(t, loserScore, p.Score)
	assert.Equal(t, 1, p.GamesPlayed)
	assert.Equal(t, 1, loser.GamesPlayed)
	assert.Equal(t, 0, loser.GamesWon)
	require.NotEmpty(t, rec.ofType(EventGameEnded))

	// Scenario C tail: further actions are rejected.
	assert.ErrorIs(t, r.playCard(loser, 0, ""), ErrGameNotPlaying)
	assert.ErrorIs(t, r.drawCard(loser), ErrGameNotPlaying)
}

func TestRematchKeepsStats(t *testing.T) {
	r, _ := newStartedRoom(t, 2)
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.Players[0]
	card := takeCard(t, r, r.Deck.Top().Color, models.DigitValue(digitOtherThan(r.Deck.Top())))
	giveHand(r, p, card)
	require.NoError(t, r.playCard(p, 0, ""))
	require.Equal(t, PhaseEnded, r.Phase)

	require.NoError(t, r.start(p))
	assert.Equal(t, PhasePlaying, r.Phase)
	assert.Nil(t, r.Winner)
	assert.Equal(t, 1, p.GamesWon, "stats persist across rematches")
	for _, pl := range r.Players {
		assert.Len(t, pl.Hand, StartingHandSize)
		assert.False(t, pl.UnoCalled)
	}
	assert.Equal(t, DeckSize, totalCards(r))
}

func TestDrawCardAdvancesTurn(t *testing.T) {
	r, rec := newStartedRoom(t, 2)
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.Players[0]
	before := len(p.Hand)

	assert.ErrorIs(t, r.drawCard(r.Players[1]), ErrNotYourTurn)

	require.NoError(t, r.drawCard(p))
	assert.Len(t, p.Hand, before+1)
	assert.Equal(t, 1, r.CurrentPlayerIndex, "drawing passes the turn")
	assert.Equal(t, 2, r.TurnNumber)
	assert.Equal(t, DeckSize, totalCards(r))
	assert.Len(t, rec.ofType(EventCardDrawn), 2)
}

func TestDrawReshufflesWhenPileEmpty(t *testing.T) {
	r, _ := newStartedRoom(t, 2)
	r.mu.Lock()
	defer r.mu.Unlock()

	// Move the whole draw pile onto the discard pile.
	for {
		c := r.Deck.DrawOne()
		if c == nil {
			break
		}
		r.Deck.Discard(c)
	}
	require.True(t, r.Deck.NeedsReshuffle())
	top := r.Deck.Top()

	p := r.Players[0]
	before := len(p.Hand)
	require.NoError(t, r.drawCard(p))

	assert.Len(t, p.Hand, before+1)
	assert.Equal(t, top, r.Deck.Top(), "active top card survives the reshuffle")
	assert.Equal(t, DeckSize, totalCards(r))
}

func TestDrawToleratesExhaustedSupply(t *testing.T) {
	r, _ := newStartedRoom(t, 2)
	r.mu.Lock()
	defer r.mu.Unlock()

	// Park every drawable card in the second player's hand so nothing can
	// be drawn or reshuffled.
	r.Players[1].AddCards(r.Deck.Draw(r.Deck.DrawCount()))
	require.Equal(t, 1, r.Deck.DiscardCount())

	p := r.Players[0]
	before := len(p.Hand)
	require.NoError(t, r.drawCard(p))
	assert.Len(t, p.Hand, before, "no card available to draw")
	assert.Equal(t, 1, r.CurrentPlayerIndex, "turn still advances")
}

func TestCallUnoValidAndMiscall(t *testing.T) {
	r, rec := newStartedRoom(t, 2)
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.Players[0]

	// Miscall with a full hand draws the penalty.
	before := len(p.Hand)
	require.NoError(t, r.callUno(p))
	assert.Len(t, p.Hand, before+UnoPenaltyCards)
	events := rec.ofType(EventUnoCalled)
	require.NotEmpty(t, events)
	assert.True(t, events[0].Penalized)

	// Valid call with one card.
	giveHand(r, p, r.Deck.DrawOne())

	require.NoError(t, r.callUno(p))
	assert.True(t, p.UnoCalled)
	assert.Equal(t, DeckSize, totalCards(r))
}

func TestUnoFlagResetsOnHandGrowth(t *testing.T) {
	r, _ := newStartedRoom(t, 2)
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.Players[0]
	card := r.Deck.DrawOne()
	giveHand(r, p, card)
	require.NoError(t, r.callUno(p))
	require.True(t, p.UnoCalled)

	require.NoError(t, r.drawCard(p))
	assert.False(t, p.UnoCalled, "drawing past one card clears the call")
}

func TestChallengeDraw4Valid(t *testing.T) {
	r, rec := newStartedRoom(t, 2)
	r.mu.Lock()
	defer r.mu.Unlock()

	accused := r.Players[0]
	challenger := r.Players[1]

	wd4 := takeCard(t, r, models.ColorBlack, models.ValueWildDraw4)
	// The accused also holds a card matching the active color, making the
	// wild-draw4 illegal.
	illegal := takeCard(t, r, r.CurrentColor, models.DigitValue(digitOtherThan(r.Deck.Top())))
	giveHand(r, accused, wd4, illegal)

	challengerBefore := len(challenger.Hand)
	require.NoError(t, r.playCard(accused, 0, models.ColorBlue))
	require.Len(t, challenger.Hand, challengerBefore+4)
	accusedAfterPlay := len(accused.Hand)

	require.NoError(t, r.challengeDraw4(challenger))

	assert.Len(t, challenger.Hand, challengerBefore, "penalty cards returned")
	assert.Len(t, accused.Hand, accusedAfterPlay+4, "accused draws the 4 instead")
	assert.Equal(t, 1, r.CurrentPlayerIndex, "turn goes back to the challenger")
	assert.Nil(t, r.challenge)
	assert.Equal(t, DeckSize, totalCards(r))

	events := rec.ofType(EventDraw4Challenged)
	require.NotEmpty(t, events)
	require.NotNil(t, events[0].Valid)
	assert.True(t, *events[0].Valid)
}

func TestChallengeDraw4Invalid(t *testing.T) {
	r, rec := newStartedRoom(t, 2)
	r.mu.Lock()
	defer r.mu.Unlock()

	accused := r.Players[0]
	challenger := r.Players[1]

	wd4 := takeCard(t, r, models.ColorBlack, models.ValueWildDraw4)
	// Hand the accused only off-color, off-value cards so the play is legal.
	var offColor models.Color
	for _, c := range models.NamedColors {
		if c != r.CurrentColor {
			offColor = c
			break
		}
	}
	filler := takeCard(t, r, offColor, models.DigitValue(digitOtherThan(r.Deck.Top())))
	giveHand(r, accused, wd4, filler)

	challengerBefore := len(challenger.Hand)
	require.NoError(t, r.playCard(accused, 0, models.ColorBlue))
	require.NoError(t, r.challengeDraw4(challenger))

	assert.Len(t, challenger.Hand, challengerBefore+4+Draw4PenaltyCards, "failed challenge costs 4 more")
	assert.Equal(t, DeckSize, totalCards(r))

	events := rec.ofType(EventDraw4Challenged)
	require.NotEmpty(t, events)
	require.NotNil(t, events[0].Valid)
	assert.False(t, *events[0].Valid)
}

func TestChallengeWindowRules(t *testing.T) {
	r, _ := newStartedRoom(t, 3)
	r.mu.Lock()
	defer r.mu.Unlock()

	assert.ErrorIs(t, r.challengeDraw4(r.Players[1]), ErrNoChallenge)

	accused := r.Players[0]
	wd4 := takeCard(t, r, models.ColorBlack, models.ValueWildDraw4)
	accused.Hand = append(accused.Hand, wd4)
	require.NoError(t, r.playCard(accused, len(accused.Hand)-1, models.ColorBlue))
	require.NotNil(t, r.challenge)

	assert.ErrorIs(t, r.challengeDraw4(r.Players[2]), ErrNotChallenger)

	// The next state-changing action closes the window.
	require.NoError(t, r.drawCard(r.Players[2]))
	assert.Nil(t, r.challenge)
	assert.ErrorIs(t, r.challengeDraw4(r.Players[1]), ErrNoChallenge)
}

func TestDisconnectPausesAndReconnectResumes(t *testing.T) {
	r, rec := newStartedRoom(t, 2)
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.Players[1]
	r.handleDisconnect(p)

	assert.False(t, p.Connected)
	assert.Equal(t, PhasePaused, r.Phase)
	assert.Len(t, p.Hand, StartingHandSize, "hand is preserved while away")
	require.NotEmpty(t, rec.ofType(EventPlayerDisconnected))

	assert.ErrorIs(t, r.playCard(r.Players[0], 0, ""), ErrGameNotPlaying)

	newConnID := uuid.New()
	r.handleReconnect(p, newConnID, nil)
	assert.True(t, p.Connected)
	assert.Equal(t, newConnID, p.ConnID)
	assert.Equal(t, PhasePlaying, r.Phase)
	require.NotEmpty(t, rec.ofType(EventPlayerReconnected))
}

func TestDisconnectInLobbyDoesNotPause(t *testing.T) {
	rec := &eventRecorder{}
	r := newRoom("ABC123", Settings{MaxPlayers: 4}, testLogger().WithField("room", "ABC123"))
	r.Broadcast = rec.broadcast
	p := &models.Player{ID: uuid.New(), Name: "ana", IsHost: true, Connected: true}
	r.Players = append(r.Players, p)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handleDisconnect(p)
	assert.Equal(t, PhaseWaiting, r.Phase)
}

func TestRemovePlayerReturnsHandAndTransfersHost(t *testing.T) {
	r, rec := newStartedRoom(t, 3)
	r.mu.Lock()
	defer r.mu.Unlock()

	host := r.Players[0]
	next := r.Players[1]
	r.removePlayer(host)

	assert.Len(t, r.Players, 2)
	assert.True(t, next.IsHost, "host role moves to the next seat")
	assert.Equal(t, DeckSize, totalCards(r), "leaver's cards return to the deck")
	require.NotEmpty(t, rec.ofType(EventPlayerLeft))
	assert.Equal(t, 0, r.CurrentPlayerIndex)
}

func TestRemoveSecondToLastPlayerEndsGame(t *testing.T) {
	r, _ := newStartedRoom(t, 2)
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removePlayer(r.Players[1])
	assert.Equal(t, PhaseEnded, r.Phase)
	require.NotNil(t, r.Winner)
	assert.Equal(t, r.Players[0], r.Winner)
}

func TestSetReadyOnlyWhileWaiting(t *testing.T) {
	rec := &eventRecorder{}
	r := newRoom("ABC123", Settings{MaxPlayers: 4}, testLogger().WithField("room", "ABC123"))
	r.Broadcast = rec.broadcast
	p := &models.Player{ID: uuid.New(), Name: "ana", IsHost: true, Connected: true}
	r.Players = append(r.Players, p)

	r.mu.Lock()
	defer r.mu.Unlock()
	require.NoError(t, r.setReady(p, true))
	assert.True(t, p.Ready)

	r.Phase = PhasePlaying
	assert.ErrorIs(t, r.setReady(p, false), ErrGameAlreadyStarted)
}

func TestSnapshotHidesOtherHands(t *testing.T) {
	r, _ := newStartedRoom(t, 2)
	r.mu.Lock()
	defer r.mu.Unlock()

	viewer := r.Players[0]
	state := r.snapshotFor(viewer.ID)

	require.Len(t, state.Players, 2)
	for _, ps := range state.Players {
		assert.Equal(t, StartingHandSize, ps.HandSize)
		if ps.ID == viewer.ID {
			assert.Len(t, ps.Hand, StartingHandSize)
		} else {
			assert.Empty(t, ps.Hand, "opponents' cards stay hidden")
		}
	}
	assert.Equal(t, r.Deck.Top(), state.TopCard)
	assert.Equal(t, viewer.ID, state.CurrentPlayerID)
}

func TestFullGameKeepsDeckInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	r, _ := newStartedRoom(t, 4)
	r.mu.Lock()
	defer r.mu.Unlock()

	// Play randomly until someone wins or we give up; the card supply must
	// hold at 108 after every action.
	for turns := 0; turns < 500 && r.Phase == PhasePlaying; turns++ {
		p := r.Players[r.CurrentPlayerIndex]
		played := false
		for i, c := range p.Hand {
			if IsPlayable(c, r.Deck.Top(), r.CurrentColor) {
				chosen := models.Color("")
				if c.IsWild() {
					chosen = models.NamedColors[rng.Intn(len(models.NamedColors))]
				}
				require.NoError(t, r.playCard(p, i, chosen))
				played = true
				break
			}
		}
		if !played {
			require.NoError(t, r.drawCard(p))
		}
		require.Equal(t, DeckSize, totalCards(r), "after turn %d", turns)
	}
}
