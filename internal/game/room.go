// internal/game/room.go
package game

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jklem/uno/internal/cache"
	"github.com/jklem/uno/internal/models"
)

const (
	// MinPlayers is required to start a game.
	MinPlayers = 2
	// MaxPlayers is the hard seat limit per room.
	MaxPlayers = 4
	// StartingHandSize is dealt to each player in seat order.
	StartingHandSize = 7
)

// Settings are the per-room options chosen at creation.
type Settings struct {
	MaxPlayers int `json:"maxPlayers"`
}

// draw4Challenge is the open challenge window after a wild-draw4 play. It
// survives until the next state-changing action in the room.
type draw4Challenge struct {
	accused    *models.Player
	challenger *models.Player
	priorHand  []*models.Card // accused's hand with the wild-draw4 removed
	priorTop   *models.Card
	priorColor models.Color
	penalty    []*models.Card // the 4 cards dealt to the challenger
}

// Room is one isolated game session: its deck, its players' hands, and the
// turn state. All mutation happens with mu held; the manager serializes
// actions per room, so at most one mutation is in flight at a time. No two
// rooms ever share a Card, Deck or Player.
type Room struct {
	Code     string
	Players  []*models.Player // list order is turn order
	Settings Settings

	Phase              Phase
	CurrentPlayerIndex int
	Direction          int
	CurrentColor       models.Color
	ChosenColor        models.Color
	TurnNumber         int
	Deck               *Deck
	Winner             *models.Player

	LastActivity time.Time

	// Broadcast delivers outbound events; installed by the manager.
	Broadcast BroadcastFunc

	challenge   *draw4Challenge
	actionIndex int
	dead        bool // set by the manager on teardown; rejects late joiners
	log         *logrus.Entry
	mu          sync.Mutex
}

func newRoom(code string, settings Settings, log *logrus.Entry) *Room {
	return &Room{
		Code:         code,
		Settings:     settings,
		Phase:        PhaseWaiting,
		Direction:    1,
		LastActivity: time.Now(),
		log:          log,
	}
}

// touch records activity for the inactivity sweep. Lock must be held.
func (r *Room) touch() {
	r.LastActivity = time.Now()
}

// playerByID finds a seat by stable player ID. Lock must be held.
func (r *Room) playerByID(id uuid.UUID) *models.Player {
	for _, p := range r.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// seatIndex returns p's position in turn order, or -1. Lock must be held.
func (r *Room) seatIndex(p *models.Player) int {
	for i, pl := range r.Players {
		if pl == p {
			return i
		}
	}
	return -1
}

// fireEvent sends ev to every connected player. Lock must be held; the
// Broadcast implementation hands writes off asynchronously.
func (r *Room) fireEvent(ev Event) {
	if r.Broadcast == nil {
		return
	}
	var targets []BroadcastTarget
	for _, p := range r.Players {
		if p.Connected {
			targets = append(targets, BroadcastTarget{PlayerID: p.ID, Conn: p.Conn})
		}
	}
	r.Broadcast(targets, ev)
}

// fireEventTo sends ev to a single player, if connected. Lock must be held.
func (r *Room) fireEventTo(p *models.Player, ev Event) {
	if r.Broadcast == nil || !p.Connected {
		return
	}
	r.Broadcast([]BroadcastTarget{{PlayerID: p.ID, Conn: p.Conn}}, ev)
}

// fireStateEvent sends one event per connected player, each carrying that
// player's view of the room. Lock must be held.
func (r *Room) fireStateEvent(build func(viewer *models.Player) Event) {
	for _, p := range r.Players {
		if !p.Connected {
			continue
		}
		ev := build(p)
		ev.State = r.snapshotFor(p.ID)
		r.fireEventTo(p, ev)
	}
}

// seatPlayer adds p to the room if there is a seat to take. A dead room
// rejects the join: a caller may have resolved the room from the registry
// just before the manager tore it down. Lock must be held.
func (r *Room) seatPlayer(p *models.Player) error {
	if r.dead {
		return ErrRoomNotFound
	}
	if len(r.Players) >= r.Settings.MaxPlayers {
		return ErrRoomFull
	}
	if r.Phase != PhaseWaiting {
		return ErrGameAlreadyStarted
	}
	for _, other := range r.Players {
		if strings.EqualFold(other.Name, p.Name) {
			return ErrNameTaken
		}
	}
	r.Players = append(r.Players, p)
	r.touch()
	r.logAction(p.ID, "joinRoom", nil)
	r.fireEventTo(p, Event{Type: EventRoomJoined, Room: r.Code, Player: eventPlayer(p), State: r.snapshotFor(p.ID)})
	for _, other := range r.Players {
		if other == p || !other.Connected {
			continue
		}
		r.fireEventTo(other, Event{Type: EventPlayerJoined, Room: r.Code, Player: eventPlayer(p), State: r.snapshotFor(other.ID)})
	}
	return nil
}

// start deals a fresh game. Valid from waiting (first game) and from ended
// (rematch with the same seats and cumulative stats). Lock must be held.
func (r *Room) start(requester *models.Player) error {
	if !requester.IsHost {
		return ErrNotHost
	}
	if r.Phase == PhasePlaying || r.Phase == PhasePaused {
		return ErrGameAlreadyStarted
	}
	if len(r.Players) < MinPlayers {
		return ErrInsufficientPlayers
	}

	for _, p := range r.Players {
		p.Hand = nil
		p.UnoCalled = false
		p.Ready = false
	}
	r.Deck = NewDeck()
	for _, p := range r.Players {
		p.AddCards(r.Deck.Draw(StartingHandSize))
	}

	// The starting card must not be wild; candidate wilds stay on the
	// discard pile and recycle on the next reshuffle.
	for {
		c := r.Deck.DrawOne()
		r.Deck.Discard(c)
		if !c.IsWild() {
			break
		}
	}

	r.Phase = PhasePlaying
	r.CurrentPlayerIndex = 0
	r.Direction = 1
	r.CurrentColor = r.Deck.Top().Color
	r.ChosenColor = ""
	r.TurnNumber = 1
	r.Winner = nil
	r.challenge = nil
	r.touch()

	r.log.WithFields(logrus.Fields{"players": len(r.Players), "topCard": r.Deck.Top().Value}).Info("game started")
	r.logAction(requester.ID, "startGame", nil)
	r.fireStateEvent(func(viewer *models.Player) Event {
		return Event{Type: EventGameStarted, Room: r.Code}
	})
	return nil
}

// drawWithReshuffle draws up to n cards, recycling the discard pile whenever
// the draw pile runs dry. Returns fewer than n (possibly none) when every
// remaining card is in a hand. Lock must be held.
func (r *Room) drawWithReshuffle(n int) []*models.Card {
	var cards []*models.Card
	for i := 0; i < n; i++ {
		if r.Deck.NeedsReshuffle() {
			r.Deck.ReshuffleFromDiscard()
			r.log.WithField("drawPile", r.Deck.DrawCount()).Debug("reshuffled discard pile into draw pile")
			r.logAction(uuid.Nil, "reshuffle", map[string]interface{}{"drawPile": r.Deck.DrawCount()})
		}
		c := r.Deck.DrawOne()
		if c == nil {
			break
		}
		cards = append(cards, c)
	}
	return cards
}

// playCard validates and commits a card play for p: removes the card from
// hand, discards it, applies its effect, advances the turn and checks the
// win condition. Lock must be held.
func (r *Room) playCard(p *models.Player, cardIndex int, chosen models.Color) error {
	if r.Phase != PhasePlaying {
		return ErrGameNotPlaying
	}
	playerIdx := r.seatIndex(p)
	card, err := ValidateMove(r.Phase, r.CurrentPlayerIndex, playerIdx, p.Hand, cardIndex, r.Deck.Top(), r.CurrentColor, chosen)
	if err != nil {
		return err
	}

	// Any committed action closes a pending wild-draw4 challenge window.
	r.challenge = nil

	priorTop := r.Deck.Top()
	priorColor := r.CurrentColor

	if _, err := p.RemoveCardAt(cardIndex); err != nil {
		return ErrInvalidCardIndex
	}
	r.Deck.Discard(card)

	if card.IsWild() {
		r.CurrentColor = chosen
		r.ChosenColor = chosen
	} else {
		r.CurrentColor = card.Color
		r.ChosenColor = ""
	}

	eff := EffectOf(card.Value)
	skip := eff.SkipNext
	if eff.FlipDirection {
		r.Direction = -r.Direction
		if len(r.Players) == MinPlayers {
			// Reversing a 2-player game changes nothing; treat as skip.
			skip = true
		}
	}

	if eff.DrawCount > 0 {
		victimIdx := NextPlayerIndex(r.CurrentPlayerIndex, r.Direction, len(r.Players), false)
		victim := r.Players[victimIdx]
		drawn := r.drawWithReshuffle(eff.DrawCount)
		victim.AddCards(drawn)
		victim.UnoCalled = false
		if eff.Challengeable {
			priorHand := make([]*models.Card, len(p.Hand))
			copy(priorHand, p.Hand)
			r.challenge = &draw4Challenge{
				accused:    p,
				challenger: victim,
				priorHand:  priorHand,
				priorTop:   priorTop,
				priorColor: priorColor,
				penalty:    drawn,
			}
		}
	}

	r.touch()
	r.logAction(p.ID, "playCard", map[string]interface{}{
		"card": card.Value, "color": r.CurrentColor, "turn": r.TurnNumber,
	})

	if p.HandEmpty() {
		r.finishGame(p)
		r.fireStateEvent(func(viewer *models.Player) Event {
			return Event{Type: EventCardPlayed, Room: r.Code, Player: eventPlayer(p), Card: card, Winner: eventPlayer(p)}
		})
		return nil
	}

	r.CurrentPlayerIndex = NextPlayerIndex(r.CurrentPlayerIndex, r.Direction, len(r.Players), skip)
	r.TurnNumber++

	r.fireStateEvent(func(viewer *models.Player) Event {
		return Event{Type: EventCardPlayed, Room: r.Code, Player: eventPlayer(p), Card: card}
	})
	return nil
}

// drawCard draws one card for p and always advances the turn: drawing does
// not grant an extra play. Tolerates a fully exhausted supply by drawing
// nothing. Lock must be held.
func (r *Room) drawCard(p *models.Player) error {
	if r.Phase != PhasePlaying {
		return ErrGameNotPlaying
	}
	if r.seatIndex(p) != r.CurrentPlayerIndex {
		return ErrNotYourTurn
	}

	r.challenge = nil

	drawn := r.drawWithReshuffle(1)
	p.AddCards(drawn)
	if len(p.Hand) > 1 {
		p.UnoCalled = false
	}

	r.CurrentPlayerIndex = NextPlayerIndex(r.CurrentPlayerIndex, r.Direction, len(r.Players), false)
	r.TurnNumber++
	r.touch()
	r.logAction(p.ID, "drawCard", map[string]interface{}{"count": len(drawn)})

	// Only the drawer learns which card arrived; everyone else sees counts.
	for _, viewer := range r.Players {
		if !viewer.Connected {
			continue
		}
		ev := Event{Type: EventCardDrawn, Room: r.Code, Player: eventPlayer(p), State: r.snapshotFor(viewer.ID)}
		if viewer == p && len(drawn) > 0 {
			ev.Card = drawn[0]
		}
		r.fireEventTo(viewer, ev)
	}
	return nil
}

// callUno applies an UNO call: valid with one card, penalized with more,
// otherwise a no-op. Lock must be held.
func (r *Room) callUno(p *models.Player) error {
	if r.Phase != PhasePlaying {
		return ErrGameNotPlaying
	}

	r.challenge = nil

	res := CheckUnoCall(p)
	penalized := false
	if res.Valid {
		p.CallUno()
	} else if res.ShouldPenalize {
		p.AddCards(r.drawWithReshuffle(UnoPenaltyCards))
		p.UnoCalled = false
		penalized = true
	}

	r.touch()
	r.logAction(p.ID, "callUno", map[string]interface{}{"valid": res.Valid, "penalized": penalized})
	r.fireStateEvent(func(viewer *models.Player) Event {
		return Event{Type: EventUnoCalled, Room: r.Code, Player: eventPlayer(p), Message: res.Message, Penalized: penalized}
	})
	return nil
}

// challengeDraw4 resolves the challenge window left by a wild-draw4 play.
// A correct accusation returns the 4 penalty cards to the bottom of the
// draw pile, makes the accused draw them instead, and hands the turn back
// to the challenger. A wrong one costs the challenger 4 more cards on top
// of the mandatory 4. Lock must be held.
func (r *Room) challengeDraw4(p *models.Player) error {
	if r.Phase != PhasePlaying {
		return ErrGameNotPlaying
	}
	ch := r.challenge
	if ch == nil {
		return ErrNoChallenge
	}
	if p != ch.challenger {
		return ErrNotChallenger
	}
	r.challenge = nil

	valid := ValidateDraw4Challenge(ch.priorHand, ch.priorTop, ch.priorColor)
	var penalized *models.Player
	if valid {
		r.removeCardsFromHand(ch.challenger, ch.penalty)
		r.Deck.ReturnToBottom(ch.penalty)
		ch.accused.AddCards(r.drawWithReshuffle(Draw4PenaltyCards))
		ch.accused.UnoCalled = false
		if idx := r.seatIndex(ch.challenger); idx >= 0 {
			r.CurrentPlayerIndex = idx
		}
		penalized = ch.accused
	} else {
		ch.challenger.AddCards(r.drawWithReshuffle(Draw4PenaltyCards))
		ch.challenger.UnoCalled = false
		penalized = ch.challenger
	}

	r.touch()
	r.logAction(p.ID, "challengeDraw4", map[string]interface{}{"valid": valid})
	r.fireStateEvent(func(viewer *models.Player) Event {
		v := valid
		return Event{
			Type:      EventDraw4Challenged,
			Room:      r.Code,
			Player:    eventPlayer(p),
			Valid:     &v,
			Penalized: true,
			Message:   penalized.Name + " draws 4",
		}
	})
	return nil
}

// removeCardsFromHand drops the given cards (matched by ID) from p's hand.
// Lock must be held.
func (r *Room) removeCardsFromHand(p *models.Player, cards []*models.Card) {
	drop := make(map[uuid.UUID]bool, len(cards))
	for _, c := range cards {
		drop[c.ID] = true
	}
	kept := p.Hand[:0]
	for _, c := range p.Hand {
		if !drop[c.ID] {
			kept = append(kept, c)
		}
	}
	p.Hand = kept
}

// setReady toggles the lobby ready flag. Only meaningful while waiting.
// Lock must be held.
func (r *Room) setReady(p *models.Player, ready bool) error {
	if r.Phase != PhaseWaiting {
		return ErrGameAlreadyStarted
	}
	p.Ready = ready
	r.touch()
	r.fireEvent(Event{
		Type:    EventPlayerReady,
		Room:    r.Code,
		Player:  eventPlayer(p),
		Payload: map[string]interface{}{"ready": ready},
	})
	return nil
}

// handleDisconnect marks p disconnected, keeping their seat and hand. A
// running game pauses. Lock must be held.
func (r *Room) handleDisconnect(p *models.Player) {
	if !p.Connected {
		return
	}
	p.Connected = false
	p.Conn = nil
	if r.Phase == PhasePlaying {
		r.Phase = PhasePaused
	}
	r.touch()
	r.log.WithField("player", p.Name).Info("player disconnected")
	r.logAction(p.ID, "disconnect", nil)
	r.fireStateEvent(func(viewer *models.Player) Event {
		return Event{Type: EventPlayerDisconnected, Room: r.Code, Player: eventPlayer(p)}
	})
}

// handleReconnect rebinds p to a new connection and resumes a paused room.
// Resume is unconditional: the room does not track which disconnect caused
// the pause, so any reconnect resumes play even with others still away.
// Lock must be held.
func (r *Room) handleReconnect(p *models.Player, connID uuid.UUID, conn *websocket.Conn) {
	p.ConnID = connID
	p.Conn = conn
	p.Connected = true
	if r.Phase == PhasePaused {
		r.Phase = PhasePlaying
	}
	r.touch()
	r.log.WithField("player", p.Name).Info("player reconnected")
	r.logAction(p.ID, "reconnect", nil)

	// Private full resync for the returning player, then the public notice.
	r.fireEventTo(p, Event{Type: EventRoomJoined, Room: r.Code, Player: eventPlayer(p), State: r.snapshotFor(p.ID)})
	r.fireStateEvent(func(viewer *models.Player) Event {
		return Event{Type: EventPlayerReconnected, Room: r.Code, Player: eventPlayer(p)}
	})
}

// removePlayer takes p out of the room for good. Their cards return to the
// bottom of the draw pile so the full deck stays in circulation. Hosting
// passes to the next seat, and a live game with one player left ends in
// their favor. Lock must be held.
func (r *Room) removePlayer(p *models.Player) {
	idx := r.seatIndex(p)
	if idx < 0 {
		return
	}

	if r.Deck != nil && len(p.Hand) > 0 {
		r.Deck.ReturnToBottom(p.Hand)
		p.Hand = nil
	}
	if r.challenge != nil && (r.challenge.accused == p || r.challenge.challenger == p) {
		r.challenge = nil
	}

	r.Players = append(r.Players[:idx], r.Players[idx+1:]...)
	if idx < r.CurrentPlayerIndex {
		r.CurrentPlayerIndex--
	}
	if n := len(r.Players); n > 0 {
		r.CurrentPlayerIndex = ((r.CurrentPlayerIndex % n) + n) % n
	} else {
		r.CurrentPlayerIndex = 0
	}
	if p.IsHost && len(r.Players) > 0 {
		p.IsHost = false
		r.Players[0].IsHost = true
	}

	r.touch()
	r.log.WithField("player", p.Name).Info("player left")
	r.logAction(p.ID, "leaveRoom", nil)
	r.fireStateEvent(func(viewer *models.Player) Event {
		return Event{Type: EventPlayerLeft, Room: r.Code, Player: eventPlayer(p)}
	})

	if (r.Phase == PhasePlaying || r.Phase == PhasePaused) && len(r.Players) == 1 {
		r.finishGame(r.Players[0])
	}
}

// finishGame settles the round: winner takes the sum of opponents' hand
// scores, everyone's games-played counter ticks, and the room moves to
// ended so the host can start a rematch. Lock must be held.
func (r *Room) finishGame(winner *models.Player) {
	r.Phase = PhaseEnded
	r.Winner = winner
	r.challenge = nil

	points := 0
	for _, p := range r.Players {
		p.GamesPlayed++
		if p != winner {
			points += p.HandScore()
		}
	}
	winner.GamesWon++
	winner.Score += points

	r.log.WithFields(logrus.Fields{"winner": winner.Name, "points": points}).Info("game ended")
	r.logAction(winner.ID, "gameEnded", map[string]interface{}{"points": points})
	r.fireStateEvent(func(viewer *models.Player) Event {
		return Event{Type: EventGameEnded, Room: r.Code, Winner: eventPlayer(winner)}
	})
}

// logAction ships the action to the Redis feed when one is configured.
// Fire-and-forget; a dead cache never blocks gameplay. Lock must be held.
func (r *Room) logAction(playerID uuid.UUID, actionType string, payload map[string]interface{}) {
	r.actionIndex++
	if cache.Rdb == nil {
		return
	}
	rec := cache.RoomActionRecord{
		RoomCode:    r.Code,
		ActionIndex: r.actionIndex,
		PlayerID:    playerID,
		ActionType:  actionType,
		Payload:     payload,
		Timestamp:   time.Now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := cache.PublishRoomAction(ctx, rec); err != nil {
			r.log.WithError(err).Warn("failed to publish room action")
		}
	}()
}
