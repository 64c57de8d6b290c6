// internal/game/sync_state.go
package game

import (
	"github.com/google/uuid"

	"github.com/jklem/uno/internal/models"
)

// PlayerState is one seat as seen by a particular viewer. Other players'
// hands appear only as counts; the viewer's own hand is revealed in order,
// since cards are addressed by index in play actions.
type PlayerState struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	IsHost      bool           `json:"isHost"`
	Connected   bool           `json:"connected"`
	Ready       bool           `json:"ready"`
	HandSize    int            `json:"handSize"`
	UnoCalled   bool           `json:"unoCalled"`
	GamesPlayed int            `json:"gamesPlayed"`
	GamesWon    int            `json:"gamesWon"`
	Score       int            `json:"score"`
	Hand        []*models.Card `json:"hand,omitempty"`
}

// RoomState is the snapshot broadcast with state-carrying events and sent
// whole on reconnect.
type RoomState struct {
	Room            string        `json:"room"`
	Phase           Phase         `json:"phase"`
	Players         []PlayerState `json:"players"`
	CurrentPlayerID uuid.UUID     `json:"currentPlayerId"`
	CurrentIndex    int           `json:"currentPlayerIndex"`
	Direction       int           `json:"direction"`
	CurrentColor    models.Color  `json:"currentColor,omitempty"`
	ChosenColor     models.Color  `json:"chosenColor,omitempty"`
	TopCard         *models.Card  `json:"topCard,omitempty"`
	TurnNumber      int           `json:"turnNumber"`
	DrawPileSize    int           `json:"drawPileSize"`
	DiscardPileSize int           `json:"discardPileSize"`
	Winner          *EventPlayer  `json:"winner,omitempty"`
}

// snapshotFor builds the room state as seen by viewer. Lock must be held.
func (r *Room) snapshotFor(viewer uuid.UUID) *RoomState {
	st := &RoomState{
		Room:         r.Code,
		Phase:        r.Phase,
		CurrentIndex: r.CurrentPlayerIndex,
		Direction:    r.Direction,
		CurrentColor: r.CurrentColor,
		ChosenColor:  r.ChosenColor,
		TurnNumber:   r.TurnNumber,
		Winner:       eventPlayer(r.Winner),
	}
	if r.Deck != nil {
		st.TopCard = r.Deck.Top()
		st.DrawPileSize = r.Deck.DrawCount()
		st.DiscardPileSize = r.Deck.DiscardCount()
	}
	if r.CurrentPlayerIndex >= 0 && r.CurrentPlayerIndex < len(r.Players) {
		st.CurrentPlayerID = r.Players[r.CurrentPlayerIndex].ID
	}
	for _, p := range r.Players {
		ps := PlayerState{
			ID:          p.ID,
			Name:        p.Name,
			IsHost:      p.IsHost,
			Connected:   p.Connected,
			Ready:       p.Ready,
			HandSize:    len(p.Hand),
			UnoCalled:   p.UnoCalled,
			GamesPlayed: p.GamesPlayed,
			GamesWon:    p.GamesWon,
			Score:       p.Score,
		}
		if p.ID == viewer {
			ps.Hand = make([]*models.Card, len(p.Hand))
			copy(ps.Hand, p.Hand)
		}
		st.Players = append(st.Players, ps)
	}
	return st
}
