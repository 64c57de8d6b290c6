package game

import (
	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/jklem/uno/internal/models"
)

// EventType names an outbound server-to-client message.
type EventType string

const (
	EventConnected          EventType = "connected"
	EventRoomCreated        EventType = "roomCreated"
	EventRoomJoined         EventType = "roomJoined"
	EventPlayerJoined       EventType = "playerJoined"
	EventPlayerLeft         EventType = "playerLeft"
	EventPlayerReady        EventType = "playerReady"
	EventGameStarted        EventType = "gameStarted"
	EventCardPlayed         EventType = "cardPlayed"
	EventCardDrawn          EventType = "cardDrawn"
	EventUnoCalled          EventType = "unoCalled"
	EventGameEnded          EventType = "gameEnded"
	EventInvalidMove        EventType = "invalidMove"
	EventError              EventType = "error"
	EventPlayerDisconnected EventType = "playerDisconnected"
	EventPlayerReconnected  EventType = "playerReconnected"
	EventDraw4Challenged    EventType = "draw4Challenged"
	EventPong               EventType = "pong"
)

// EventPlayer identifies a player inside an event payload.
type EventPlayer struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Event is an outbound message broadcast to room participants. State is
// viewer-specific (own hand revealed), so state-carrying events are sent per
// player rather than once per room.
type Event struct {
	Type      EventType    `json:"type"`
	Room      string       `json:"room,omitempty"`
	Player    *EventPlayer `json:"player,omitempty"`
	Card      *models.Card `json:"card,omitempty"`
	Winner    *EventPlayer `json:"winner,omitempty"`
	Message   string       `json:"message,omitempty"`
	Penalized bool         `json:"penalized,omitempty"`
	Valid     *bool        `json:"valid,omitempty"`
	State     *RoomState   `json:"state,omitempty"`

	Payload map[string]interface{} `json:"payload,omitempty"`
}

// BroadcastTarget pairs a player with their live connection.
type BroadcastTarget struct {
	PlayerID uuid.UUID
	Conn     *websocket.Conn
}

// BroadcastFunc delivers an event to a set of targets. Implementations must
// not call back into the room or manager: it is invoked with the room lock
// held and is expected to hand the write off asynchronously.
type BroadcastFunc func(targets []BroadcastTarget, ev Event)

func eventPlayer(p *models.Player) *EventPlayer {
	if p == nil {
		return nil
	}
	return &EventPlayer{ID: p.ID, Name: p.Name}
}
