// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jklem/uno/internal/game"
	"github.com/jklem/uno/internal/middleware"
)

const writeTimeout = 3 * time.Second

// ClientMessage is the envelope every inbound frame must fit.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type createRoomPayload struct {
	Name     string        `json:"name"`
	Settings game.Settings `json:"settings"`
}

type joinRoomPayload struct {
	RoomID string `json:"roomId"`
	Name   string `json:"name"`
}

type roomOnlyPayload struct {
	RoomID string `json:"roomId"`
}

type playCardPayload struct {
	RoomID      string `json:"roomId"`
	CardIndex   int    `json:"cardIndex"`
	ChosenColor string `json:"chosenColor,omitempty"`
}

type setReadyPayload struct {
	RoomID string `json:"roomId"`
	Ready  bool   `json:"ready"`
}

type reconnectPayload struct {
	OldConnectionID string `json:"oldConnectionId"`
}

// WSHandler upgrades /ws requests and runs the per-connection read loop.
// Each accepted socket gets a fresh connection ID; the manager maps it to a
// seat once the client creates or joins a room.
func WSHandler(logger *logrus.Logger, manager *game.RoomManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.WithError(err).Warn("websocket accept failed")
			return
		}
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		connID := uuid.New()
		ctx := r.Context()

		// The client needs its connection ID to reconnect later; nothing
		// else ever carries it, so announce it up front.
		sendEvent(ctx, logger, conn, game.Event{
			Type:    game.EventConnected,
			Payload: map[string]interface{}{"connectionId": connID.String()},
		})

		var readErr error
		defer func() {
			manager.HandleDisconnect(connID)
			middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, readErr)
			conn.Close(websocket.StatusNormalClosure, "closing")
		}()

		for {
			msgType, data, err := conn.Read(ctx)
			if err != nil {
				readErr = err
				return
			}
			if msgType != websocket.MessageText {
				continue
			}

			var msg ClientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				sendEvent(ctx, logger, conn, game.Event{Type: game.EventError, Message: "malformed message"})
				continue
			}

			handleMessage(ctx, logger, manager, conn, connID, msg)
		}
	}
}

// handleMessage dispatches one frame. A panic in an action is contained to
// the frame that caused it.
func handleMessage(ctx context.Context, logger *logrus.Logger, manager *game.RoomManager, conn *websocket.Conn, connID uuid.UUID, msg ClientMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.WithFields(logrus.Fields{"type": msg.Type, "panic": rec}).Error("panic handling message")
			sendEvent(ctx, logger, conn, game.Event{Type: game.EventError, Message: "internal server error"})
		}
	}()

	var err error
	switch msg.Type {
	case "ping":
		sendEvent(ctx, logger, conn, game.Event{Type: game.EventPong})
		return

	case "createRoom":
		var p createRoomPayload
		if err = json.Unmarshal(msg.Payload, &p); err == nil {
			_, _, err = manager.CreateRoom(p.Name, p.Settings, connID, conn)
		}

	case "joinRoom":
		var p joinRoomPayload
		if err = json.Unmarshal(msg.Payload, &p); err == nil {
			_, err = manager.JoinRoom(p.RoomID, p.Name, connID, conn)
		}

	case "startGame":
		var p roomOnlyPayload
		if err = json.Unmarshal(msg.Payload, &p); err == nil {
			err = manager.StartGame(p.RoomID, connID)
		}

	case "playCard":
		var p playCardPayload
		if err = json.Unmarshal(msg.Payload, &p); err == nil {
			err = manager.PlayCard(p.RoomID, connID, p.CardIndex, p.ChosenColor)
		}

	case "drawCard":
		var p roomOnlyPayload
		if err = json.Unmarshal(msg.Payload, &p); err == nil {
			err = manager.DrawCard(p.RoomID, connID)
		}

	case "callUno":
		var p roomOnlyPayload
		if err = json.Unmarshal(msg.Payload, &p); err == nil {
			err = manager.CallUno(p.RoomID, connID)
		}

	case "challengeDraw4":
		var p roomOnlyPayload
		if err = json.Unmarshal(msg.Payload, &p); err == nil {
			err = manager.ChallengeDraw4(p.RoomID, connID)
		}

	case "setReady":
		var p setReadyPayload
		if err = json.Unmarshal(msg.Payload, &p); err == nil {
			err = manager.SetReady(p.RoomID, connID, p.Ready)
		}

	case "leaveRoom":
		var p roomOnlyPayload
		if err = json.Unmarshal(msg.Payload, &p); err == nil {
			err = manager.LeaveRoom(p.RoomID, connID)
		}

	case "reconnect":
		var p reconnectPayload
		if err = json.Unmarshal(msg.Payload, &p); err == nil {
			var oldID uuid.UUID
			oldID, err = uuid.Parse(p.OldConnectionID)
			if err != nil {
				err = game.ErrPlayerNotFound
			} else {
				_, _, err = manager.HandleReconnect(oldID, connID, conn)
			}
		}

	default:
		sendEvent(ctx, logger, conn, game.Event{Type: game.EventError, Message: "unknown message type: " + msg.Type})
		return
	}

	if err != nil {
		sendActionError(ctx, logger, conn, err)
	}
}

// sendActionError maps rule violations to invalidMove and everything else
// to a generic error event.
func sendActionError(ctx context.Context, logger *logrus.Logger, conn *websocket.Conn, err error) {
	evType := game.EventError
	if game.IsRuleViolation(err) {
		evType = game.EventInvalidMove
	}
	sendEvent(ctx, logger, conn, game.Event{Type: evType, Message: err.Error()})
}

func sendEvent(ctx context.Context, logger *logrus.Logger, conn *websocket.Conn, ev game.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.WithError(err).Error("failed to marshal event")
		return
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, data); err != nil {
		logger.WithError(err).Debug("failed to write event")
	}
}

// WSBroadcaster adapts async socket writes to the game package's broadcast
// hook. The event is marshaled once; writes fan out on goroutines so a slow
// client never stalls a room action (the caller holds the room lock).
func WSBroadcaster(logger *logrus.Logger) game.BroadcastFunc {
	return func(targets []game.BroadcastTarget, ev game.Event) {
		data, err := json.Marshal(ev)
		if err != nil {
			logger.WithError(err).Error("failed to marshal broadcast event")
			return
		}
		for _, t := range targets {
			if t.Conn == nil {
				continue
			}
			conn := t.Conn
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
				defer cancel()
				if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
					logger.WithError(err).Debug("broadcast write failed")
				}
			}()
		}
	}
}
