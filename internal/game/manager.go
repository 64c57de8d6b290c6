// internal/game/manager.go
package game

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jklem/uno/internal/models"
)

const (
	defaultSweepInterval = time.Minute
	defaultIdleTimeout   = 30 * time.Minute
)

// ManagerConfig tunes the room registry's housekeeping.
type ManagerConfig struct {
	// SweepInterval is how often idle rooms are scanned for.
	SweepInterval time.Duration
	// IdleTimeout is how long a room may sit without any action before
	// the sweeper destroys it.
	IdleTimeout time.Duration
}

// connRoute maps a live connection to the seat it controls.
type connRoute struct {
	roomCode string
	playerID uuid.UUID
}

// RoomManager owns every room and routes connection-scoped actions to the
// right seat. Its own mutex guards only the registry maps and is never held
// while a room's lock is taken, so rooms stay independent of one another.
type RoomManager struct {
	mu    sync.Mutex
	rooms map[string]*Room
	conns map[uuid.UUID]connRoute

	broadcast BroadcastFunc
	cfg       ManagerConfig
	rng       *rand.Rand
	log       *logrus.Logger
	done      chan struct{}
}

// NewRoomManager builds an empty registry. Call StartSweeper to begin
// reclaiming idle rooms.
func NewRoomManager(cfg ManagerConfig, log *logrus.Logger, broadcast BroadcastFunc) *RoomManager {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	return &RoomManager{
		rooms:     make(map[string]*Room),
		conns:     make(map[uuid.UUID]connRoute),
		broadcast: broadcast,
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		log:       log,
		done:      make(chan struct{}),
	}
}

// StartSweeper launches the idle-room reclamation loop.
func (m *RoomManager) StartSweeper() {
	go func() {
		ticker := time.NewTicker(m.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-m.done:
				return
			case <-ticker.C:
				m.sweepOnce()
			}
		}
	}()
}

// Stop halts the sweeper. Rooms themselves are left alone.
func (m *RoomManager) Stop() {
	close(m.done)
}

// sweepOnce destroys every room idle past the timeout. Room locks are taken
// one at a time, never under the registry lock.
func (m *RoomManager) sweepOnce() {
	m.mu.Lock()
	snapshot := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		snapshot = append(snapshot, r)
	}
	m.mu.Unlock()

	cutoff := time.Now().Add(-m.cfg.IdleTimeout)
	for _, r := range snapshot {
		r.mu.Lock()
		idle := r.LastActivity.Before(cutoff)
		r.mu.Unlock()
		if idle {
			m.log.WithField("room", r.Code).Info("sweeping idle room")
			m.destroyRoom(r.Code, false)
		}
	}
}

// destroyRoom unregisters the room and every connection routed to it, and
// marks the room dead so a joiner holding a stale pointer is turned away.
// With onlyIfEmpty set, a room that gained a player since the caller last
// looked is left alone; the emptiness re-check happens under both locks, so
// no seat can slip in between the decision and the teardown.
func (m *RoomManager) destroyRoom(code string, onlyIfEmpty bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[code]
	if !ok {
		return false
	}
	r.mu.Lock()
	if onlyIfEmpty && len(r.Players) > 0 {
		r.mu.Unlock()
		return false
	}
	r.dead = true
	r.mu.Unlock()

	delete(m.rooms, code)
	for connID, route := range m.conns {
		if route.roomCode == code {
			delete(m.conns, connID)
		}
	}
	return true
}

// newRoomCodeLocked generates a code not already in use. Registry lock must
// be held.
func (m *RoomManager) newRoomCodeLocked() string {
	for {
		b := make([]byte, roomCodeLength)
		for i := range b {
			b[i] = roomCodeChars[m.rng.Intn(len(roomCodeChars))]
		}
		code := string(b)
		if _, taken := m.rooms[code]; !taken {
			return code
		}
	}
}

// RoomCount reports how many rooms are live.
func (m *RoomManager) RoomCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// CreateRoom makes a new room with the caller as connected host.
func (m *RoomManager) CreateRoom(name string, settings Settings, connID uuid.UUID, conn *websocket.Conn) (*Room, *models.Player, error) {
	name = NormalizeName(name)
	if !ValidPlayerName(name) {
		return nil, nil, ErrInvalidName
	}
	if settings.MaxPlayers == 0 {
		settings.MaxPlayers = MaxPlayers
	}
	if settings.MaxPlayers < MinPlayers {
		settings.MaxPlayers = MinPlayers
	}
	if settings.MaxPlayers > MaxPlayers {
		settings.MaxPlayers = MaxPlayers
	}

	host := &models.Player{
		ID:        uuid.New(),
		ConnID:    connID,
		Name:      name,
		IsHost:    true,
		Connected: true,
		Conn:      conn,
	}

	m.mu.Lock()
	code := m.newRoomCodeLocked()
	r := newRoom(code, settings, m.log.WithField("room", code))
	r.Broadcast = m.broadcast
	r.Players = append(r.Players, host)
	m.rooms[code] = r
	m.conns[connID] = connRoute{roomCode: code, playerID: host.ID}
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{"room": code, "host": name}).Info("room created")

	r.mu.Lock()
	r.logAction(host.ID, "createRoom", map[string]interface{}{"maxPlayers": settings.MaxPlayers})
	r.fireEventTo(host, Event{Type: EventRoomCreated, Room: code, Player: eventPlayer(host), State: r.snapshotFor(host.ID)})
	r.mu.Unlock()

	return r, host, nil
}

// JoinRoom seats a new player in an existing waiting room.
func (m *RoomManager) JoinRoom(code, name string, connID uuid.UUID, conn *websocket.Conn) (*models.Player, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !ValidRoomCode(code) {
		return nil, ErrInvalidRoomCode
	}
	name = NormalizeName(name)
	if !ValidPlayerName(name) {
		return nil, ErrInvalidName
	}

	m.mu.Lock()
	r, ok := m.rooms[code]
	m.mu.Unlock()
	if !ok {
		return nil, ErrRoomNotFound
	}

	p := &models.Player{
		ID:        uuid.New(),
		ConnID:    connID,
		Name:      name,
		Connected: true,
		Conn:      conn,
	}

	r.mu.Lock()
	err := r.seatPlayer(p)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.conns[connID] = connRoute{roomCode: code, playerID: p.ID}
	m.mu.Unlock()

	return p, nil
}

// resolve maps a connection plus the room code it claims to the room and
// seat it actually controls.
func (m *RoomManager) resolve(code string, connID uuid.UUID) (*Room, uuid.UUID, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	m.mu.Lock()
	route, ok := m.conns[connID]
	if !ok || route.roomCode != code {
		m.mu.Unlock()
		return nil, uuid.Nil, ErrRoomNotFound
	}
	r, ok := m.rooms[route.roomCode]
	m.mu.Unlock()
	if !ok {
		return nil, uuid.Nil, ErrRoomNotFound
	}
	return r, route.playerID, nil
}

// withPlayer runs fn against the routed room and seat under the room lock.
func (m *RoomManager) withPlayer(code string, connID uuid.UUID, fn func(r *Room, p *models.Player) error) error {
	r, playerID, err := m.resolve(code, connID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.playerByID(playerID)
	if p == nil {
		return ErrPlayerNotFound
	}
	return fn(r, p)
}

// StartGame begins (or restarts) the game; host only.
func (m *RoomManager) StartGame(code string, connID uuid.UUID) error {
	return m.withPlayer(code, connID, func(r *Room, p *models.Player) error {
		return r.start(p)
	})
}

// PlayCard plays the card at cardIndex in the caller's hand.
func (m *RoomManager) PlayCard(code string, connID uuid.UUID, cardIndex int, chosenColor string) error {
	return m.withPlayer(code, connID, func(r *Room, p *models.Player) error {
		return r.playCard(p, cardIndex, models.Color(chosenColor))
	})
}

// DrawCard draws one card for the caller and passes the turn.
func (m *RoomManager) DrawCard(code string, connID uuid.UUID) error {
	return m.withPlayer(code, connID, func(r *Room, p *models.Player) error {
		return r.drawCard(p)
	})
}

// CallUno registers an UNO call for the caller.
func (m *RoomManager) CallUno(code string, connID uuid.UUID) error {
	return m.withPlayer(code, connID, func(r *Room, p *models.Player) error {
		return r.callUno(p)
	})
}

// ChallengeDraw4 lets the penalized player contest the last wild-draw4.
func (m *RoomManager) ChallengeDraw4(code string, connID uuid.UUID) error {
	return m.withPlayer(code, connID, func(r *Room, p *models.Player) error {
		return r.challengeDraw4(p)
	})
}

// SetReady toggles the caller's lobby ready flag.
func (m *RoomManager) SetReady(code string, connID uuid.UUID, ready bool) error {
	return m.withPlayer(code, connID, func(r *Room, p *models.Player) error {
		return r.setReady(p, ready)
	})
}

// LeaveRoom removes the caller's seat permanently. An emptied room is
// destroyed immediately rather than waiting for the sweep.
func (m *RoomManager) LeaveRoom(code string, connID uuid.UUID) error {
	r, playerID, err := m.resolve(code, connID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.conns, connID)
	m.mu.Unlock()

	r.mu.Lock()
	p := r.playerByID(playerID)
	if p != nil {
		r.removePlayer(p)
	}
	r.mu.Unlock()

	if m.destroyRoom(r.Code, true) {
		m.log.WithField("room", r.Code).Info("destroyed empty room")
	}
	return nil
}

// HandleDisconnect marks the seat behind connID as away. The route stays
// registered so a later reconnect can find the seat by the old connection
// ID.
func (m *RoomManager) HandleDisconnect(connID uuid.UUID) {
	m.mu.Lock()
	route, ok := m.conns[connID]
	var r *Room
	if ok {
		r = m.rooms[route.roomCode]
	}
	m.mu.Unlock()
	if r == nil {
		return
	}

	r.mu.Lock()
	if p := r.playerByID(route.playerID); p != nil {
		r.handleDisconnect(p)
	}
	r.mu.Unlock()
}

// HandleReconnect rebinds the seat behind oldConnID to a fresh connection.
// The routing swap is atomic under the registry lock, so no action from the
// old connection can land after the new one takes over.
func (m *RoomManager) HandleReconnect(oldConnID, newConnID uuid.UUID, conn *websocket.Conn) (*Room, *models.Player, error) {
	m.mu.Lock()
	route, ok := m.conns[oldConnID]
	if !ok {
		m.mu.Unlock()
		return nil, nil, ErrPlayerNotFound
	}
	r, live := m.rooms[route.roomCode]
	if !live {
		delete(m.conns, oldConnID)
		m.mu.Unlock()
		return nil, nil, ErrRoomNotFound
	}
	delete(m.conns, oldConnID)
	m.conns[newConnID] = route
	m.mu.Unlock()

	r.mu.Lock()
	p := r.playerByID(route.playerID)
	if p == nil {
		r.mu.Unlock()
		return nil, nil, ErrPlayerNotFound
	}
	r.handleReconnect(p, newConnID, conn)
	r.mu.Unlock()

	return r, p, nil
}
