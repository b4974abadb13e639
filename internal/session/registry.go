package session

import (
	"sync"
	"time"

	"github.com/rocketscienceinc/xiangqi-backend/internal/entity"
	"github.com/rocketscienceinc/xiangqi-backend/internal/pkg"
)

// Conn is the transport handle of a session.
type Conn interface {
	// Send queues data without blocking and reports whether it was accepted.
	Send(data []byte) bool
	Close() error
}

// Binding is the room slot a session currently holds.
type Binding struct {
	RoomID string
	Color  entity.Color
	Token  string
}

func (that Binding) Bound() bool {
	return that.RoomID != ""
}

type Session struct {
	ID              string
	Conn            Conn
	Binding         Binding
	LastHeartbeatAt time.Time
}

// Registry maps live connections to sessions and keeps a room/color -> session index.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	slots    map[string]map[entity.Color]string
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		slots:    make(map[string]map[entity.Color]string),
		now:      time.Now,
	}
}

// Open - allocates a session for a freshly connected transport.
func (that *Registry) Open(conn Conn) *Session {
	that.mu.Lock()
	defer that.mu.Unlock()

	session := &Session{
		ID:              pkg.GenerateNewSessionID(),
		Conn:            conn,
		LastHeartbeatAt: that.now(),
	}
	that.sessions[session.ID] = session

	return session
}

// Touch - refreshes the heartbeat timestamp.
func (that *Registry) Touch(sessionID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if session, ok := that.sessions[sessionID]; ok {
		session.LastHeartbeatAt = that.now()
	}
}

// Bind - points the room slot at sessionID. A session that held the slot before is unbound.
func (that *Registry) Bind(sessionID, roomID string, color entity.Color, token string) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	session, ok := that.sessions[sessionID]
	if !ok {
		return false
	}

	that.unbindLocked(session)

	if previousID, ok := that.slots[roomID][color]; ok && previousID != sessionID {
		if previous, ok := that.sessions[previousID]; ok {
			previous.Binding = Binding{}
		}
	}

	if that.slots[roomID] == nil {
		that.slots[roomID] = make(map[entity.Color]string, 2)
	}

	that.slots[roomID][color] = sessionID
	session.Binding = Binding{RoomID: roomID, Color: color, Token: token}

	return true
}

func (that *Registry) Unbind(sessionID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if session, ok := that.sessions[sessionID]; ok {
		that.unbindLocked(session)
	}
}

// Get - returns a snapshot of the session.
func (that *Registry) Get(sessionID string) (Session, bool) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	session, ok := that.sessions[sessionID]
	if !ok {
		return Session{}, false
	}

	return *session, true
}

// Remove - forgets the session. Only the first call for an id reports true,
// which makes disconnect handling idempotent.
func (that *Registry) Remove(sessionID string) (Session, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	session, ok := that.sessions[sessionID]
	if !ok {
		return Session{}, false
	}

	snapshot := *session
	that.unbindLocked(session)
	delete(that.sessions, sessionID)

	return snapshot, true
}

// Peers - returns the connections bound to roomID, except exclude.
func (that *Registry) Peers(roomID, exclude string) []Conn {
	that.mu.RLock()
	defer that.mu.RUnlock()

	peers := make([]Conn, 0, 2)
	for _, sessionID := range that.slots[roomID] {
		if sessionID == exclude {
			continue
		}

		if session, ok := that.sessions[sessionID]; ok {
			peers = append(peers, session.Conn)
		}
	}

	return peers
}

// Expired - lists sessions silent for longer than deadAfter.
func (that *Registry) Expired(deadAfter time.Duration) []string {
	that.mu.RLock()
	defer that.mu.RUnlock()

	now := that.now()

	var expired []string
	for id, session := range that.sessions {
		if now.Sub(session.LastHeartbeatAt) > deadAfter {
			expired = append(expired, id)
		}
	}

	return expired
}

func (that *Registry) unbindLocked(session *Session) {
	binding := session.Binding
	if !binding.Bound() {
		return
	}

	if that.slots[binding.RoomID][binding.Color] == session.ID {
		delete(that.slots[binding.RoomID], binding.Color)

		if len(that.slots[binding.RoomID]) == 0 {
			delete(that.slots, binding.RoomID)
		}
	}

	session.Binding = Binding{}
}
