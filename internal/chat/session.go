package chat

import (
	"sync"

	"github.com/nfrund/roomchat/internal/auth"
	"github.com/nfrund/roomchat/internal/rooms"
)

// Conn is the transport side of a session.
type Conn interface {
	rooms.Member
}

// ConnMeta is handshake information recorded on the online-user row.
type ConnMeta struct {
	RemoteAddr string
	UserAgent  string
}

// state is the lifecycle position of a session. The concrete types are the
// only states a session can be in; a session in a room always knows which.
type state interface {
	isState()
}

type stateConnected struct{}

type stateInRoom struct {
	roomID string
}

type stateClosed struct{}

func (stateConnected) isState() {}
func (stateInRoom) isState()    {}
func (stateClosed) isState()    {}

// Session is one authenticated connection. Its events are handled one at a
// time; different sessions are handled concurrently.
type Session struct {
	conn     Conn
	identity auth.Identity
	meta     ConnMeta

	mu    sync.Mutex
	state state
}

// ID returns the connection id.
func (s *Session) ID() string { return s.conn.ID() }

// UserID returns the authenticated user.
func (s *Session) UserID() string { return s.identity.UserID }

// Room returns the current room, if any.
func (s *Session) Room() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.state.(stateInRoom); ok {
		return st.roomID, true
	}
	return "", false
}

func (s *Session) send(frame []byte) {
	s.conn.Send(frame)
}
