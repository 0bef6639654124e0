package dispatcher

import (
	"sync"

	"github.com/dmitrijs2005/gophrelay/internal/logging"
	"github.com/dmitrijs2005/gophrelay/internal/server/presence"
	"github.com/google/uuid"
)

// State is the authentication state of a session.
type State int

const (
	Unauthenticated State = iota
	Authenticated
	Closed
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Session is the server side of one client connection.
type Session struct {
	ID     string
	conn   presence.Conn
	logger logging.Logger

	mu        sync.Mutex
	state     State
	connID    string
	username  string
	joined    bool
	displaced bool

	once sync.Once
}

func newSession(conn presence.Conn, logger logging.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		ID:     id,
		conn:   conn,
		logger: logger.With("session_id", id),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UserName is empty until the session authenticates.
func (s *Session) UserName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

func (s *Session) Authenticated() bool {
	return s.State() == Authenticated
}

// identity is the name the session currently answers to: its username once
// authenticated, the handshake connection id before that.
func (s *Session) identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Authenticated {
		return s.username
	}
	return s.connID
}

func (s *Session) isAuthenticatedAs(user string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Authenticated && s.username == user
}

// authenticate binds the session to user. A joined session cannot switch
// to another name.
func (s *Session) authenticate(user string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed || (s.joined && s.username != user) {
		return false
	}
	s.state = Authenticated
	s.username = user
	return true
}

func (s *Session) setConnID(id string) {
	s.mu.Lock()
	s.connID = id
	s.mu.Unlock()
}

func (s *Session) markJoined() {
	s.mu.Lock()
	s.joined = true
	s.displaced = false
	s.mu.Unlock()
}

func (s *Session) markDisplaced() {
	s.mu.Lock()
	s.displaced = true
	s.mu.Unlock()
}

// close moves the session to Closed and returns what cleanup needs.
func (s *Session) close() (user string, joined, displaced bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Closed
	return s.username, s.joined, s.displaced
}
