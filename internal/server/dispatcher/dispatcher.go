// Package dispatcher interprets client frames for each session: handshake,
// login and registration, session join, relay of messages and peer keys,
// friend requests and disconnects.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophrelay/internal/common"
	"github.com/dmitrijs2005/gophrelay/internal/logging"
	"github.com/dmitrijs2005/gophrelay/internal/protocol"
	"github.com/dmitrijs2005/gophrelay/internal/server/accounts"
	"github.com/dmitrijs2005/gophrelay/internal/server/handshake"
	"github.com/dmitrijs2005/gophrelay/internal/server/metrics"
	"github.com/dmitrijs2005/gophrelay/internal/server/presence"
)

// Policy decides what happens when a user joins while already registered.
type Policy string

const (
	// PolicyReplace registers the newest connection; the displaced one stays
	// open but receives nothing further.
	PolicyReplace Policy = "replace"
	// PolicyKeep refuses the join while another connection holds the name.
	PolicyKeep Policy = "keep"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyReplace, PolicyKeep:
		return Policy(s), nil
	}
	return "", fmt.Errorf("unknown duplicate session policy %q", s)
}

type Options struct {
	SecretKey       []byte
	TicketValidity  time.Duration
	DuplicatePolicy Policy
}

type Dispatcher struct {
	store      accounts.Store
	handshakes *handshake.Manager
	registry   *presence.Registry
	notifier   *presence.Notifier
	opts       Options
	logger     logging.Logger
	metrics    *metrics.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
}

func New(store accounts.Store, hs *handshake.Manager, r *presence.Registry, n *presence.Notifier,
	opts Options, logger logging.Logger, m *metrics.Metrics) *Dispatcher {
	if opts.DuplicatePolicy == "" {
		opts.DuplicatePolicy = PolicyReplace
	}
	return &Dispatcher{
		store:      store,
		handshakes: hs,
		registry:   r,
		notifier:   n,
		opts:       opts,
		logger:     logger.With("module", "dispatcher"),
		metrics:    m,
		sessions:   make(map[string]*Session),
	}
}

// Open starts a session for conn.
func (d *Dispatcher) Open(conn presence.Conn, remoteAddr string) *Session {
	s := newSession(conn, d.logger.With("remote_addr", remoteAddr))

	d.mu.Lock()
	d.sessions[conn.ID()] = s
	d.mu.Unlock()

	d.metrics.ConnOpened()
	s.logger.Debug(context.Background(), "session opened")
	return s
}

// Sessions returns the number of open sessions.
func (d *Dispatcher) Sessions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions)
}

func (d *Dispatcher) sessionFor(c presence.Conn) (*Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sessions[c.ID()]
	return s, ok
}

// Handle processes one raw frame. Frames that are malformed or fail their
// precondition are dropped. It returns common.ErrSessionClosed once the
// session is closed; the caller should stop reading.
func (d *Dispatcher) Handle(ctx context.Context, s *Session, raw string) error {
	if s.State() == Closed {
		return common.ErrSessionClosed
	}

	f, err := protocol.Parse(raw)
	if err != nil {
		d.drop(ctx, s, "malformed", err)
		return nil
	}
	if !f.Kind.Known() {
		d.drop(ctx, s, "unknown_kind", fmt.Errorf("%w: kind %q", common.ErrMalformedFrame, f.Kind))
		return nil
	}

	d.metrics.FrameReceived(string(f.Kind))
	s.logger.Debug(ctx, "frame", "kind", string(f.Kind), "receiver", f.Receiver, "sender", f.Sender)

	switch f.Kind {
	case protocol.KindHandshake:
		d.handleHandshake(ctx, s, f)
	case protocol.KindLogin:
		d.handleLogin(ctx, s, f)
	case protocol.KindRegister:
		d.handleRegister(ctx, s, f)
	case protocol.KindJoin:
		d.handleJoin(ctx, s, f)
	case protocol.KindMessage:
		d.handleMessage(ctx, s, f)
	case protocol.KindAddFriend:
		d.handleAddFriend(ctx, s, f)
	case protocol.KindKeyRelay:
		d.handleKeyRelay(ctx, s, f)
	case protocol.KindDisconnect:
		d.handleDisconnect(ctx, s, f)
	}

	if s.State() == Closed {
		return common.ErrSessionClosed
	}
	return nil
}

// Close tears the session down exactly once: handshake state is forgotten,
// the registry entry is removed if it still belongs to this session, friends
// are told the user went offline and the connection is closed. It is safe
// on sessions that never joined.
func (d *Dispatcher) Close(ctx context.Context, s *Session) {
	s.once.Do(func() {
		ctx := context.WithoutCancel(ctx)
		user, joined, displaced := s.close()

		d.mu.Lock()
		if cur, ok := d.sessions[s.conn.ID()]; ok && cur == s {
			delete(d.sessions, s.conn.ID())
		}
		d.mu.Unlock()

		d.handshakes.ForgetOwner(s.ID)

		if joined {
			removed := d.registry.Unregister(user, s.conn)
			if removed || (!displaced && !d.registry.IsOnline(user)) {
				if _, err := d.notifier.Announce(ctx, user, false); err != nil {
					s.logger.Error(ctx, "offline announce failed", "user", user, "error", err)
				}
			}
		}

		if err := s.conn.Close(); err != nil {
			s.logger.Debug(ctx, "close connection", "error", err)
		}
		d.metrics.ConnClosed()
		s.logger.Info(ctx, "session closed", "user", user, "joined", joined)
	})
}

func (d *Dispatcher) drop(ctx context.Context, s *Session, reason string, err error) {
	d.metrics.FrameDropped(reason)
	s.logger.Warn(ctx, "frame dropped", "reason", reason, "error", err)
}

func (d *Dispatcher) reply(ctx context.Context, s *Session, frame string) {
	if err := s.conn.Send(ctx, frame); err != nil {
		s.logger.Warn(ctx, "reply failed", "error", err)
	}
}
