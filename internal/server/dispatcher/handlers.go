package dispatcher

import (
	"context"
	"errors"
	"math/big"

	"github.com/dmitrijs2005/gophrelay/internal/common"
	"github.com/dmitrijs2005/gophrelay/internal/cryptox"
	"github.com/dmitrijs2005/gophrelay/internal/protocol"
	"github.com/dmitrijs2005/gophrelay/internal/server/auth"
)

// handleHandshake answers "s;;<conn id>;<client public>" with the server
// public value and keeps the derived secret for the following l or r frame.
func (d *Dispatcher) handleHandshake(ctx context.Context, s *Session, f protocol.Frame) {
	connID := f.Sender
	if connID == "" {
		d.drop(ctx, s, "handshake", common.ErrMalformedFrame)
		return
	}

	public, err := d.handshakes.Begin(connID, s.ID)
	if err != nil {
		d.metrics.Handshake(false)
		d.drop(ctx, s, "handshake", err)
		return
	}
	if _, err := d.handshakes.Complete(connID, s.ID, f.Payload); err != nil {
		d.handshakes.Forget(connID)
		d.metrics.Handshake(false)
		d.drop(ctx, s, "handshake", err)
		return
	}

	s.setConnID(connID)
	d.metrics.Handshake(true)
	d.reply(ctx, s, public)
}

// credentials decrypts the payload of an l or r frame. ok is false when the
// frame must be dropped because no secret is held for the connection id.
func (d *Dispatcher) credentials(ctx context.Context, s *Session, f protocol.Frame) (user, password string, ok bool, err error) {
	secret, found := d.handshakes.Secret(f.Sender, s.ID)
	if !found {
		d.drop(ctx, s, string(f.Kind), common.ErrNoSecret)
		return "", "", false, nil
	}

	user, password, err = decryptCredentials(f.Payload, secret)
	return user, password, true, err
}

func decryptCredentials(payload string, secret *big.Int) (string, string, error) {
	plaintext, err := cryptox.Decrypt(payload, secret)
	if err != nil {
		return "", "", err
	}
	return protocol.Credentials(plaintext)
}

func (d *Dispatcher) handleLogin(ctx context.Context, s *Session, f protocol.Frame) {
	user, password, ok, err := d.credentials(ctx, s, f)
	if !ok {
		return
	}
	if err != nil {
		s.logger.Warn(ctx, "login payload rejected", "error", err)
		d.metrics.Login(false)
		d.reply(ctx, s, protocol.ReplyFail)
		return
	}

	user = protocol.Canonical(user)
	valid, err := d.store.VerifyUser(ctx, user, password)
	if err != nil {
		s.logger.Error(ctx, "verify user", "user", user, "error", err)
	}
	if !valid || !s.authenticate(user) {
		s.logger.Info(ctx, "login failed", "user", user)
		d.metrics.Login(false)
		d.reply(ctx, s, protocol.ReplyFail)
		return
	}

	d.handshakes.Forget(f.Sender)
	d.metrics.Login(true)
	s.logger.Info(ctx, "login", "user", user)
	d.reply(ctx, s, protocol.ReplyOK)

	ticket, err := auth.GenerateTicket(user, d.opts.SecretKey, d.opts.TicketValidity)
	if err != nil {
		s.logger.Error(ctx, "issue ticket", "user", user, "error", err)
		return
	}
	d.reply(ctx, s, protocol.TicketNotice(user, ticket))
}

// handleRegister keeps the handshake secret so the client can log in on the
// same connection afterwards.
func (d *Dispatcher) handleRegister(ctx context.Context, s *Session, f protocol.Frame) {
	user, password, ok, err := d.credentials(ctx, s, f)
	if !ok {
		return
	}
	if err == nil {
		err = d.store.AddUser(ctx, user, password)
	}

	switch {
	case err == nil:
		s.logger.Info(ctx, "registered", "user", protocol.Canonical(user))
	case errors.Is(err, common.ErrorAlreadyExists), errors.Is(err, common.ErrInvalidUsername):
		s.logger.Info(ctx, "registration refused", "user", user, "error", err)
	default:
		s.logger.Error(ctx, "registration failed", "user", user, "error", err)
	}

	d.metrics.Registration(err == nil)
	d.reply(ctx, s, protocol.Reply(err == nil))
}

// authorize reports whether s may act as user: either it authenticated as
// user, or ticket proves a login made on another connection.
func (d *Dispatcher) authorize(s *Session, user, ticket string) bool {
	if s.isAuthenticatedAs(user) {
		return true
	}
	if ticket == "" {
		return false
	}
	holder, err := auth.UserNameFromTicket(ticket, d.opts.SecretKey)
	return err == nil && holder == user
}

func (d *Dispatcher) handleJoin(ctx context.Context, s *Session, f protocol.Frame) {
	user := protocol.Canonical(f.Sender)
	if !d.authorize(s, user, f.Payload) || !s.authenticate(user) {
		d.drop(ctx, s, "join", common.ErrNotAuthenticated)
		return
	}

	switch d.opts.DuplicatePolicy {
	case PolicyKeep:
		if !d.registry.RegisterIfAbsent(user, s.conn) {
			s.logger.Info(ctx, "join refused, already online", "user", user)
			d.reply(ctx, s, protocol.ReplyFail)
			return
		}
	default:
		if prev, replaced := d.registry.Register(user, s.conn); replaced {
			if old, ok := d.sessionFor(prev); ok {
				old.markDisplaced()
			}
			s.logger.Info(ctx, "join replaced an existing session", "user", user, "previous_conn", prev.ID())
		}
	}
	s.markJoined()

	snapshot, err := d.notifier.Snapshot(ctx, user)
	if err != nil {
		s.logger.Error(ctx, "presence snapshot", "user", user, "error", err)
		d.reply(ctx, s, protocol.ReplyFail)
	} else {
		raw, err := protocol.EncodeSnapshot(snapshot)
		if err != nil {
			s.logger.Error(ctx, "encode snapshot", "error", err)
			raw = protocol.ReplyFail
		}
		d.reply(ctx, s, raw)
	}

	reached, err := d.notifier.Announce(ctx, user, true)
	if err != nil {
		s.logger.Error(ctx, "online announce failed", "user", user, "error", err)
	}
	s.logger.Info(ctx, "joined", "user", user, "friends_notified", reached)
}

// sender returns the canonical sender of f if s is authenticated as it.
func (d *Dispatcher) sender(ctx context.Context, s *Session, f protocol.Frame) (string, bool) {
	user := protocol.Canonical(f.Sender)
	if !s.isAuthenticatedAs(user) {
		d.drop(ctx, s, string(f.Kind), common.ErrNotAuthenticated)
		return "", false
	}
	return user, true
}

// handleMessage relays an opaque payload. The receiver sees it on the
// channel named after the sender; the sender's registered connection, which
// need not be the one that sent the frame, gets its own copy on the
// receiver's channel. Nothing is delivered when the receiver is offline.
func (d *Dispatcher) handleMessage(ctx context.Context, s *Session, f protocol.Frame) {
	from, ok := d.sender(ctx, s, f)
	if !ok {
		return
	}
	to := protocol.Canonical(f.Receiver)
	if to == "" || to == from {
		d.drop(ctx, s, "message", common.ErrorValidation)
		return
	}

	if !d.notifier.Deliver(ctx, to, protocol.Routed(from, from, f.Payload)) {
		d.metrics.Relay(false)
		s.logger.Debug(ctx, "receiver offline, message dropped", "receiver", to)
		return
	}
	d.metrics.Relay(true)
	if !d.notifier.Deliver(ctx, from, protocol.Routed(from, to, f.Payload)) {
		s.logger.Debug(ctx, "sender not joined, echo skipped", "sender", from)
	}
}

func (d *Dispatcher) handleAddFriend(ctx context.Context, s *Session, f protocol.Frame) {
	from, ok := d.sender(ctx, s, f)
	if !ok {
		return
	}

	added, err := d.addFriend(ctx, from, protocol.Canonical(f.Receiver))
	if err != nil {
		s.logger.Error(ctx, "add friend", "receiver", f.Receiver, "error", err)
	}
	d.reply(ctx, s, protocol.Reply(added))
}

func (d *Dispatcher) addFriend(ctx context.Context, from, to string) (bool, error) {
	if to == "" || to == from {
		return false, nil
	}

	_, found, err := d.store.FindUser(ctx, to)
	if err != nil || !found {
		return false, err
	}

	already, err := d.store.AreFriends(ctx, from, to)
	if err != nil || already {
		return false, err
	}

	if err := d.store.AddFriendship(ctx, from, to); err != nil {
		return false, err
	}
	d.notifier.Deliver(ctx, to, protocol.FriendNotice(from))
	return true, nil
}

func (d *Dispatcher) handleKeyRelay(ctx context.Context, s *Session, f protocol.Frame) {
	from, ok := d.sender(ctx, s, f)
	if !ok {
		return
	}
	to := protocol.Canonical(f.Receiver)
	if to == "" || to == from {
		d.drop(ctx, s, "key", common.ErrorValidation)
		return
	}

	delivered := d.notifier.Deliver(ctx, to, protocol.KeyNotice(from, f.Payload))
	d.metrics.Relay(delivered)
}

// handleDisconnect closes this session when the sender is its own identity.
// With a valid ticket it instead closes the session registered for the
// sender, which lets a client end a login made on another connection.
func (d *Dispatcher) handleDisconnect(ctx context.Context, s *Session, f protocol.Frame) {
	if id := s.identity(); id != "" && (f.Sender == id || protocol.Canonical(f.Sender) == id) {
		d.Close(ctx, s)
		return
	}

	user := protocol.Canonical(f.Sender)
	if f.Payload == "" || !d.authorize(s, user, f.Payload) {
		d.drop(ctx, s, "disconnect", common.ErrNotAuthenticated)
		return
	}

	target, ok := d.registry.Lookup(user)
	if !ok {
		return
	}
	if ts, ok := d.sessionFor(target); ok {
		d.Close(ctx, ts)
		return
	}

	d.notifier.Evict(user, target)
	if _, err := d.notifier.Announce(ctx, user, false); err != nil {
		s.logger.Error(ctx, "offline announce failed", "user", user, "error", err)
	}
}
