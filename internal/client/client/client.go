package client

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/dmitrijs2005/gophrelay/internal/common"
	"github.com/dmitrijs2005/gophrelay/internal/cryptox"
	"github.com/dmitrijs2005/gophrelay/internal/logging"
	"github.com/dmitrijs2005/gophrelay/internal/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const eventBuffer = 128

type EventKind int

const (
	EventPresence EventKind = iota
	EventFriendAdded
	EventPeerKey
	EventMessage
)

// Event is something the server pushed without being asked.
type Event struct {
	Kind EventKind
	// User is the friend the event is about, or the author of a message.
	User string
	// Channel is the conversation a message belongs to.
	Channel string
	Online  bool
	Text    string
}

type peerKey struct {
	key    *cryptox.KeyPair
	secret *big.Int
}

type Client struct {
	conn   *websocket.Conn
	logger logging.Logger

	writeMu sync.Mutex
	reqMu   sync.Mutex

	replies chan string
	tickets chan string
	events  chan Event
	done    chan struct{}

	mu      sync.Mutex
	user    string
	ticket  string
	connID  string
	secret  *big.Int
	peers   map[string]*peerKey
	closing bool
	readErr error
}

// Dial connects to the relay WebSocket endpoint at url.
func Dial(ctx context.Context, url string, logger logging.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	c := &Client{
		conn:    conn,
		logger:  logger.With("module", "client"),
		replies: make(chan string, 8),
		tickets: make(chan string, 1),
		events:  make(chan Event, eventBuffer),
		done:    make(chan struct{}),
		peers:   make(map[string]*peerKey),
	}
	go c.listen()
	return c, nil
}

// Events delivers server notices and messages.
func (c *Client) Events() <-chan Event { return c.events }

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// UserName is set after a successful Login.
func (c *Client) UserName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// Ticket is the session ticket received on Login.
func (c *Client) Ticket() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticket
}

func (c *Client) Close() error {
	c.mu.Lock()
	c.closing = true
	c.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage, msg)
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *Client) send(frame protocol.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(frame.String())); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// request sends frame and waits for the next bare reply.
func (c *Client) request(ctx context.Context, frame protocol.Frame) (string, error) {
	if err := c.send(frame); err != nil {
		return "", err
	}
	return c.await(ctx, c.replies)
}

func (c *Client) await(ctx context.Context, ch <-chan string) (string, error) {
	select {
	case r := <-ch:
		return r, nil
	case <-c.done:
		return "", ErrUnavailable
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Handshake agrees a fresh secret with the server for the next Register or
// Login.
func (c *Client) Handshake(ctx context.Context) error {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()
	return c.handshake(ctx)
}

func (c *Client) handshake(ctx context.Context) error {
	key, err := cryptox.ServerGroup.GenerateKey(nil)
	if err != nil {
		return err
	}
	connID := uuid.NewString()

	reply, err := c.request(ctx, protocol.Frame{
		Kind:    protocol.KindHandshake,
		Sender:  connID,
		Payload: cryptox.FormatPublic(key.Public),
	})
	if err != nil {
		return err
	}

	serverPublic, err := cryptox.ParsePublic(reply)
	if err != nil {
		return fmt.Errorf("%w: %q", common.ErrUnexpectedReply, reply)
	}
	secret, err := key.Shared(serverPublic)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.connID, c.secret = connID, secret
	c.mu.Unlock()
	return nil
}

func (c *Client) credentialsFrame(ctx context.Context, kind protocol.Kind, user, password string) (protocol.Frame, error) {
	c.mu.Lock()
	connID, secret := c.connID, c.secret
	c.mu.Unlock()

	if secret == nil {
		if err := c.handshake(ctx); err != nil {
			return protocol.Frame{}, err
		}
		c.mu.Lock()
		connID, secret = c.connID, c.secret
		c.mu.Unlock()
	}

	token, err := cryptox.Encrypt(protocol.JoinCredentials(user, password), secret)
	if err != nil {
		return protocol.Frame{}, err
	}
	return protocol.Frame{Kind: kind, Sender: connID, Payload: token}, nil
}

// Register creates an account. It returns ErrRejected if the name is taken
// or invalid.
func (c *Client) Register(ctx context.Context, user, password string) error {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	frame, err := c.credentialsFrame(ctx, protocol.KindRegister, user, password)
	if err != nil {
		return err
	}
	reply, err := c.request(ctx, frame)
	if err != nil {
		return err
	}
	return expectOK(reply, ErrRejected)
}

// Login authenticates the connection and stores the session ticket.
func (c *Client) Login(ctx context.Context, user, password string) error {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	frame, err := c.credentialsFrame(ctx, protocol.KindLogin, user, password)
	if err != nil {
		return err
	}
	reply, err := c.request(ctx, frame)
	if err != nil {
		return err
	}
	if err := expectOK(reply, ErrUnauthorized); err != nil {
		return err
	}

	ticket, err := c.await(ctx, c.tickets)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.user = protocol.Canonical(user)
	c.ticket = ticket
	c.connID, c.secret = "", nil
	c.mu.Unlock()
	return nil
}

// Join registers the connection for presence and returns the friends
// snapshot. ticket may be empty on the connection that logged in.
func (c *Client) Join(ctx context.Context, user, ticket string) (protocol.Snapshot, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	reply, err := c.request(ctx, protocol.Frame{Kind: protocol.KindJoin, Sender: user, Payload: ticket})
	if err != nil {
		return nil, err
	}
	if reply == protocol.ReplyFail {
		return nil, ErrRejected
	}
	snapshot, err := protocol.DecodeSnapshot(reply)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", common.ErrUnexpectedReply, reply)
	}

	c.mu.Lock()
	c.user = protocol.Canonical(user)
	if ticket != "" {
		c.ticket = ticket
	}
	c.mu.Unlock()

	for friend, online := range snapshot {
		if online && !c.HasPeerKey(friend) {
			if err := c.OfferKey(friend); err != nil {
				c.logger.Warn(ctx, "key offer failed", "friend", friend, "error", err)
			}
		}
	}
	return snapshot, nil
}

// AddFriend sends a friend request. Key agreement starts when the friend's
// client answers, or when the friend next comes online.
func (c *Client) AddFriend(ctx context.Context, friend string) error {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	reply, err := c.request(ctx, protocol.Frame{Kind: protocol.KindAddFriend, Receiver: friend, Sender: c.UserName()})
	if err != nil {
		return err
	}
	return expectOK(reply, ErrRejected)
}

// SendMessage encrypts text under the key agreed with friend and relays it.
func (c *Client) SendMessage(friend, text string) error {
	friend = protocol.Canonical(friend)
	secret, ok := c.peerSecret(friend)
	if !ok {
		return common.ErrNoPeerKey
	}
	payload, err := cryptox.Encrypt(text, secret)
	if err != nil {
		return err
	}
	return c.send(protocol.Frame{Kind: protocol.KindMessage, Receiver: friend, Sender: c.UserName(), Payload: payload})
}

// OfferKey starts key agreement with friend.
func (c *Client) OfferKey(friend string) error {
	friend = protocol.Canonical(friend)
	pk, _, err := c.peerKeyFor(friend)
	if err != nil {
		return err
	}
	return c.sendKey(friend, pk.key)
}

// Disconnect ends the session named user. Passing a ticket ends a session
// held by another connection.
func (c *Client) Disconnect(user, ticket string) error {
	return c.send(protocol.Frame{Kind: protocol.KindDisconnect, Sender: user, Payload: ticket})
}

// HasPeerKey reports whether a key with friend has been agreed.
func (c *Client) HasPeerKey(friend string) bool {
	_, ok := c.peerSecret(protocol.Canonical(friend))
	return ok
}

func (c *Client) peerSecret(friend string) (*big.Int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pk, ok := c.peers[friend]
	if !ok || pk.secret == nil {
		return nil, false
	}
	return pk.secret, true
}

// peerKeyFor returns the key pair used with friend, creating it if needed.
func (c *Client) peerKeyFor(friend string) (*peerKey, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pk, ok := c.peers[friend]; ok {
		return pk, false, nil
	}
	key, err := cryptox.PeerGroup.GenerateKey(nil)
	if err != nil {
		return nil, false, err
	}
	pk := &peerKey{key: key}
	c.peers[friend] = pk
	return pk, true, nil
}

func (c *Client) sendKey(friend string, key *cryptox.KeyPair) error {
	return c.send(protocol.Frame{
		Kind:     protocol.KindKeyRelay,
		Receiver: friend,
		Sender:   c.UserName(),
		Payload:  cryptox.FormatPublic(key.Public),
	})
}

func expectOK(reply string, failure error) error {
	switch reply {
	case protocol.ReplyOK:
		return nil
	case protocol.ReplyFail:
		return failure
	}
	return fmt.Errorf("%w: %q", common.ErrUnexpectedReply, reply)
}

// Err returns the error that ended the connection, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing || c.readErr == nil || websocket.IsCloseError(c.readErr, websocket.CloseNormalClosure) {
		return nil
	}
	return c.readErr
}
