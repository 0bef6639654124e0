package dispatcher

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophrelay/internal/cryptox"
	"github.com/dmitrijs2005/gophrelay/internal/logging"
	"github.com/dmitrijs2005/gophrelay/internal/protocol"
	"github.com/dmitrijs2005/gophrelay/internal/server/accounts"
	"github.com/dmitrijs2005/gophrelay/internal/server/handshake"
	"github.com/dmitrijs2005/gophrelay/internal/server/presence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

type fakeConn struct {
	id string

	mu     sync.Mutex
	frames []string
	fail   bool
	closed bool
}

func newFakeConn() *fakeConn { return &fakeConn{id: uuid.NewString()} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(_ context.Context, frame string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail || c.closed {
		return errors.New("connection closed")
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Frames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.frames...)
}

func (c *fakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) setFail() {
	c.mu.Lock()
	c.fail = true
	c.mu.Unlock()
}

type harness struct {
	t        *testing.T
	ctx      context.Context
	d        *Dispatcher
	store    *accounts.Memory
	registry *presence.Registry
	hs       *handshake.Manager
}

func newHarness(t *testing.T, policy Policy) *harness {
	t.Helper()
	store := accounts.NewMemory(1)
	registry := presence.NewRegistry(nil)
	hs := handshake.NewManager(cryptox.ServerGroup, nil)
	logger := logging.Discard()
	notifier := presence.NewNotifier(registry, store, logger, nil)

	d := New(store, hs, registry, notifier, Options{
		SecretKey:       testSecret,
		TicketValidity:  time.Minute,
		DuplicatePolicy: policy,
	}, logger, nil)

	return &harness{t: t, ctx: context.Background(), d: d, store: store, registry: registry, hs: hs}
}

type client struct {
	h    *harness
	s    *Session
	conn *fakeConn
}

func (h *harness) open() *client {
	c := newFakeConn()
	return &client{h: h, s: h.d.Open(c, "127.0.0.1:1"), conn: c}
}

func (h *harness) addUser(name, password string) {
	require.NoError(h.t, h.store.AddUser(h.ctx, name, password))
}

func (h *harness) befriend(a, b string) {
	require.NoError(h.t, h.store.AddFriendship(h.ctx, a, b))
}

func (c *client) send(raw string) error {
	return c.h.d.Handle(c.h.ctx, c.s, raw)
}

// sendAndCollect sends raw and returns the frames it produced on this
// connection.
func (c *client) sendAndCollect(raw string) []string {
	n := len(c.conn.Frames())
	require.NoError(c.h.t, c.send(raw))
	return c.conn.Frames()[n:]
}

// handshake runs the client side of the s exchange under connID.
func (c *client) handshake(connID string) *big.Int {
	t := c.h.t
	key, err := cryptox.ServerGroup.GenerateKey(nil)
	require.NoError(t, err)

	out := c.sendAndCollect("s;;" + connID + ";" + cryptox.FormatPublic(key.Public))
	require.Len(t, out, 1)

	y, err := cryptox.ParsePublic(out[0])
	require.NoError(t, err)
	secret, err := key.Shared(y)
	require.NoError(t, err)
	return secret
}

func (c *client) credentialsFrame(kind protocol.Kind, connID string, secret *big.Int, user, password string) string {
	token, err := cryptox.Encrypt(protocol.JoinCredentials(user, password), secret)
	require.NoError(c.h.t, err)
	return protocol.Frame{Kind: kind, Sender: connID, Payload: token}.String()
}

func (c *client) register(user, password string) []string {
	connID := uuid.NewString()
	secret := c.handshake(connID)
	return c.sendAndCollect(c.credentialsFrame(protocol.KindRegister, connID, secret, user, password))
}

// login authenticates and returns the ticket pushed by the server.
func (c *client) login(user, password string) (reply string, ticket string) {
	connID := uuid.NewString()
	secret := c.handshake(connID)
	out := c.sendAndCollect(c.credentialsFrame(protocol.KindLogin, connID, secret, user, password))
	require.NotEmpty(c.h.t, out)
	if len(out) > 1 {
		sf := protocol.ParseServerFrame(out[1])
		require.Equal(c.h.t, protocol.ServerTicket, sf.Kind)
		ticket = sf.Payload
	}
	return out[0], ticket
}

func (c *client) join(user string) []string {
	return c.sendAndCollect("c;;" + user + ";")
}

// online registers, logs in and joins user on a fresh connection.
func (h *harness) online(user string) *client {
	c := h.open()
	reply, _ := c.login(user, "pw-"+user)
	require.Equal(h.t, protocol.ReplyOK, reply)
	out := c.join(user)
	require.Len(h.t, out, 1)
	require.True(h.t, strings.HasPrefix(out[0], "{"), out[0])
	return c
}

func (h *harness) addUsers(names ...string) {
	for _, n := range names {
		h.addUser(n, "pw-"+n)
	}
}
