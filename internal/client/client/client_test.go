package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophrelay/internal/common"
	"github.com/dmitrijs2005/gophrelay/internal/cryptox"
	"github.com/dmitrijs2005/gophrelay/internal/logging"
	"github.com/dmitrijs2005/gophrelay/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scripted is a fake relay: every frame the client sends is recorded and
// answered with whatever respond returns.
type scripted struct {
	respond func(f protocol.Frame) []string

	mu       sync.Mutex
	received []protocol.Frame
}

func (s *scripted) Received() []protocol.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Frame(nil), s.received...)
}

func (s *scripted) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{}
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		f, err := protocol.Parse(string(data))
		if err != nil {
			continue
		}
		s.mu.Lock()
		s.received = append(s.received, f)
		s.mu.Unlock()

		for _, out := range s.respond(f) {
			if err := ws.WriteMessage(websocket.TextMessage, []byte(out)); err != nil {
				return
			}
		}
	}
}

// serverHandshake answers s frames like the relay does and remembers the
// secret so credential payloads can be checked.
type serverHandshake struct {
	mu     sync.Mutex
	secret map[string]string
}

func (h *serverHandshake) answer(t *testing.T, f protocol.Frame) string {
	key, err := cryptox.ServerGroup.GenerateKey(nil)
	require.NoError(t, err)
	peer, err := cryptox.ParsePublic(f.Payload)
	require.NoError(t, err)
	secret, err := key.Shared(peer)
	require.NoError(t, err)

	h.mu.Lock()
	if h.secret == nil {
		h.secret = make(map[string]string)
	}
	h.secret[f.Sender] = secret.String()
	h.mu.Unlock()
	return cryptox.FormatPublic(key.Public)
}

func (h *serverHandshake) credentials(t *testing.T, f protocol.Frame) (string, string) {
	h.mu.Lock()
	raw := h.secret[f.Sender]
	h.mu.Unlock()

	secret, err := cryptox.ParsePublic(raw)
	require.NoError(t, err)
	plaintext, err := cryptox.Decrypt(f.Payload, secret)
	require.NoError(t, err)
	user, password, err := protocol.Credentials(plaintext)
	require.NoError(t, err)
	return user, password
}

func dialScripted(t *testing.T, s *scripted) *Client {
	t.Helper()
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestDial_Unavailable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := Dial(ctx, "ws://127.0.0.1:1/ws", logging.Discard())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClient_LoginSendsEncryptedCredentials(t *testing.T) {
	hs := &serverHandshake{}
	creds := make(chan [2]string, 1)
	s := &scripted{}
	s.respond = func(f protocol.Frame) []string {
		switch f.Kind {
		case protocol.KindHandshake:
			return []string{hs.answer(t, f)}
		case protocol.KindLogin:
			user, password := hs.credentials(t, f)
			creds <- [2]string{user, password}
			return []string{protocol.ReplyOK, protocol.TicketNotice(user, "jwt-ticket")}
		}
		return nil
	}
	c := dialScripted(t, s)

	require.NoError(t, c.Login(testCtx(t), "Alice", "p;w"))
	assert.Equal(t, [2]string{"Alice", "p;w"}, <-creds)
	assert.Equal(t, "alice", c.UserName())
	assert.Equal(t, "jwt-ticket", c.Ticket())

	frames := s.Received()
	require.Len(t, frames, 2)
	assert.Equal(t, frames[0].Sender, frames[1].Sender)
}

func TestClient_RegisterThenLoginReuseHandshake(t *testing.T) {
	hs := &serverHandshake{}
	s := &scripted{}
	s.respond = func(f protocol.Frame) []string {
		switch f.Kind {
		case protocol.KindHandshake:
			return []string{hs.answer(t, f)}
		case protocol.KindRegister:
			return []string{protocol.ReplyOK}
		case protocol.KindLogin:
			return []string{protocol.ReplyFail}
		}
		return nil
	}
	c := dialScripted(t, s)

	require.NoError(t, c.Register(testCtx(t), "bob", "pw"))
	assert.ErrorIs(t, c.Login(testCtx(t), "bob", "bad"), ErrUnauthorized)

	var kinds []protocol.Kind
	for _, f := range s.Received() {
		kinds = append(kinds, f.Kind)
	}
	assert.Equal(t, []protocol.Kind{protocol.KindHandshake, protocol.KindRegister, protocol.KindLogin}, kinds)
}

func TestClient_Join(t *testing.T) {
	s := &scripted{respond: func(f protocol.Frame) []string {
		if f.Kind != protocol.KindJoin {
			return nil
		}
		if f.Payload == "bad" {
			return []string{protocol.ReplyFail}
		}
		return []string{`{"bob":true,"carol":false}`}
	}}
	c := dialScripted(t, s)

	snapshot, err := c.Join(testCtx(t), "alice", "ticket")
	require.NoError(t, err)
	assert.Equal(t, protocol.Snapshot{"bob": true, "carol": false}, snapshot)
	assert.Equal(t, "ticket", c.Ticket())

	_, err = c.Join(testCtx(t), "alice", "bad")
	assert.ErrorIs(t, err, ErrRejected)

	// The online friend without a key got an offer.
	var offers []string
	for _, f := range s.Received() {
		if f.Kind == protocol.KindKeyRelay {
			offers = append(offers, f.Receiver)
		}
	}
	assert.Equal(t, []string{"bob"}, offers)
}

func TestClient_RekeyIsAnswered(t *testing.T) {
	first, err := cryptox.PeerGroup.GenerateKey(nil)
	require.NoError(t, err)
	second, err := cryptox.PeerGroup.GenerateKey(nil)
	require.NoError(t, err)

	s := &scripted{}
	s.respond = func(f protocol.Frame) []string {
		if f.Kind != protocol.KindJoin {
			return nil
		}
		return []string{
			"{}",
			protocol.KeyNotice("bob", cryptox.FormatPublic(first.Public)),
			protocol.KeyNotice("bob", cryptox.FormatPublic(second.Public)),
		}
	}
	c := dialScripted(t, s)

	_, err = c.Join(testCtx(t), "alice", "")
	require.NoError(t, err)

	countOffers := func() int {
		n := 0
		for _, f := range s.Received() {
			if f.Kind == protocol.KindKeyRelay {
				n++
			}
		}
		return n
	}
	require.Eventually(t, func() bool { return countOffers() == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.True(t, c.HasPeerKey("bob"))
}

func TestClient_UnexpectedReply(t *testing.T) {
	s := &scripted{respond: func(protocol.Frame) []string { return []string{"maybe"} }}
	c := dialScripted(t, s)

	assert.ErrorIs(t, c.AddFriend(testCtx(t), "bob"), common.ErrUnexpectedReply)
}

func TestClient_ContextCancelled(t *testing.T) {
	s := &scripted{respond: func(protocol.Frame) []string { return nil }}
	c := dialScripted(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.AddFriend(ctx, "bob"), context.DeadlineExceeded)
}

func TestClient_SendMessageNeedsPeerKey(t *testing.T) {
	s := &scripted{respond: func(protocol.Frame) []string { return nil }}
	c := dialScripted(t, s)

	assert.ErrorIs(t, c.SendMessage("bob", "hi"), common.ErrNoPeerKey)
}

func TestClient_AnswersFriendRequestWithKey(t *testing.T) {
	friendKey, err := cryptox.PeerGroup.GenerateKey(nil)
	require.NoError(t, err)

	s := &scripted{}
	s.respond = func(f protocol.Frame) []string {
		switch f.Kind {
		case protocol.KindJoin:
			return []string{"{}", protocol.FriendNotice("bob")}
		case protocol.KindKeyRelay:
			return []string{protocol.KeyNotice("bob", cryptox.FormatPublic(friendKey.Public))}
		}
		return nil
	}
	c := dialScripted(t, s)

	_, err = c.Join(testCtx(t), "alice", "")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return c.HasPeerKey("bob") }, 5*time.Second, 10*time.Millisecond)

	var offer protocol.Frame
	for _, f := range s.Received() {
		if f.Kind == protocol.KindKeyRelay {
			offer = f
		}
	}
	assert.Equal(t, "bob", offer.Receiver)

	// Both sides derive the same secret, so a message we encrypt decrypts
	// with the friend's key.
	ours, err := cryptox.ParsePublic(offer.Payload)
	require.NoError(t, err)
	shared, err := friendKey.Shared(ours)
	require.NoError(t, err)

	require.NoError(t, c.SendMessage("bob", "hi bob"))
	require.Eventually(t, func() bool {
		frames := s.Received()
		return frames[len(frames)-1].Kind == protocol.KindMessage
	}, 5*time.Second, 10*time.Millisecond)

	frames := s.Received()
	text, err := cryptox.Decrypt(frames[len(frames)-1].Payload, shared)
	require.NoError(t, err)
	assert.Equal(t, "hi bob", text)
}

func TestClient_RoutedMessagesAreDecrypted(t *testing.T) {
	friendKey, err := cryptox.PeerGroup.GenerateKey(nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var shared string
	s := &scripted{}
	s.respond = func(f protocol.Frame) []string {
		if f.Kind != protocol.KindKeyRelay {
			return nil
		}
		ours, err := cryptox.ParsePublic(f.Payload)
		require.NoError(t, err)
		secret, err := friendKey.Shared(ours)
		require.NoError(t, err)
		token, err := cryptox.Encrypt("secret text", secret)
		require.NoError(t, err)

		mu.Lock()
		shared = secret.String()
		mu.Unlock()
		return []string{
			protocol.KeyNotice("bob", cryptox.FormatPublic(friendKey.Public)),
			protocol.Routed("bob", "bob", token),
			protocol.PresenceNotice("bob", false),
		}
	}
	c := dialScripted(t, s)

	require.NoError(t, c.OfferKey("Bob"))

	var events []Event
	timeout := time.After(5 * time.Second)
	for len(events) < 3 {
		select {
		case e := <-c.Events():
			events = append(events, e)
		case <-timeout:
			t.Fatalf("got %d events", len(events))
		}
	}

	mu.Lock()
	assert.NotEmpty(t, shared)
	mu.Unlock()
	assert.Equal(t, []Event{
		{Kind: EventPeerKey, User: "bob"},
		{Kind: EventMessage, User: "bob", Channel: "bob", Text: "secret text"},
		{Kind: EventPresence, User: "bob", Online: false},
	}, events)
}

func TestClient_EventsClosedWithConnection(t *testing.T) {
	s := &scripted{respond: func(protocol.Frame) []string { return nil }}
	c := dialScripted(t, s)

	require.NoError(t, c.Close())
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("done not closed")
	}
	_, ok := <-c.Events()
	assert.False(t, ok)
	assert.NoError(t, c.Err())
}
