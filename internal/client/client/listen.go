package client

import (
	"context"

	"github.com/dmitrijs2005/gophrelay/internal/cryptox"
	"github.com/dmitrijs2005/gophrelay/internal/protocol"
)

// listen reads server frames until the connection ends.
func (c *Client) listen() {
	defer close(c.events)
	defer close(c.done)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			return
		}
		c.dispatch(protocol.ParseServerFrame(string(data)))
	}
}

func (c *Client) dispatch(f protocol.ServerFrame) {
	ctx := context.Background()

	switch f.Kind {
	case protocol.ServerReply:
		select {
		case c.replies <- f.Payload:
		default:
			c.logger.Warn(ctx, "unexpected reply dropped", "reply", f.Payload)
		}

	case protocol.ServerTicket:
		select {
		case c.tickets <- f.Payload:
		default:
		}

	case protocol.ServerPresence:
		online := f.Payload == protocol.ReplyOK
		if online && !c.HasPeerKey(f.User) {
			if err := c.OfferKey(f.User); err != nil {
				c.logger.Warn(ctx, "key offer failed", "friend", f.User, "error", err)
			}
		}
		c.emit(Event{Kind: EventPresence, User: f.User, Online: online})

	case protocol.ServerFriend:
		if err := c.OfferKey(f.User); err != nil {
			c.logger.Warn(ctx, "key offer failed", "friend", f.User, "error", err)
		}
		c.emit(Event{Kind: EventFriendAdded, User: f.User})

	case protocol.ServerKey:
		if err := c.acceptKey(f.User, f.Payload); err != nil {
			c.logger.Warn(ctx, "peer key rejected", "friend", f.User, "error", err)
			return
		}
		c.emit(Event{Kind: EventPeerKey, User: f.User})

	case protocol.ServerRouted:
		c.emit(c.message(f))
	}
}

// acceptKey completes agreement with friend. Our public value is sent back
// when the friend started the exchange or restarted it after a key was
// already agreed; an answer to our own offer needs no reply.
func (c *Client) acceptKey(friend, material string) error {
	peer, err := cryptox.ParsePublic(material)
	if err != nil {
		return err
	}
	pk, created, err := c.peerKeyFor(friend)
	if err != nil {
		return err
	}
	secret, err := pk.key.Shared(peer)
	if err != nil {
		return err
	}

	c.mu.Lock()
	rekey := pk.secret != nil
	pk.secret = secret
	c.mu.Unlock()

	if created || rekey {
		return c.sendKey(friend, pk.key)
	}
	return nil
}

// message decrypts a routed frame. The key is the one agreed with the other
// party of the channel: the channel itself for our own echoed messages, the
// author otherwise.
func (c *Client) message(f protocol.ServerFrame) Event {
	e := Event{Kind: EventMessage, User: f.User, Channel: f.Channel, Text: f.Payload}

	peer := f.Channel
	if peer == c.UserName() {
		peer = f.User
	}
	if secret, ok := c.peerSecret(peer); ok {
		if text, err := cryptox.Decrypt(f.Payload, secret); err == nil {
			e.Text = text
		}
	}
	return e
}

func (c *Client) emit(e Event) {
	select {
	case c.events <- e:
	default:
		c.logger.Warn(context.Background(), "event dropped, consumer too slow", "kind", e.Kind)
	}
}
