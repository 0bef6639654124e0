package protocol

import (
	"encoding/json"
	"strings"
)

const (
	ReplyOK   = "1"
	ReplyFail = "0"
)

// Tags of server notices.
const (
	TagPresence = "c+"
	TagFriend   = "a+"
	TagKey      = "d+"
	TagTicket   = "t+"
)

// Reply maps a boolean outcome to "1" or "0".
func Reply(ok bool) string {
	if ok {
		return ReplyOK
	}
	return ReplyFail
}

// PresenceNotice tells a friend that user went on- or offline.
func PresenceNotice(user string, online bool) string {
	return TagPresence + user + separator + Reply(online)
}

// FriendNotice tells receiver that user added them.
func FriendNotice(user string) string {
	return TagFriend + user + separator
}

// KeyNotice carries peer key material from user.
func KeyNotice(user, material string) string {
	return TagKey + user + separator + material
}

// TicketNotice hands a freshly authenticated user its session ticket.
func TicketNotice(user, ticket string) string {
	return TagTicket + user + separator + ticket
}

// Routed is a relayed message: from is the author, channel the conversation
// it belongs to from the recipient's point of view.
func Routed(from, channel, payload string) string {
	return from + ">" + channel + separator + payload
}

// Snapshot maps each friend to its online flag.
type Snapshot map[string]bool

func EncodeSnapshot(s Snapshot) (string, error) {
	if s == nil {
		s = Snapshot{}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeSnapshot(raw string) (Snapshot, error) {
	s := Snapshot{}
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, err
	}
	return s, nil
}

// ServerFrameKind classifies a frame received by a client.
type ServerFrameKind int

const (
	ServerReply ServerFrameKind = iota
	ServerPresence
	ServerFriend
	ServerKey
	ServerTicket
	ServerRouted
)

// ServerFrame is a decoded server frame.
type ServerFrame struct {
	Kind    ServerFrameKind
	User    string
	Channel string
	Payload string
}

// ParseServerFrame decodes frames sent by the relay. Anything without a
// header separator is a bare reply carried in Payload.
func ParseServerFrame(raw string) ServerFrame {
	header, payload, ok := strings.Cut(raw, separator)
	if !ok {
		return ServerFrame{Kind: ServerReply, Payload: raw}
	}

	if len(header) >= 2 {
		user := header[2:]
		switch header[:2] {
		case TagPresence:
			return ServerFrame{Kind: ServerPresence, User: user, Payload: payload}
		case TagFriend:
			return ServerFrame{Kind: ServerFriend, User: user, Payload: payload}
		case TagKey:
			return ServerFrame{Kind: ServerKey, User: user, Payload: payload}
		case TagTicket:
			return ServerFrame{Kind: ServerTicket, User: user, Payload: payload}
		}
	}

	if from, channel, ok := strings.Cut(header, ">"); ok {
		return ServerFrame{Kind: ServerRouted, User: from, Channel: channel, Payload: payload}
	}
	return ServerFrame{Kind: ServerReply, Payload: raw}
}
