// Package protocol implements the relay's text wire format.
//
// A client frame is four ';'-separated fields, "kind;receiver;sender;payload",
// where the payload is everything after the third separator and may itself
// contain ';'. Server frames are either bare replies ("1", "0", a decimal
// Diffie-Hellman value, a JSON presence snapshot) or "header;payload" pairs
// where the header carries a two-character tag ("c+", "a+", "d+", "t+") or a
// "from>channel" routing pair.
package protocol

import (
	"strings"

	"github.com/dmitrijs2005/gophrelay/internal/common"
)

// Kind is the single-character tag of a client frame.
type Kind string

const (
	KindHandshake  Kind = "s"
	KindLogin      Kind = "l"
	KindRegister   Kind = "r"
	KindJoin       Kind = "c"
	KindMessage    Kind = "m"
	KindAddFriend  Kind = "a"
	KindKeyRelay   Kind = "d"
	KindDisconnect Kind = "g"
)

const separator = ";"

// Frame is a decoded client frame.
type Frame struct {
	Kind     Kind
	Receiver string
	Sender   string
	Payload  string
}

// Parse splits raw into its four fields. Frames with fewer than four fields
// or an empty kind are malformed.
func Parse(raw string) (Frame, error) {
	parts := strings.SplitN(raw, separator, 4)
	if len(parts) < 4 || parts[0] == "" {
		return Frame{}, common.ErrMalformedFrame
	}
	return Frame{
		Kind:     Kind(parts[0]),
		Receiver: parts[1],
		Sender:   parts[2],
		Payload:  parts[3],
	}, nil
}

// String encodes f back to the wire form.
func (f Frame) String() string {
	return strings.Join([]string{string(f.Kind), f.Receiver, f.Sender, f.Payload}, separator)
}

// Known reports whether k is one of the defined kinds.
func (k Kind) Known() bool {
	switch k {
	case KindHandshake, KindLogin, KindRegister, KindJoin,
		KindMessage, KindAddFriend, KindKeyRelay, KindDisconnect:
		return true
	}
	return false
}

// Credentials is the plaintext of login and registration payloads:
// "username@password", split at the first '@'.
func Credentials(plaintext string) (username, password string, err error) {
	username, password, ok := strings.Cut(plaintext, "@")
	if !ok {
		return "", "", common.ErrMalformedFrame
	}
	return username, password, nil
}

// JoinCredentials is the inverse of Credentials.
func JoinCredentials(username, password string) string {
	return username + "@" + password
}
