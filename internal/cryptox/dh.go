// Package cryptox holds the cryptographic primitives of the relay:
// finite-field Diffie-Hellman over the RFC 3526 MODP groups, the AEAD used
// for payloads keyed by a Diffie-Hellman secret, and password hashing.
package cryptox

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/dmitrijs2005/gophrelay/internal/common"
)

// 1536-bit MODP group (RFC 3526, group 5). Used between the server and a
// freshly connected client.
const modp1536Hex = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1" +
	"29024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
	"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245" +
	"E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
	"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3D" +
	"C2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F" +
	"83655D23DCA3AD961C62F356208552BB9ED529077096966D" +
	"670C354E4ABC9804F1746C08CA237327FFFFFFFFFFFFFFFF"

// 2048-bit MODP group (RFC 3526, group 14). Used by clients between
// themselves; the server only relays these values.
const modp2048Hex = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1" +
	"29024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
	"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245" +
	"E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
	"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3D" +
	"C2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F" +
	"83655D23DCA3AD961C62F356208552BB9ED529077096966D" +
	"670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B" +
	"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9" +
	"DE2BCBF6955817183995497CEA956AE515D2261898FA0510" +
	"15728E5A8AACAA68FFFFFFFFFFFFFFFF"

// Group is a prime-field Diffie-Hellman group with a fixed generator.
type Group struct {
	P *big.Int
	G *big.Int
	// ExponentBytes is how many random bytes make up a private exponent.
	ExponentBytes int
}

var (
	// ServerGroup protects login and registration payloads.
	ServerGroup = mustGroup(modp1536Hex, 2, 120)
	// PeerGroup derives the end-to-end key between two users.
	PeerGroup = mustGroup(modp2048Hex, 2, 160)
)

func mustGroup(primeHex string, g int64, exponentBytes int) *Group {
	p, ok := new(big.Int).SetString(primeHex, 16)
	if !ok {
		panic("cryptox: bad prime")
	}
	return &Group{P: p, G: big.NewInt(g), ExponentBytes: exponentBytes}
}

// KeyPair is one side of a Diffie-Hellman exchange.
type KeyPair struct {
	group   *Group
	private *big.Int
	Public  *big.Int
}

// GenerateKey draws a private exponent from r (crypto/rand when nil) and
// computes the matching public value g^x mod p.
func (g *Group) GenerateKey(r io.Reader) (*KeyPair, error) {
	if r == nil {
		r = rand.Reader
	}

	buf := make([]byte, g.ExponentBytes)
	defer common.WipeByteArray(buf)

	x := new(big.Int)
	for x.Sign() == 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read private exponent: %w", err)
		}
		x.SetBytes(buf)
	}

	return &KeyPair{
		group:   g,
		private: x,
		Public:  new(big.Int).Exp(g.G, x, g.P),
	}, nil
}

// ValidatePublic rejects values outside 1 < y < p-1. The excluded values
// would force the shared secret into a trivial subgroup.
func (g *Group) ValidatePublic(y *big.Int) error {
	if y == nil || y.Cmp(big.NewInt(1)) <= 0 {
		return common.ErrInvalidPublicValue
	}
	pMinusOne := new(big.Int).Sub(g.P, big.NewInt(1))
	if y.Cmp(pMinusOne) >= 0 {
		return common.ErrInvalidPublicValue
	}
	return nil
}

// Shared computes peer^x mod p after validating peer.
func (k *KeyPair) Shared(peer *big.Int) (*big.Int, error) {
	if err := k.group.ValidatePublic(peer); err != nil {
		return nil, err
	}
	return new(big.Int).Exp(peer, k.private, k.group.P), nil
}

// ParsePublic reads a decimal public value as it travels on the wire.
func ParsePublic(s string) (*big.Int, error) {
	y, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, common.ErrInvalidPublicValue
	}
	return y, nil
}

// FormatPublic renders y in decimal for the wire.
func FormatPublic(y *big.Int) string {
	return y.Text(10)
}
