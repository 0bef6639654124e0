package cryptox

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/dmitrijs2005/gophrelay/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroups(t *testing.T) {
	assert.Equal(t, 1536, ServerGroup.P.BitLen())
	assert.Equal(t, 2048, PeerGroup.P.BitLen())
	assert.Equal(t, int64(2), ServerGroup.G.Int64())
	assert.True(t, ServerGroup.P.ProbablyPrime(10))
}

func TestSharedSecretIsSymmetric(t *testing.T) {
	for _, g := range []*Group{ServerGroup, PeerGroup} {
		a, err := g.GenerateKey(nil)
		require.NoError(t, err)
		b, err := g.GenerateKey(nil)
		require.NoError(t, err)

		ab, err := a.Shared(b.Public)
		require.NoError(t, err)
		ba, err := b.Shared(a.Public)
		require.NoError(t, err)

		assert.Equal(t, 0, ab.Cmp(ba))
	}
}

func TestGenerateKey_UsesExponentBytes(t *testing.T) {
	src := bytes.NewReader(bytes.Repeat([]byte{0x01}, ServerGroup.ExponentBytes))
	k, err := ServerGroup.GenerateKey(src)
	require.NoError(t, err)

	want := new(big.Int).SetBytes(bytes.Repeat([]byte{0x01}, ServerGroup.ExponentBytes))
	assert.Equal(t, 0, k.private.Cmp(want))
	assert.Equal(t, 0, k.Public.Cmp(new(big.Int).Exp(big.NewInt(2), want, ServerGroup.P)))
}

func TestGenerateKey_ShortReader(t *testing.T) {
	_, err := ServerGroup.GenerateKey(bytes.NewReader([]byte{1, 2, 3}))
	require.Error(t, err)
}

func TestValidatePublic(t *testing.T) {
	p := ServerGroup.P
	tests := []struct {
		name string
		y    *big.Int
		ok   bool
	}{
		{name: "nil", y: nil},
		{name: "zero", y: big.NewInt(0)},
		{name: "one", y: big.NewInt(1)},
		{name: "negative", y: big.NewInt(-5)},
		{name: "p-1", y: new(big.Int).Sub(p, big.NewInt(1))},
		{name: "p", y: new(big.Int).Set(p)},
		{name: "p+1", y: new(big.Int).Add(p, big.NewInt(1))},
		{name: "two", y: big.NewInt(2), ok: true},
		{name: "p-2", y: new(big.Int).Sub(p, big.NewInt(2)), ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ServerGroup.ValidatePublic(tt.y)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, common.ErrInvalidPublicValue))
			}
		})
	}
}

func TestShared_RejectsOutOfRange(t *testing.T) {
	k, err := ServerGroup.GenerateKey(nil)
	require.NoError(t, err)

	_, err = k.Shared(ServerGroup.P)
	assert.ErrorIs(t, err, common.ErrInvalidPublicValue)
}

func TestParseAndFormatPublic(t *testing.T) {
	y, err := ParsePublic(" 12345 ")
	require.NoError(t, err)
	assert.Equal(t, "12345", FormatPublic(y))

	_, err = ParsePublic("12ab")
	assert.ErrorIs(t, err, common.ErrInvalidPublicValue)

	_, err = ParsePublic("")
	assert.ErrorIs(t, err, common.ErrInvalidPublicValue)
}
