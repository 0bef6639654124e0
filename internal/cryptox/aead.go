package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"math/big"

	"golang.org/x/crypto/hkdf"
)

const (
	keySize   = 32
	nonceSize = 12
	keyInfo   = "gophrelay payload key v1"
)

// DeriveKey stretches a Diffie-Hellman secret into an AES-256 key.
func DeriveKey(secret *big.Int) ([]byte, error) {
	key := make([]byte, keySize)
	r := hkdf.New(sha256.New, secret.Bytes(), nil, []byte(keyInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

func newGCM(secret *big.Int) (cipher.AEAD, error) {
	key, err := DeriveKey(secret)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext with AES-GCM under a key derived from secret and
// returns base64url(nonce || ciphertext). The token never contains ';', so
// it can travel as a frame payload.
func Encrypt(plaintext string, secret *big.Int) (string, error) {
	aead, err := newGCM(secret)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Tampered or foreign tokens fail authentication.
func Decrypt(token string, secret *big.Int) (string, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	if len(sealed) < nonceSize {
		return "", fmt.Errorf("token too short")
	}

	aead, err := newGCM(secret)
	if err != nil {
		return "", err
	}

	plaintext, err := aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
