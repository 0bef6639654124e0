package cryptox

import (
	"crypto/sha512"
	"crypto/subtle"

	"github.com/dmitrijs2005/gophrelay/internal/common"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultPasswordIterations is the PBKDF2 work factor for new accounts.
	DefaultPasswordIterations = 100000
	SaltSize                  = 16
	passwordKeyLen            = sha512.Size
)

func NewSalt() []byte {
	return common.GenerateRandByteArray(SaltSize)
}

// HashPassword is PBKDF2-HMAC-SHA512.
func HashPassword(password string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(password), salt, iterations, passwordKeyLen, sha512.New)
}

// CheckPassword compares in constant time.
func CheckPassword(password string, salt, hash []byte, iterations int) bool {
	candidate := HashPassword(password, salt, iterations)
	defer common.WipeByteArray(candidate)
	return subtle.ConstantTimeCompare(candidate, hash) == 1
}
