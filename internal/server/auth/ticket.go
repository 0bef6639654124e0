// Package auth issues and checks session tickets: HS256 JWTs that let a
// client prove, on a second connection, that it already logged in.
package auth

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophrelay/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims carries the canonical username of the ticket holder.
type Claims struct {
	jwt.RegisteredClaims
	UserName string `json:"usr"`
}

func GenerateTicket(userName string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		UserName: userName,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// UserNameFromTicket returns the holder of a valid ticket. Every failure
// (bad signature, expiry, malformed input) matches common.ErrInvalidToken.
func UserNameFromTicket(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.UserName == "" {
		return "", common.ErrInvalidToken
	}

	return claims.UserName, nil
}
