package models

import "time"

// User is a registered account. UserName is always canonical.
type User struct {
	ID           string
	UserName     string
	PasswordHash []byte
	Salt         []byte
	Iterations   int
	CreatedAt    time.Time
}
