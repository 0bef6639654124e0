package models

// Friendship is an unordered pair of canonical usernames, stored with
// UserA < UserB.
type Friendship struct {
	UserA string
	UserB string
}

// NewFriendship orders a and b.
func NewFriendship(a, b string) Friendship {
	if b < a {
		a, b = b, a
	}
	return Friendship{UserA: a, UserB: b}
}
