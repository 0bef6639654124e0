// Package accounts implements the account store used by the relay: user
// registration, credential checks and the friendship graph. Every name is
// canonicalized before it reaches a backend.
package accounts

import "context"

// Store is the contract the dispatcher and the notifier depend on.
type Store interface {
	FindUser(ctx context.Context, name string) (id string, found bool, err error)
	VerifyUser(ctx context.Context, name, password string) (bool, error)
	// AddUser fails with common.ErrorAlreadyExists when the name is taken and
	// with common.ErrInvalidUsername when it cannot be routed.
	AddUser(ctx context.Context, name, password string) error
	// AddFriendship is idempotent.
	AddFriendship(ctx context.Context, a, b string) error
	AreFriends(ctx context.Context, a, b string) (bool, error)
	FriendsOf(ctx context.Context, user string) ([]string, error)
}
