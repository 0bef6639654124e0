package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewFriendship_Orders(t *testing.T) {
	assert.Equal(t, Friendship{UserA: "alice", UserB: "bob"}, NewFriendship("bob", "alice"))
	assert.Equal(t, NewFriendship("alice", "bob"), NewFriendship("bob", "alice"))
}
