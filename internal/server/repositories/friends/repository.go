package friends

import (
	"context"

	"github.com/dmitrijs2005/gophrelay/internal/server/models"
)

type Repository interface {
	// Add stores f and reports whether a new row was written.
	Add(ctx context.Context, f models.Friendship) (bool, error)
	Exists(ctx context.Context, f models.Friendship) (bool, error)
	// ListFor returns the usernames befriended with user, sorted.
	ListFor(ctx context.Context, user string) ([]string, error)
}
