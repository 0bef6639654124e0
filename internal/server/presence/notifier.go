package presence

import (
	"context"

	"github.com/dmitrijs2005/gophrelay/internal/logging"
	"github.com/dmitrijs2005/gophrelay/internal/protocol"
	"github.com/dmitrijs2005/gophrelay/internal/server/metrics"
	"golang.org/x/sync/errgroup"
)

// fanOutLimit bounds the goroutines used by a single Announce.
const fanOutLimit = 32

// FriendLister is the part of the account store the notifier reads.
type FriendLister interface {
	FriendsOf(ctx context.Context, user string) ([]string, error)
}

// Notifier builds presence snapshots and delivers server notices. A send
// that fails marks the receiving connection stale: it is unregistered and
// closed.
type Notifier struct {
	registry *Registry
	friends  FriendLister
	logger   logging.Logger
	metrics  *metrics.Metrics
}

func NewNotifier(r *Registry, friends FriendLister, logger logging.Logger, m *metrics.Metrics) *Notifier {
	return &Notifier{
		registry: r,
		friends:  friends,
		logger:   logger.With("module", "presence"),
		metrics:  m,
	}
}

// Snapshot lists every friend of user with its online flag.
func (n *Notifier) Snapshot(ctx context.Context, user string) (protocol.Snapshot, error) {
	friends, err := n.friends.FriendsOf(ctx, user)
	if err != nil {
		return nil, err
	}

	s := make(protocol.Snapshot, len(friends))
	for _, f := range friends {
		s[f] = n.registry.IsOnline(f)
	}
	return s, nil
}

// Announce pushes user's presence to every online friend and waits for the
// sends to finish. It returns the number of friends reached.
func (n *Notifier) Announce(ctx context.Context, user string, online bool) (int, error) {
	user = protocol.Canonical(user)
	friends, err := n.friends.FriendsOf(ctx, user)
	if err != nil {
		return 0, err
	}

	frame := protocol.PresenceNotice(user, online)
	reached := make([]bool, len(friends))

	var g errgroup.Group
	g.SetLimit(fanOutLimit)
	for i, f := range friends {
		if !n.registry.IsOnline(f) {
			continue
		}
		g.Go(func() error {
			reached[i] = n.Deliver(ctx, f, frame)
			return nil
		})
	}
	_ = g.Wait()

	count := 0
	for _, ok := range reached {
		if ok {
			count++
		}
	}
	return count, nil
}

// Deliver sends frame to user's registered connection. It reports false if
// the user is offline or the send failed.
func (n *Notifier) Deliver(ctx context.Context, user, frame string) bool {
	c, ok := n.registry.Lookup(user)
	if !ok {
		return false
	}

	if err := c.Send(ctx, frame); err != nil {
		n.logger.Warn(ctx, "send failed, dropping connection", "user", user, "conn_id", c.ID(), "error", err)
		n.Evict(user, c)
		return false
	}
	return true
}

// Evict unregisters c if it is still user's connection and closes it.
func (n *Notifier) Evict(user string, c Conn) {
	if n.registry.Unregister(user, c) {
		n.metrics.StaleEvicted()
	}
	_ = c.Close()
}
