package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophrelay/internal/client/client"
)

// watchEvents prints pushed events until the connection ends.
func (a *App) watchEvents() {
	for e := range a.client.Events() {
		a.handleEvent(e)
	}
	if err := a.client.Err(); err != nil {
		a.logger.Warn(context.Background(), "connection lost", "error", err)
	}
	fmt.Fprintln(a.out, "\nConnection closed")
}

func (a *App) handleEvent(e client.Event) {
	switch e.Kind {
	case client.EventPresence:
		a.mu.Lock()
		a.presence[e.User] = e.Online
		a.mu.Unlock()
		if e.Online {
			fmt.Fprintf(a.out, "\n* %s is online\n", e.User)
		} else {
			fmt.Fprintf(a.out, "\n* %s is offline\n", e.User)
		}

	case client.EventFriendAdded:
		a.mu.Lock()
		a.presence[e.User] = true
		a.mu.Unlock()
		fmt.Fprintf(a.out, "\n* %s added you as a friend\n", e.User)

	case client.EventPeerKey:
		a.logger.Debug(context.Background(), "peer key agreed", "friend", e.User)

	case client.EventMessage:
		if e.Channel == e.User {
			fmt.Fprintf(a.out, "\n[%s] %s\n", e.User, e.Text)
		} else {
			fmt.Fprintf(a.out, "\n[you -> %s] %s\n", e.Channel, e.Text)
		}
	}
}
