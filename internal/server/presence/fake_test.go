package presence

import (
	"context"
	"errors"
	"sync"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	frames []string
	fail   bool
	closed bool
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(_ context.Context, frame string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail || c.closed {
		return errors.New("broken pipe")
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Frames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.frames...)
}

func (c *fakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeFriends map[string][]string

func (f fakeFriends) FriendsOf(_ context.Context, user string) ([]string, error) {
	if user == "broken" {
		return nil, errors.New("store down")
	}
	return f[user], nil
}
