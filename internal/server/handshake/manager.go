// Package handshake keeps the per-connection Diffie-Hellman state that
// protects login and registration payloads. Secrets live only in memory and
// are dropped after a successful login or when the owning session closes.
package handshake

import (
	"io"
	"math/big"
	"sync"

	"github.com/dmitrijs2005/gophrelay/internal/common"
	"github.com/dmitrijs2005/gophrelay/internal/cryptox"
)

type entry struct {
	owner  string
	key    *cryptox.KeyPair
	secret *big.Int
}

// Manager maps client-chosen connection ids to handshake state. An id is
// bound to the session that first used it until that session forgets it.
// A session holds at most one id: beginning a new one drops the previous.
type Manager struct {
	mu      sync.Mutex
	group   *cryptox.Group
	rand    io.Reader
	entries map[string]*entry
	owners  map[string]string
}

// NewManager returns a Manager for group. A nil rand uses crypto/rand.
func NewManager(group *cryptox.Group, rand io.Reader) *Manager {
	return &Manager{
		group:   group,
		rand:    rand,
		entries: make(map[string]*entry),
		owners:  make(map[string]string),
	}
}

// Begin returns the decimal server public value for connID, creating a key
// pair unless one is already pending. A completed exchange is restarted
// with a fresh key pair.
func (m *Manager) Begin(connID, owner string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[connID]
	if ok && e.owner != owner {
		return "", common.ErrConnIDInUse
	}
	if ok && e.secret == nil {
		return cryptox.FormatPublic(e.key.Public), nil
	}

	key, err := m.group.GenerateKey(m.rand)
	if err != nil {
		return "", err
	}
	if prev, ok := m.owners[owner]; ok && prev != connID {
		delete(m.entries, prev)
	}
	m.entries[connID] = &entry{owner: owner, key: key}
	m.owners[owner] = connID
	return cryptox.FormatPublic(key.Public), nil
}

// Complete derives and stores the secret for connID from the peer's decimal
// public value.
func (m *Manager) Complete(connID, owner, peerPublic string) (*big.Int, error) {
	peer, err := cryptox.ParsePublic(peerPublic)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[connID]
	if !ok {
		return nil, common.ErrNoSecret
	}
	if e.owner != owner {
		return nil, common.ErrConnIDInUse
	}

	secret, err := e.key.Shared(peer)
	if err != nil {
		return nil, err
	}
	e.secret = secret
	return secret, nil
}

// Secret returns the stored secret for connID if owner holds it.
func (m *Manager) Secret(connID, owner string) (*big.Int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[connID]
	if !ok || e.owner != owner || e.secret == nil {
		return nil, false
	}
	return e.secret, true
}

// Forget drops connID. It reports whether anything was stored.
func (m *Manager) Forget(connID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[connID]
	if !ok {
		return false
	}
	delete(m.entries, connID)
	if m.owners[e.owner] == connID {
		delete(m.owners, e.owner)
	}
	return true
}

// ForgetOwner drops the id bound to owner and returns how many entries
// were removed.
func (m *Manager) ForgetOwner(owner string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.owners[owner]
	if !ok {
		return 0
	}
	delete(m.owners, owner)
	delete(m.entries, id)
	return 1
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
