package accounts

import (
	"context"
	"sort"
	"sync"

	"github.com/dmitrijs2005/gophrelay/internal/common"
	"github.com/dmitrijs2005/gophrelay/internal/cryptox"
	"github.com/dmitrijs2005/gophrelay/internal/protocol"
	"github.com/dmitrijs2005/gophrelay/internal/server/models"
	"github.com/google/uuid"
)

// Memory is a mutex-guarded Store that lives only as long as the process.
type Memory struct {
	mu         sync.RWMutex
	users      map[string]*models.User
	friends    map[models.Friendship]struct{}
	iterations int
}

var _ Store = (*Memory)(nil)

func NewMemory(iterations int) *Memory {
	if iterations <= 0 {
		iterations = cryptox.DefaultPasswordIterations
	}
	return &Memory{
		users:      make(map[string]*models.User),
		friends:    make(map[models.Friendship]struct{}),
		iterations: iterations,
	}
}

func (m *Memory) FindUser(_ context.Context, name string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[protocol.Canonical(name)]
	if !ok {
		return "", false, nil
	}
	return u.ID, true, nil
}

func (m *Memory) VerifyUser(_ context.Context, name, password string) (bool, error) {
	m.mu.RLock()
	u, ok := m.users[protocol.Canonical(name)]
	m.mu.RUnlock()
	if !ok {
		cryptox.HashPassword(password, cryptox.NewSalt(), m.iterations)
		return false, nil
	}
	return cryptox.CheckPassword(password, u.Salt, u.PasswordHash, u.Iterations), nil
}

func (m *Memory) AddUser(_ context.Context, name, password string) error {
	if err := protocol.ValidateUsername(name); err != nil {
		return err
	}
	name = protocol.Canonical(name)
	salt := cryptox.NewSalt()
	hash := cryptox.HashPassword(password, salt, m.iterations)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[name]; ok {
		return common.ErrorAlreadyExists
	}
	m.users[name] = &models.User{
		ID:           uuid.NewString(),
		UserName:     name,
		PasswordHash: hash,
		Salt:         salt,
		Iterations:   m.iterations,
	}
	return nil
}

func (m *Memory) AddFriendship(_ context.Context, a, b string) error {
	a, b = protocol.Canonical(a), protocol.Canonical(b)
	if a == b {
		return common.ErrorValidation
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[a]; !ok {
		return common.ErrorNotFound
	}
	if _, ok := m.users[b]; !ok {
		return common.ErrorNotFound
	}
	m.friends[models.NewFriendship(a, b)] = struct{}{}
	return nil
}

func (m *Memory) AreFriends(_ context.Context, a, b string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.friends[models.NewFriendship(protocol.Canonical(a), protocol.Canonical(b))]
	return ok, nil
}

func (m *Memory) FriendsOf(_ context.Context, user string) ([]string, error) {
	user = protocol.Canonical(user)

	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []string
	for f := range m.friends {
		switch user {
		case f.UserA:
			result = append(result, f.UserB)
		case f.UserB:
			result = append(result, f.UserA)
		}
	}
	sort.Strings(result)
	return result, nil
}
