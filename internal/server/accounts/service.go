package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophrelay/internal/common"
	"github.com/dmitrijs2005/gophrelay/internal/cryptox"
	"github.com/dmitrijs2005/gophrelay/internal/dbx"
	"github.com/dmitrijs2005/gophrelay/internal/protocol"
	"github.com/dmitrijs2005/gophrelay/internal/server/models"
	"github.com/dmitrijs2005/gophrelay/internal/server/repositories/repomanager"
)

// Service is the SQL-backed Store.
type Service struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	iterations  int
}

var _ Store = (*Service)(nil)

// NewService constructs a Service. Non-positive iterations fall back to
// cryptox.DefaultPasswordIterations.
func NewService(db *sql.DB, m repomanager.RepositoryManager, iterations int) *Service {
	if iterations <= 0 {
		iterations = cryptox.DefaultPasswordIterations
	}
	return &Service{db: db, repomanager: m, iterations: iterations}
}

func (s *Service) FindUser(ctx context.Context, name string) (string, bool, error) {
	user, err := s.repomanager.Users(s.db).GetByUserName(ctx, protocol.Canonical(name))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	return user.ID, true, nil
}

// VerifyUser hashes the candidate even for unknown users so both outcomes
// cost the same.
func (s *Service) VerifyUser(ctx context.Context, name, password string) (bool, error) {
	user, err := s.repomanager.Users(s.db).GetByUserName(ctx, protocol.Canonical(name))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			cryptox.HashPassword(password, cryptox.NewSalt(), s.iterations)
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	return cryptox.CheckPassword(password, user.Salt, user.PasswordHash, user.Iterations), nil
}

func (s *Service) AddUser(ctx context.Context, name, password string) error {
	if err := protocol.ValidateUsername(name); err != nil {
		return err
	}

	salt := cryptox.NewSalt()
	user := &models.User{
		UserName:     protocol.Canonical(name),
		PasswordHash: cryptox.HashPassword(password, salt, s.iterations),
		Salt:         salt,
		Iterations:   s.iterations,
	}

	if _, err := s.repomanager.Users(s.db).Create(ctx, user); err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return err
		}
		return fmt.Errorf("error creating user: %w", err)
	}
	return nil
}

// AddFriendship checks both accounts and stores the pair in one transaction.
func (s *Service) AddFriendship(ctx context.Context, a, b string) error {
	a, b = protocol.Canonical(a), protocol.Canonical(b)
	if a == b {
		return common.ErrorValidation
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		users := s.repomanager.Users(tx)
		for _, name := range []string{a, b} {
			if _, err := users.GetByUserName(ctx, name); err != nil {
				return err
			}
		}
		if _, err := s.repomanager.Friends(tx).Add(ctx, models.NewFriendship(a, b)); err != nil {
			return fmt.Errorf("error adding friendship: %w", err)
		}
		return nil
	})
}

func (s *Service) AreFriends(ctx context.Context, a, b string) (bool, error) {
	a, b = protocol.Canonical(a), protocol.Canonical(b)
	if a == b {
		return false, nil
	}
	return s.repomanager.Friends(s.db).Exists(ctx, models.NewFriendship(a, b))
}

func (s *Service) FriendsOf(ctx context.Context, user string) ([]string, error) {
	return s.repomanager.Friends(s.db).ListFor(ctx, protocol.Canonical(user))
}
