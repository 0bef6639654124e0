package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophrelay/internal/server/models"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRepositoryManager(t *testing.T) {
	for _, name := range []string{DialectPostgres, DialectSQLite} {
		m, err := NewRepositoryManager(name)
		require.NoError(t, err, name)
		assert.NotNil(t, m)
	}

	_, err := NewRepositoryManager("oracle")
	assert.Error(t, err)
}

func TestDriverName(t *testing.T) {
	d, err := DriverName(DialectPostgres)
	require.NoError(t, err)
	assert.Equal(t, "pgx", d)

	d, err = DriverName(DialectSQLite)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d)

	_, err = DriverName("")
	assert.Error(t, err)
}

func TestFactories(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m, err := NewRepositoryManager(DialectPostgres)
	require.NoError(t, err)
	assert.NotNil(t, m.Users(db))
	assert.NotNil(t, m.Friends(db))
}

func TestRunMigrations_Seam(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()

	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		if dir != "." {
			return errors.New("unexpected dir")
		}
		return nil
	}
	m, err := NewRepositoryManager(DialectPostgres)
	require.NoError(t, err)
	require.NoError(t, m.RunMigrations(context.Background(), db))

	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	assert.EqualError(t, m.RunMigrations(context.Background(), db), "boom")
}

// The embedded schema is applied to a real in-memory SQLite database and
// exercised through the repositories.
func TestRunMigrations_SQLite(t *testing.T) {
	db, err := sql.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	defer db.Close()

	m, err := NewRepositoryManager(DialectSQLite)
	require.NoError(t, err)
	require.NoError(t, m.RunMigrations(context.Background(), db))

	ctx := context.Background()
	for _, name := range []string{"alice", "bob"} {
		_, err := m.Users(db).Create(ctx, &models.User{UserName: name, PasswordHash: []byte("h"), Salt: []byte("s"), Iterations: 1})
		require.NoError(t, err)
	}

	f := models.NewFriendship("bob", "alice")
	inserted, err := m.Friends(db).Add(ctx, f)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = m.Friends(db).Add(ctx, f)
	require.NoError(t, err)
	assert.False(t, inserted)

	ok, err := m.Friends(db).Exists(ctx, f)
	require.NoError(t, err)
	assert.True(t, ok)

	list, err := m.Friends(db).ListFor(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, list)
}
