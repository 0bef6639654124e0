// Package repomanager vends SQL-backed account repositories and applies the
// embedded goose migrations for the selected dialect.
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/gophrelay/internal/dbx"
	"github.com/dmitrijs2005/gophrelay/internal/server/migrations"
	"github.com/dmitrijs2005/gophrelay/internal/server/repositories/friends"
	"github.com/dmitrijs2005/gophrelay/internal/server/repositories/users"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// Supported dialects.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

type dialect struct {
	driver string
	goose  string
}

var dialects = map[string]dialect{
	DialectPostgres: {driver: "pgx", goose: "pgx"},
	DialectSQLite:   {driver: "sqlite", goose: "sqlite3"},
}

// SQLRepositoryManager vends repositories bound to a DBTX.
type SQLRepositoryManager struct {
	dialect dialect
}

// NewRepositoryManager returns a manager for the named dialect.
func NewRepositoryManager(name string) (RepositoryManager, error) {
	d, ok := dialects[name]
	if !ok {
		return nil, fmt.Errorf("unsupported dialect %q", name)
	}
	return &SQLRepositoryManager{dialect: d}, nil
}

// DriverName returns the database/sql driver registered for the dialect.
func DriverName(name string) (string, error) {
	d, ok := dialects[name]
	if !ok {
		return "", fmt.Errorf("unsupported dialect %q", name)
	}
	return d.driver, nil
}

func (m *SQLRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewSQLRepository(db)
}

func (m *SQLRepositoryManager) Friends(db dbx.DBTX) friends.Repository {
	return friends.NewSQLRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded migrations to db.
func (m *SQLRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect(m.dialect.goose); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}
