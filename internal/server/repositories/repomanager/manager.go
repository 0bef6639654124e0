package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/gophrelay/internal/dbx"
	"github.com/dmitrijs2005/gophrelay/internal/server/repositories/friends"
	"github.com/dmitrijs2005/gophrelay/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Friends(db dbx.DBTX) friends.Repository
}
