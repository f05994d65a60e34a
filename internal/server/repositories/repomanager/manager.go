package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/lostfound/internal/dbx"
	"github.com/dmitrijs2005/lostfound/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/lostfound/internal/server/repositories/items"
)

// RepositoryManager vends repositories bound to a DBTX, so callers choose
// between the pool and a transaction per unit of work.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Ping(context.Context) error
	Accounts(db dbx.DBTX) accounts.Repository
	Items(db dbx.DBTX) items.Repository
}
