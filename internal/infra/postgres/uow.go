package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"learning-progress-engine/internal/app"
)

// ErrTransactionOpen is returned when Run is nested inside an open
// transaction.
var ErrTransactionOpen = errors.New("transaction already open")

// Open builds a bun DB over the postgres DSN.
func Open(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

type repoSet struct {
	db bun.IDB
}

func (r repoSet) Programs() app.ProgramRepository       { return NewProgramRepository(r.db) }
func (r repoSet) Tasks() app.TaskRepository             { return NewTaskRepository(r.db) }
func (r repoSet) Evaluations() app.EvaluationRepository { return NewEvaluationRepository(r.db) }

// NewRepoSet exposes non-transactional repositories, for read paths that do
// not need the unit of work.
func NewRepoSet(db *bun.DB) app.RepoSet {
	return repoSet{db: db}
}

type txMarker struct{}

// UnitOfWork runs a function against repositories bound to one database
// transaction: BEGIN, run, COMMIT on nil error, ROLLBACK otherwise. bun's
// RunInTx guarantees the transaction is closed on every exit path, including
// panics.
type UnitOfWork struct {
	db *bun.DB
}

func NewUnitOfWork(db *bun.DB) *UnitOfWork {
	return &UnitOfWork{db: db}
}

func (u *UnitOfWork) Run(ctx context.Context, fn func(ctx context.Context, repos app.RepoSet) error) error {
	if ctx.Value(txMarker{}) != nil {
		return ErrTransactionOpen
	}
	return u.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(context.WithValue(ctx, txMarker{}, struct{}{}), repoSet{db: tx})
	})
}
