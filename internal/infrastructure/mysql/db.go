package mysql

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"auction-engine/internal/domain"

	driver "github.com/go-sql-driver/mysql"
)

//go:embed schema.sql
var schema string

// querier is satisfied by both *sql.DB and *sql.Tx, so every repository can
// run standalone or inside a UnitOfWork.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// EnsureSchema creates missing tables. Statements run one by one since the
// driver does not enable multiStatements by default.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

type UnitOfWork struct {
	db *sql.DB
}

func NewUnitOfWork(db *sql.DB) *UnitOfWork {
	return &UnitOfWork{db: db}
}

func (u *UnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	repos := domain.Repositories{
		Auctions:      &MySQLAuctionRepository{db: tx},
		Bids:          &MySQLBidRepository{db: tx},
		Notifications: &MySQLNotificationRepository{db: tx},
	}

	if err := fn(ctx, repos); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback: %v)", classify(err), rbErr)
		}
		return classify(err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", classify(err))
	}
	return nil
}

const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

// classify turns InnoDB lock conflicts into ErrPriceConflict so callers
// retry them like a lost compare-and-set.
func classify(err error) error {
	var myErr *driver.MySQLError
	if errors.As(err, &myErr) && (myErr.Number == errDeadlock || myErr.Number == errLockWaitTimeout) {
		return fmt.Errorf("%w: %v", domain.ErrPriceConflict, err)
	}
	return err
}
