package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"auction-engine/internal/domain"
)

type userRecord struct {
	email         string
	admin         bool
	validated     bool
	hasCredential bool
}

// MySQLUserDirectory reads bidder roles and eligibility from the users table.
type MySQLUserDirectory struct {
	db querier
}

func NewMySQLUserDirectory(db *sql.DB) *MySQLUserDirectory {
	return &MySQLUserDirectory{db: db}
}

func (d *MySQLUserDirectory) get(ctx context.Context, userID string) (userRecord, error) {
	query := `SELECT email, is_admin, is_validated, has_credential FROM users WHERE id = ?`

	var u userRecord
	err := d.db.QueryRowContext(ctx, query, userID).Scan(&u.email, &u.admin, &u.validated, &u.hasCredential)
	if errors.Is(err, sql.ErrNoRows) {
		return userRecord{}, domain.ErrUserNotFound
	}
	if err != nil {
		return userRecord{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (d *MySQLUserDirectory) IsAdmin(ctx context.Context, userID string) (bool, error) {
	u, err := d.get(ctx, userID)
	return u.admin, err
}

func (d *MySQLUserDirectory) IsEligible(ctx context.Context, userID string) (bool, error) {
	u, err := d.get(ctx, userID)
	return u.validated, err
}

func (d *MySQLUserDirectory) HasCredential(ctx context.Context, userID string) (bool, error) {
	u, err := d.get(ctx, userID)
	return u.hasCredential, err
}

func (d *MySQLUserDirectory) ContactEmail(ctx context.Context, userID string) (string, error) {
	u, err := d.get(ctx, userID)
	return u.email, err
}

type MySQLItemCatalog struct {
	db querier
}

func NewMySQLItemCatalog(db *sql.DB) *MySQLItemCatalog {
	return &MySQLItemCatalog{db: db}
}

func (c *MySQLItemCatalog) ItemTitle(ctx context.Context, itemRef string) (string, error) {
	var title string
	err := c.db.QueryRowContext(ctx, `SELECT title FROM items WHERE ref = ?`, itemRef).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrItemNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get item: %w", err)
	}
	return title, nil
}
