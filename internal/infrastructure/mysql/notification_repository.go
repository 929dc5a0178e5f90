package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"auction-engine/internal/domain"
)

type MySQLNotificationRepository struct {
	db querier
}

func NewMySQLNotificationRepository(db *sql.DB) *MySQLNotificationRepository {
	return &MySQLNotificationRepository{db: db}
}

func (r *MySQLNotificationRepository) AppendNotification(ctx context.Context, n *domain.Notification) error {
	query := `
        INSERT INTO notifications (id, recipient_kind, recipient_id, auction_id, type, message, created_at, is_read)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err := r.db.ExecContext(ctx, query, n.ID, string(n.RecipientKind), n.RecipientID,
		n.AuctionID, string(n.Type), n.Message, n.CreatedAt, n.Read)
	if err != nil {
		return fmt.Errorf("append notification: %w", err)
	}
	return nil
}

func (r *MySQLNotificationRepository) ListNotifications(ctx context.Context, filter domain.NotificationFilter) ([]*domain.Notification, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.RecipientKind != "" {
		where = append(where, "recipient_kind = ?")
		args = append(args, string(filter.RecipientKind))
	}
	if filter.RecipientKind != domain.RecipientAdmin && filter.RecipientID != "" {
		where = append(where, "recipient_id = ?")
		args = append(args, filter.RecipientID)
	}
	if filter.UnreadOnly {
		where = append(where, "is_read = FALSE")
	}

	query := `SELECT id, recipient_kind, recipient_id, auction_id, type, message, created_at, is_read FROM notifications`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []*domain.Notification
	for rows.Next() {
		var n domain.Notification
		var kind, typ string
		if err := rows.Scan(&n.ID, &kind, &n.RecipientID, &n.AuctionID, &typ, &n.Message, &n.CreatedAt, &n.Read); err != nil {
			return nil, err
		}
		n.RecipientKind = domain.RecipientKind(kind)
		n.Type = domain.NotificationType(typ)
		out = append(out, &n)
	}
	return out, rows.Err()
}

func (r *MySQLNotificationRepository) MarkRead(ctx context.Context, notificationID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = ?`, notificationID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	// zero rows also means it was already read
	var one int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM notifications WHERE id = ?`, notificationID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotificationNotFound
	}
	return err
}
