package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// NotificationRepo stores per-user and broadcast notifications. Read state
// for broadcasts is kept per user in notification_reads.
type NotificationRepo struct {
	db *sql.DB
}

// NewNotificationRepo returns a NotificationRepo bound to db.
func NewNotificationRepo(db *sql.DB) *NotificationRepo { return &NotificationRepo{db: db} }

// Create inserts n and sets its ID and CreatedAt.
func (r *NotificationRepo) Create(ctx context.Context, n *model.Notification) error {
	if n.Type == "" {
		n.Type = model.NotifyInfo
	}
	var data any
	if len(n.Data) > 0 {
		data = []byte(n.Data)
	}
	n.CreatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO notifications (user_id, title, message, type, data, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		n.UserID, n.Title, n.Message, n.Type, data, n.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	n.ID = uint64(id)
	return nil
}

// visibleTo selects notifications addressed to the user or to everyone,
// with the user's read state.
const visibleTo = `FROM notifications n
	LEFT JOIN notification_reads r ON r.notification_id = n.id AND r.user_id = ?
	WHERE (n.user_id = ? OR n.user_id IS NULL)`

// ListForUser returns one page of the user's notifications, newest first,
// and the total count.
func (r *NotificationRepo) ListForUser(ctx context.Context, userID uint64, unreadOnly bool, page, limit int) ([]model.Notification, int, error) {
	cond := ""
	if unreadOnly {
		cond = " AND r.read_at IS NULL"
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) "+visibleTo+cond, userID, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, `SELECT n.id, n.user_id, n.title, n.message, n.type, n.data, n.created_at, r.read_at `+
		visibleTo+cond+` ORDER BY n.created_at DESC, n.id DESC LIMIT ? OFFSET ?`,
		userID, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []model.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *n)
	}
	return out, total, rows.Err()
}

// UnreadCount counts the user's unread notifications.
func (r *NotificationRepo) UnreadCount(ctx context.Context, userID uint64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) "+visibleTo+" AND r.read_at IS NULL", userID, userID).Scan(&n)
	return n, err
}

// MarkRead marks one notification read for the user. Marking an already
// read notification is a no-op.
func (r *NotificationRepo) MarkRead(ctx context.Context, userID, id uint64) (*model.Notification, error) {
	n, err := scanNotification(r.db.QueryRowContext(ctx,
		`SELECT n.id, n.user_id, n.title, n.message, n.type, n.data, n.created_at, r.read_at `+visibleTo+` AND n.id = ?`,
		userID, userID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotificationNotFound
	}
	if err != nil {
		return nil, err
	}
	if n.Read {
		return n, nil
	}

	at := time.Now().UTC()
	if _, err := r.db.ExecContext(ctx,
		"INSERT IGNORE INTO notification_reads (notification_id, user_id, read_at) VALUES (?, ?, ?)",
		id, userID, at); err != nil {
		return nil, err
	}
	n.Read = true
	n.ReadAt = &at
	return n, nil
}

// MarkAllRead marks every visible notification read and returns how many
// changed.
func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID uint64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `INSERT IGNORE INTO notification_reads (notification_id, user_id, read_at)
		SELECT n.id, ?, UTC_TIMESTAMP() `+visibleTo+` AND r.read_at IS NULL`,
		userID, userID, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanNotification(row rowScanner) (*model.Notification, error) {
	var (
		n      model.Notification
		userID sql.NullInt64
		data   []byte
		readAt sql.NullTime
	)
	if err := row.Scan(&n.ID, &userID, &n.Title, &n.Message, &n.Type, &data, &n.CreatedAt, &readAt); err != nil {
		return nil, err
	}
	if userID.Valid {
		u := uint64(userID.Int64)
		n.UserID = &u
	}
	if len(data) > 0 {
		n.Data = data
	}
	if readAt.Valid {
		t := readAt.Time
		n.Read = true
		n.ReadAt = &t
	}
	return &n, nil
}
