package store

import (
	"context"
	"database/sql"
	"fmt"
)

const messageColumns = `
	m.id, m.sender_id, su.name, m.receiver_id, ru.name, m.content, m.is_read, m.reply_to_id, m.created_at,
	rm.id, rm.sender_id, rmu.name, rm.content`

const messageFrom = `
	FROM messages m
	JOIN users su ON su.id = m.sender_id
	JOIN users ru ON ru.id = m.receiver_id
	LEFT JOIN messages rm ON rm.id = m.reply_to_id
	LEFT JOIN users rmu ON rmu.id = rm.sender_id `

func scanMessage(row rowScanner) (Message, error) {
	var (
		msg          Message
		replyToID    sql.NullInt64
		replyID      sql.NullInt64
		replySender  sql.NullInt64
		replyName    sql.NullString
		replyContent sql.NullString
	)
	err := row.Scan(
		&msg.ID, &msg.SenderID, &msg.SenderName, &msg.ReceiverID, &msg.ReceiverName, &msg.Content, &msg.IsRead, &replyToID, &msg.CreatedAt,
		&replyID, &replySender, &replyName, &replyContent,
	)
	if err != nil {
		return Message{}, err
	}
	msg.ReplyToID = int64Ptr(replyToID)
	if replyID.Valid {
		msg.ReplyTo = &MessageRef{
			ID:         replyID.Int64,
			SenderID:   replySender.Int64,
			SenderName: replyName.String,
			Content:    replyContent.String,
		}
	}
	return msg, nil
}

func (s *PostgresStore) queryMessages(ctx context.Context, op, query string, args ...any) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	items := make([]Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, msg)
	}
	return items, rows.Err()
}

func (s *PostgresStore) CreateMessage(ctx context.Context, msg Message) (Message, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (sender_id, receiver_id, content, reply_to_id) VALUES ($1, $2, $3, $4) RETURNING id
	`, msg.SenderID, msg.ReceiverID, msg.Content, nullableInt64(msg.ReplyToID)).Scan(&id)
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", classify(err))
	}
	return s.GetMessage(ctx, id)
}

func (s *PostgresStore) GetMessage(ctx context.Context, id int64) (Message, error) {
	return scanMessage(s.db.QueryRowContext(ctx, `SELECT `+messageColumns+messageFrom+`WHERE m.id = $1`, id))
}

// ListMessagesBetween returns the conversation between two users, oldest first.
func (s *PostgresStore) ListMessagesBetween(ctx context.Context, userID, partnerID int64) ([]Message, error) {
	return s.queryMessages(ctx, "list messages", `
		SELECT `+messageColumns+messageFrom+`
		WHERE (m.sender_id = $1 AND m.receiver_id = $2) OR (m.sender_id = $2 AND m.receiver_id = $1)
		ORDER BY m.created_at ASC, m.id ASC
	`, userID, partnerID)
}

// ListMessagesFor returns every message the user sent or received, newest first.
func (s *PostgresStore) ListMessagesFor(ctx context.Context, userID int64) ([]Message, error) {
	return s.queryMessages(ctx, "list user messages", `
		SELECT `+messageColumns+messageFrom+`
		WHERE m.sender_id = $1 OR m.receiver_id = $1
		ORDER BY m.created_at DESC, m.id DESC
	`, userID)
}

func (s *PostgresStore) MarkMessagesRead(ctx context.Context, senderID, receiverID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE messages SET is_read = TRUE
		WHERE sender_id = $1 AND receiver_id = $2 AND NOT is_read
	`, senderID, receiverID)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark messages read rows: %w", err)
	}
	return affected, nil
}

func (s *PostgresStore) DeleteMessage(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return affectedOrNotFound(result, "delete message")
}

// Notifications

func (s *PostgresStore) CreateNotification(ctx context.Context, n Notification) (Notification, error) {
	var link any
	if n.Link != "" {
		link = n.Link
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO notifications (user_id, title, message, link) VALUES ($1, $2, $3, $4)
		RETURNING id, is_read, created_at
	`, n.UserID, n.Title, n.Message, link).Scan(&n.ID, &n.IsRead, &n.CreatedAt)
	if err != nil {
		return Notification{}, fmt.Errorf("insert notification: %w", classify(err))
	}
	return n, nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, userID int64, limit int) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, message, COALESCE(link, ''), is_read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]Notification, 0)
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Link, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

func (s *PostgresStore) CountUnreadNotifications(ctx context.Context, userID int64) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) MarkNotificationsRead(ctx context.Context, userID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND NOT is_read`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark notifications read rows: %w", err)
	}
	return affected, nil
}

func (s *PostgresStore) DeleteNotifications(ctx context.Context, userID int64, window NotificationWindow) (int64, error) {
	var since, before any
	if !window.Since.IsZero() {
		since = window.Since
	}
	if !window.Before.IsZero() {
		before = window.Before
	}
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM notifications
		WHERE user_id = $1
			AND ($2::timestamptz IS NULL OR created_at >= $2)
			AND ($3::timestamptz IS NULL OR created_at < $3)
	`, userID, since, before)
	if err != nil {
		return 0, fmt.Errorf("delete notifications: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete notifications rows: %w", err)
	}
	return affected, nil
}
