package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Notifier delivers a message to a client. DetteService calls it after commit
// and never lets a delivery failure affect the primary operation.
type Notifier interface {
	Notify(ctx context.Context, clientID int, message string) error
}

// NotificationService stores client notifications.
type NotificationService interface {
	Notifier
	CreateNotification(ctx context.Context, clientID int, message string) (*Notification, error)
	// GetNotifications lists a client's notifications, newest first.
	GetNotifications(ctx context.Context, clientID int) ([]Notification, error)
	MarkAsRead(ctx context.Context, id int) (*Notification, error)
}

type notificationService struct {
	pool *pgxpool.Pool
}

func NewNotificationService(pool *pgxpool.Pool) NotificationService {
	return &notificationService{pool: pool}
}

func (s *notificationService) Notify(ctx context.Context, clientID int, message string) error {
	_, err := s.CreateNotification(ctx, clientID, message)
	return err
}

func (s *notificationService) CreateNotification(ctx context.Context, clientID int, message string) (*Notification, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, invalidInput("notification message is required")
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM clients WHERE id = $1)", clientID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to verify client: %w", err)
	}
	if !exists {
		return nil, notFound("client %d not found", clientID)
	}

	var n Notification
	err := s.pool.QueryRow(ctx, `
		INSERT INTO notifications (client_id, message)
		VALUES ($1, $2)
		RETURNING id, client_id, message, is_read, created_at
	`, clientID, message).Scan(&n.ID, &n.ClientID, &n.Message, &n.IsRead, &n.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	return &n, nil
}

func (s *notificationService) GetNotifications(ctx context.Context, clientID int) ([]Notification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, client_id, message, is_read, created_at
		FROM notifications
		WHERE client_id = $1
		ORDER BY created_at DESC, id DESC
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.ClientID, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *notificationService) MarkAsRead(ctx context.Context, id int) (*Notification, error) {
	var n Notification
	err := s.pool.QueryRow(ctx, `
		UPDATE notifications SET is_read = true
		WHERE id = $1
		RETURNING id, client_id, message, is_read, created_at
	`, id).Scan(&n.ID, &n.ClientID, &n.Message, &n.IsRead, &n.CreatedAt)
	if err != nil {
		return nil, wrapNotFound(err, "notification", id)
	}
	return &n, nil
}
