package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/repository"
)

type notificationRepository struct {
	BaseRepository
}

func NewNotificationRepository(base BaseRepository) repository.NotificationRepository {
	return &notificationRepository{base}
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.Notification, error) {
	query := `
		SELECT id, user_id, type, title, message, read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	notifications := []*model.Notification{}
	if err := r.db.SelectContext(ctx, &notifications, query, userID); err != nil {
		return nil, mapError(err, "list notifications")
	}
	return notifications, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	query := `UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2 AND read = FALSE`

	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return false, mapError(err, "mark notification read")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, mapError(err, "get rows affected")
	}
	return rows > 0, nil
}
