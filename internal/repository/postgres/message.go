package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/repository"
)

type messageRepository struct {
	BaseRepository
}

func NewMessageRepository(base BaseRepository) repository.MessageRepository {
	return &messageRepository{base}
}

func (r *messageRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.Message, error) {
	query := `
		SELECT id, user_id, from_user_id, from_role, from_name, body, read, sent_at
		FROM messages
		WHERE user_id = $1
		ORDER BY sent_at DESC
	`

	messages := []*model.Message{}
	if err := r.db.SelectContext(ctx, &messages, query, userID); err != nil {
		return nil, mapError(err, "list messages")
	}
	return messages, nil
}

func (r *messageRepository) MarkRead(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	query := `UPDATE messages SET read = TRUE WHERE id = $1 AND user_id = $2 AND read = FALSE`

	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return false, mapError(err, "mark message read")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, mapError(err, "get rows affected")
	}
	return rows > 0, nil
}
