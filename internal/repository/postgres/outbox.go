package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/repository"
)

type outboxRepository struct {
	BaseRepository
}

func NewOutboxRepository(base BaseRepository) repository.OutboxRepository {
	return &outboxRepository{base}
}

func (r *outboxRepository) ClaimPending(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	query := `
		UPDATE outbox_events SET status = $1, updated_at = $2
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE status = $3
			ORDER BY created_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, event_type, aggregate_id, payload, status, attempts, last_error,
			created_at, updated_at, processed_at
	`

	events := []*model.OutboxEvent{}
	err := r.db.SelectContext(ctx, &events, query,
		model.OutboxStatusProcessing,
		time.Now().UTC(),
		model.OutboxStatusPending,
		limit,
	)
	if err != nil {
		return nil, mapError(err, "claim outbox events")
	}
	return events, nil
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE outbox_events
		SET status = $1, processed_at = $2, updated_at = $2, last_error = ''
		WHERE id = $3
	`

	_, err := r.db.ExecContext(ctx, query, model.OutboxStatusProcessed, time.Now().UTC(), id)
	return mapError(err, "mark outbox event processed")
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, maxAttempts int) error {
	query := `
		UPDATE outbox_events
		SET attempts = attempts + 1,
			last_error = $1,
			status = CASE WHEN attempts + 1 >= $2 THEN $3 ELSE $4 END,
			updated_at = $5
		WHERE id = $6
	`

	_, err := r.db.ExecContext(ctx, query,
		errMsg,
		maxAttempts,
		model.OutboxStatusFailed,
		model.OutboxStatusPending,
		time.Now().UTC(),
		id,
	)
	return mapError(err, "mark outbox event failed")
}

func (r *outboxRepository) ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE outbox_events SET status = $1, updated_at = $2
		WHERE status = $3 AND updated_at < $4
	`

	res, err := r.db.ExecContext(ctx, query,
		model.OutboxStatusPending,
		time.Now().UTC(),
		model.OutboxStatusProcessing,
		cutoff,
	)
	if err != nil {
		return 0, mapError(err, "release stale outbox events")
	}
	return res.RowsAffected()
}
