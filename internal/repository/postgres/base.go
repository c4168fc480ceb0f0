package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/repository"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db *sqlx.DB
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db *sqlx.DB) BaseRepository {
	return BaseRepository{db: db}
}

// GetDB returns the database instance
func (r *BaseRepository) GetDB() *sqlx.DB {
	return r.db
}

// Ping checks the pool can reach the database
func (r *BaseRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// WithTx executes a function within a transaction
func (r *BaseRepository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// insertOutbox writes events inside the caller's transaction
func insertOutbox(ctx context.Context, tx *sqlx.Tx, events []*model.OutboxEvent) error {
	query := `
		INSERT INTO outbox_events (
			id, event_type, aggregate_id, payload, status, attempts, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, 0, $6, $7)
	`
	for _, e := range events {
		if _, err := tx.ExecContext(ctx, query,
			e.ID,
			e.EventType,
			e.AggregateID,
			[]byte(e.Payload),
			e.Status,
			e.CreatedAt,
			e.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert outbox event %s: %w", e.EventType, err)
		}
	}
	return nil
}

// mapError turns driver errors into repository sentinels
func mapError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, repository.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%s: %w", what, repository.ErrDuplicate)
		case foreignKeyViolation:
			// writes only ever reference rows they just read, except user ids taken from tokens
			return fmt.Errorf("%s: %s: %w", what, pqErr.Constraint, repository.ErrUnknownUser)
		}
	}
	return fmt.Errorf("failed to %s: %w", what, err)
}
