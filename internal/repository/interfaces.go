package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/careflow-api/internal/model"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicate         = errors.New("duplicate")
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrUnknownUser means a write referenced a user id that is not stored
	ErrUnknownUser = errors.New("unknown user")
)

// All repository interfaces in one file
type (
	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
	}

	MedicalRecordRepository interface {
		Create(ctx context.Context, record *model.MedicalRecord, events ...*model.OutboxEvent) error
		Get(ctx context.Context, id uuid.UUID) (*model.MedicalRecord, error)
		// List returns records joined with their patient, newest first on filter.OrderBy
		List(ctx context.Context, filter model.RecordFilter) ([]*model.RecordView, error)
	}

	PrescriptionRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Prescription, error)
		GetPendingByRecord(ctx context.Context, recordID uuid.UUID) (*model.Prescription, error)
		// List returns prescriptions joined with patient and doctor, newest first
		List(ctx context.Context, filter model.PrescriptionFilter) ([]*model.PrescriptionView, error)
	}

	MessageRepository interface {
		ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.Message, error)
		// MarkRead only touches messages owned by userID and reports whether a row changed
		MarkRead(ctx context.Context, id, userID uuid.UUID) (bool, error)
	}

	NotificationRepository interface {
		ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.Notification, error)
		MarkRead(ctx context.Context, id, userID uuid.UUID) (bool, error)
	}

	// WorkflowRepository applies multi-entity writes atomically together with their outbox events
	WorkflowRepository interface {
		ApplyReview(ctx context.Context, review *model.Review) error
		ApplyDispense(ctx context.Context, dispense *model.Dispense) error
		Deliver(ctx context.Context, delivery *model.Delivery) error
	}

	OutboxRepository interface {
		// ClaimPending moves up to limit pending events to processing and returns them
		ClaimPending(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		// MarkFailed records the error and returns the event to pending, or to failed once attempts reach maxAttempts
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, maxAttempts int) error
		// ReleaseStale returns events stuck in processing since before cutoff to pending
		ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error)
	}

	// Pinger reports store health
	Pinger interface {
		Ping(ctx context.Context) error
	}
)
