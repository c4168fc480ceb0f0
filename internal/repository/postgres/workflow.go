package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/repository"
)

type workflowRepository struct {
	BaseRepository
}

func NewWorkflowRepository(base BaseRepository) repository.WorkflowRepository {
	return &workflowRepository{base}
}

func (r *workflowRepository) ApplyReview(ctx context.Context, rv *model.Review) error {
	query := `
		UPDATE patient_records SET
			status = $1,
			diagnosis = $2,
			prescription = $3,
			doctor_notes = $4,
			reviewer_id = $5,
			reviewer_name = $6,
			reviewed_at = $7,
			updated_at = $7
		WHERE id = $8 AND status = $9
	`

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, query,
			rv.Status,
			rv.Diagnosis,
			rv.Prescription,
			rv.Notes,
			rv.ReviewerID,
			rv.ReviewerName,
			rv.ReviewedAt,
			rv.RecordID,
			model.RecordStatusPending,
		)
		if err != nil {
			return mapError(err, "update medical record")
		}
		if err := requireRow(ctx, tx, result, "patient_records", rv.RecordID); err != nil {
			return err
		}

		if rv.Issued != nil {
			if err := insertPrescription(ctx, tx, rv.Issued); err != nil {
				return err
			}
		}
		if rv.Notification != nil {
			if err := insertNotification(ctx, tx, rv.Notification); err != nil {
				return err
			}
		}
		return insertOutbox(ctx, tx, rv.Events)
	})
}

func (r *workflowRepository) ApplyDispense(ctx context.Context, d *model.Dispense) error {
	prescriptionQuery := `
		UPDATE prescriptions SET
			status = $1,
			dispensed_by = $2,
			dispensed_at = $3,
			notes = $4,
			updated_at = $3
		WHERE id = $5 AND status = $6
		RETURNING record_id
	`
	recordQuery := `
		UPDATE patient_records SET
			status = $1,
			dispensed_by = $2,
			dispenser_name = $3,
			dispensed_at = $4,
			updated_at = $4
		WHERE id = $5 AND status = $6
	`

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var recordID uuid.UUID
		err := tx.QueryRowxContext(ctx, prescriptionQuery,
			model.PrescriptionStatusDispensed,
			d.DispenserID,
			d.DispensedAt,
			d.Notes,
			d.PrescriptionID,
			model.PrescriptionStatusPending,
		).Scan(&recordID)
		if err != nil {
			return mapError(err, "dispense prescription")
		}
		d.RecordID = recordID

		result, err := tx.ExecContext(ctx, recordQuery,
			model.RecordStatusDispensed,
			d.DispenserID,
			d.DispenserName,
			d.DispensedAt,
			recordID,
			model.RecordStatusPrescribed,
		)
		if err != nil {
			return mapError(err, "update medical record")
		}
		if err := requireRow(ctx, tx, result, "patient_records", recordID); err != nil {
			return err
		}

		if d.Notification != nil {
			if err := insertNotification(ctx, tx, d.Notification); err != nil {
				return err
			}
		}
		if d.Message != nil {
			if err := insertMessage(ctx, tx, d.Message); err != nil {
				return err
			}
		}
		return insertOutbox(ctx, tx, d.Events)
	})
}

func (r *workflowRepository) Deliver(ctx context.Context, delivery *model.Delivery) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := insertMessage(ctx, tx, delivery.Message); err != nil {
			return err
		}
		if delivery.Notification != nil {
			if err := insertNotification(ctx, tx, delivery.Notification); err != nil {
				return err
			}
		}
		return insertOutbox(ctx, tx, delivery.Events)
	})
}

type rowsAffected interface {
	RowsAffected() (int64, error)
}

// requireRow turns a conditional update that touched nothing into ErrNotFound or ErrInvalidTransition
func requireRow(ctx context.Context, tx *sqlx.Tx, result rowsAffected, table string, id uuid.UUID) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return mapError(err, "get rows affected")
	}
	if rows > 0 {
		return nil
	}

	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, table)
	if err := tx.GetContext(ctx, &exists, query, id); err != nil {
		return mapError(err, "check "+table)
	}
	if !exists {
		return fmt.Errorf("%s %s: %w", table, id, repository.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", table, id, repository.ErrInvalidTransition)
}

func insertPrescription(ctx context.Context, tx *sqlx.Tx, p *model.Prescription) error {
	query := `
		INSERT INTO prescriptions (
			id, record_id, patient_id, doctor_id, medication, dosage,
			instructions, status, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := tx.ExecContext(ctx, query,
		p.ID,
		p.RecordID,
		p.PatientID,
		p.DoctorID,
		p.Medication,
		p.Dosage,
		p.Instructions,
		p.Status,
		p.Notes,
		p.CreatedAt,
		p.UpdatedAt,
	)
	return mapError(err, "create prescription")
}

func insertNotification(ctx context.Context, tx *sqlx.Tx, n *model.Notification) error {
	query := `
		INSERT INTO notifications (id, user_id, type, title, message, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.ExecContext(ctx, query, n.ID, n.UserID, n.Type, n.Title, n.Message, n.Read, n.CreatedAt)
	return mapError(err, "create notification")
}

func insertMessage(ctx context.Context, tx *sqlx.Tx, m *model.Message) error {
	query := `
		INSERT INTO messages (id, user_id, from_user_id, from_role, from_name, body, read, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := tx.ExecContext(ctx, query, m.ID, m.UserID, m.FromUserID, m.FromRole, m.FromName, m.Body, m.Read, m.SentAt)
	return mapError(err, "create message")
}
