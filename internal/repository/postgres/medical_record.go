package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/repository"
)

type medicalRecordRepository struct {
	BaseRepository
}

func NewMedicalRecordRepository(base BaseRepository) repository.MedicalRecordRepository {
	return &medicalRecordRepository{base}
}

const recordColumns = `
	r.id, r.patient_id, r.symptoms, r.pain_level, r.vital_signs, r.medical_history,
	r.allergies, r.current_medications, r.additional_notes, r.age, r.emergency_contact,
	r.status, r.submitted_at, r.diagnosis, r.prescription, r.doctor_notes,
	r.reviewer_id, r.reviewer_name, r.reviewed_at, r.dispensed_by, r.dispenser_name,
	r.dispensed_at, r.updated_at`

func (r *medicalRecordRepository) Create(ctx context.Context, record *model.MedicalRecord, events ...*model.OutboxEvent) error {
	query := `
		INSERT INTO patient_records (
			id, patient_id, symptoms, pain_level, vital_signs, medical_history,
			allergies, current_medications, additional_notes, age, emergency_contact,
			status, submitted_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			record.ID,
			record.PatientID,
			record.Symptoms,
			record.PainLevel,
			record.VitalSigns,
			record.MedicalHistory,
			record.Allergies,
			record.CurrentMedications,
			record.AdditionalNotes,
			record.Age,
			record.EmergencyContact,
			record.Status,
			record.SubmittedAt,
			record.UpdatedAt,
		)
		if err != nil {
			return mapError(err, "create medical record")
		}
		return insertOutbox(ctx, tx, events)
	})
}

func (r *medicalRecordRepository) Get(ctx context.Context, id uuid.UUID) (*model.MedicalRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM patient_records r WHERE r.id = $1`

	var record model.MedicalRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, mapError(err, "get medical record")
	}
	return &record, nil
}

func (r *medicalRecordRepository) List(ctx context.Context, filter model.RecordFilter) ([]*model.RecordView, error) {
	query := `
		SELECT ` + recordColumns + `,
			TRIM(u.first_name || ' ' || u.last_name) AS patient_name,
			u.email AS patient_email
		FROM patient_records r
		JOIN users u ON u.id = r.patient_id
		WHERE 1=1`

	var args []interface{}
	if filter.PatientID != nil {
		args = append(args, *filter.PatientID)
		query += fmt.Sprintf(" AND r.patient_id = $%d", len(args))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		query += fmt.Sprintf(" AND r.status = ANY($%d)", len(args))
	}
	query += " ORDER BY " + orderColumn(filter.OrderBy) + " DESC NULLS LAST, r.submitted_at DESC"

	records := []*model.RecordView{}
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, mapError(err, "list medical records")
	}
	return records, nil
}

func orderColumn(o model.RecordOrder) string {
	switch o {
	case model.OrderByReviewed:
		return "r.reviewed_at"
	case model.OrderByDispensed:
		return "r.dispensed_at"
	default:
		return "r.submitted_at"
	}
}
