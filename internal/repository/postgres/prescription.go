package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/repository"
)

type prescriptionRepository struct {
	BaseRepository
}

func NewPrescriptionRepository(base BaseRepository) repository.PrescriptionRepository {
	return &prescriptionRepository{base}
}

const prescriptionColumns = `
	p.id, p.record_id, p.patient_id, p.doctor_id, p.medication, p.dosage, p.instructions,
	p.status, p.notes, p.dispensed_by, p.dispensed_at, p.created_at, p.updated_at`

func (r *prescriptionRepository) Get(ctx context.Context, id uuid.UUID) (*model.Prescription, error) {
	query := `SELECT ` + prescriptionColumns + ` FROM prescriptions p WHERE p.id = $1`

	var p model.Prescription
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		return nil, mapError(err, "get prescription")
	}
	return &p, nil
}

func (r *prescriptionRepository) GetPendingByRecord(ctx context.Context, recordID uuid.UUID) (*model.Prescription, error) {
	query := `
		SELECT ` + prescriptionColumns + `
		FROM prescriptions p
		WHERE p.record_id = $1 AND p.status = $2
		ORDER BY p.created_at DESC
		LIMIT 1
	`

	var p model.Prescription
	if err := r.db.GetContext(ctx, &p, query, recordID, model.PrescriptionStatusPending); err != nil {
		return nil, mapError(err, "get pending prescription")
	}
	return &p, nil
}

func (r *prescriptionRepository) List(ctx context.Context, filter model.PrescriptionFilter) ([]*model.PrescriptionView, error) {
	query := `
		SELECT ` + prescriptionColumns + `,
			TRIM(pu.first_name || ' ' || pu.last_name) AS patient_name,
			pu.email AS patient_email,
			TRIM(du.first_name || ' ' || du.last_name) AS doctor_name
		FROM prescriptions p
		JOIN users pu ON pu.id = p.patient_id
		JOIN users du ON du.id = p.doctor_id`

	var args []interface{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += ` WHERE p.status = $1`
	}
	query += ` ORDER BY p.created_at DESC`

	out := []*model.PrescriptionView{}
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, mapError(err, "list prescriptions")
	}
	return out, nil
}
