package queue

import (
	"context"
	"strings"

	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/repository"
	apperrors "github.com/jwalitptl/careflow-api/pkg/errors"
)

// DoctorQueue splits the doctor's dashboard into work to do and work done
type DoctorQueue struct {
	Pending  []*model.RecordView `json:"pending"`
	Reviewed []*model.RecordView `json:"reviewed"`
}

// Service answers the read-only dashboard queries
type Service struct {
	records       repository.MedicalRecordRepository
	prescriptions repository.PrescriptionRepository
}

func NewService(records repository.MedicalRecordRepository, prescriptions repository.PrescriptionRepository) *Service {
	return &Service{records: records, prescriptions: prescriptions}
}

func (s *Service) DoctorQueue(ctx context.Context) (*DoctorQueue, error) {
	pending, err := s.records.List(ctx, model.RecordFilter{
		Statuses: []model.RecordStatus{model.RecordStatusPending},
		OrderBy:  model.OrderBySubmitted,
	})
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	reviewed, err := s.records.List(ctx, model.RecordFilter{
		Statuses: []model.RecordStatus{model.RecordStatusReviewed, model.RecordStatusPrescribed},
		OrderBy:  model.OrderByReviewed,
	})
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	return &DoctorQueue{Pending: pending, Reviewed: reviewed}, nil
}

// ClerkQueue lists prescriptions by status: "pending" (default), "dispensed" or "all"
func (s *Service) ClerkQueue(ctx context.Context, status string) ([]*model.PrescriptionView, error) {
	var filter model.PrescriptionFilter
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", string(model.PrescriptionStatusPending):
		filter.Status = model.PrescriptionStatusPending
	case string(model.PrescriptionStatusDispensed):
		filter.Status = model.PrescriptionStatusDispensed
	case "all":
	default:
		return nil, apperrors.Validation("status must be pending, dispensed or all")
	}

	prescriptions, err := s.prescriptions.List(ctx, filter)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return prescriptions, nil
}

// Dispensed is the clerk's history, most recently dispensed first
func (s *Service) Dispensed(ctx context.Context) ([]*model.RecordView, error) {
	records, err := s.records.List(ctx, model.RecordFilter{
		Statuses: []model.RecordStatus{model.RecordStatusDispensed},
		OrderBy:  model.OrderByDispensed,
	})
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return records, nil
}

func (s *Service) PatientHistory(ctx context.Context, patient model.Actor) ([]*model.RecordView, error) {
	id := patient.ID
	records, err := s.records.List(ctx, model.RecordFilter{PatientID: &id, OrderBy: model.OrderBySubmitted})
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return records, nil
}
