package submission

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/repository"
	apperrors "github.com/jwalitptl/careflow-api/pkg/errors"
	"github.com/jwalitptl/careflow-api/pkg/metrics"
)

type Service struct {
	records repository.MedicalRecordRepository
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(records repository.MedicalRecordRepository, m *metrics.Metrics) *Service {
	return &Service{records: records, metrics: m, now: time.Now}
}

// Submit stores a new pending record for the patient
func (s *Service) Submit(ctx context.Context, patient model.Actor, req *model.SubmitRecordRequest) (*model.MedicalRecord, error) {
	record, err := s.submit(ctx, patient, req)
	s.metrics.Workflow("submit", err)
	return record, err
}

func (s *Service) submit(ctx context.Context, patient model.Actor, req *model.SubmitRecordRequest) (*model.MedicalRecord, error) {
	if patient.Role != model.RolePatient {
		return nil, apperrors.Unauthorized("only patients can submit records", nil)
	}
	if strings.TrimSpace(req.Symptoms) == "" {
		return nil, apperrors.Validation("symptoms are required")
	}

	now := s.now().UTC()
	record := req.ToRecord(patient.ID, now)

	event, err := model.NewOutboxEvent(model.EventRecordSubmitted, record.ID, model.RecordEvent{
		UserID:   patient.ID,
		RecordID: record.ID,
		Status:   record.Status,
	}, now)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	if err := s.records.Create(ctx, record, event); err != nil {
		if errors.Is(err, repository.ErrUnknownUser) {
			return nil, apperrors.Unauthorized("account no longer exists", err)
		}
		return nil, apperrors.Internal(err)
	}

	log.Ctx(ctx).Info().
		Str("record_id", record.ID.String()).
		Str("patient_id", patient.ID.String()).
		Msg("Medical record submitted")
	return record, nil
}
