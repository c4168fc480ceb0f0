package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/repository"
	apperrors "github.com/jwalitptl/careflow-api/pkg/errors"
	"github.com/jwalitptl/careflow-api/pkg/metrics"
)

const notificationTitle = "Medical Record Reviewed"

type Service struct {
	records  repository.MedicalRecordRepository
	users    repository.UserRepository
	workflow repository.WorkflowRepository
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(
	records repository.MedicalRecordRepository,
	users repository.UserRepository,
	workflow repository.WorkflowRepository,
	m *metrics.Metrics,
) *Service {
	return &Service{
		records:  records,
		users:    users,
		workflow: workflow,
		metrics:  m,
		now:      time.Now,
	}
}

// DoctorName renders how reviewers are shown to patients
func DoctorName(doctor model.Actor) string {
	return "Dr. " + doctor.FullName()
}

// Review records a doctor's diagnosis and, when a prescription is given, issues it
func (s *Service) Review(ctx context.Context, doctor model.Actor, req *model.ReviewRequest) (*model.Review, error) {
	rv, err := s.review(ctx, doctor, req)
	s.metrics.Workflow("review", err)
	return rv, err
}

func (s *Service) review(ctx context.Context, doctor model.Actor, req *model.ReviewRequest) (*model.Review, error) {
	if doctor.Role != model.RoleDoctor {
		return nil, apperrors.Unauthorized("only doctors can review records", nil)
	}
	diagnosis := strings.TrimSpace(req.Diagnosis)
	if strings.TrimSpace(req.RecordID) == "" || diagnosis == "" {
		return nil, apperrors.Validation("recordId and diagnosis are required")
	}
	recordID, err := uuid.Parse(strings.TrimSpace(req.RecordID))
	if err != nil {
		return nil, apperrors.Validation("invalid record id")
	}

	record, err := s.records.Get(ctx, recordID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("record", err)
		}
		return nil, apperrors.Internal(err)
	}
	if record.Status != model.RecordStatusPending {
		return nil, apperrors.Conflict(fmt.Sprintf("record is already %s", record.Status), nil)
	}

	now := s.now().UTC()
	prescription := strings.TrimSpace(req.Prescription)
	rv := &model.Review{
		RecordID:     record.ID,
		Status:       model.RecordStatusReviewed,
		Diagnosis:    diagnosis,
		Prescription: prescription,
		Notes:        strings.TrimSpace(req.Notes),
		ReviewerID:   doctor.ID,
		ReviewerName: DoctorName(doctor),
		ReviewedAt:   now,
	}

	recordEvent := model.RecordEvent{UserID: record.PatientID, RecordID: record.ID}
	if prescription != "" {
		if err := s.issue(ctx, rv, record, doctor, now); err != nil {
			return nil, err
		}
		recordEvent.PrescriptionID = &rv.Issued.ID
	}
	recordEvent.Status = rv.Status

	event, err := model.NewOutboxEvent(model.EventRecordReviewed, record.ID, recordEvent, now)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	rv.Events = append(rv.Events, event)

	if err := s.workflow.ApplyReview(ctx, rv); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.NotFound("record", err)
		case errors.Is(err, repository.ErrInvalidTransition):
			return nil, apperrors.Conflict("record is no longer pending review", err)
		case errors.Is(err, repository.ErrUnknownUser):
			return nil, apperrors.Unauthorized("account no longer exists", err)
		default:
			return nil, apperrors.Internal(err)
		}
	}

	log.Ctx(ctx).Info().
		Str("record_id", record.ID.String()).
		Str("doctor_id", doctor.ID.String()).
		Str("status", string(rv.Status)).
		Msg("Medical record reviewed")
	return rv, nil
}

// issue attaches the prescription, the patient notification and its event to rv
func (s *Service) issue(ctx context.Context, rv *model.Review, record *model.MedicalRecord, doctor model.Actor, now time.Time) error {
	patient, err := s.users.Get(ctx, record.PatientID)
	if err != nil {
		return apperrors.Internal(fmt.Errorf("load patient of record %s: %w", record.ID, err))
	}

	rv.Status = model.RecordStatusPrescribed
	rv.Issued = &model.Prescription{
		ID:           uuid.New(),
		RecordID:     record.ID,
		PatientID:    record.PatientID,
		DoctorID:     doctor.ID,
		Medication:   rv.Prescription,
		Dosage:       model.DefaultDosage,
		Instructions: rv.Prescription,
		Status:       model.PrescriptionStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	rv.Notification = model.NewNotification(
		record.PatientID,
		model.NotificationRecordReviewed,
		notificationTitle,
		fmt.Sprintf("Your medical record has been reviewed by %s. A prescription has been issued and is being prepared by the pharmacy.", rv.ReviewerName),
		now,
	)

	event, err := model.NewOutboxEvent(model.EventNotificationCreated, rv.Notification.ID, model.NotificationEvent{
		UserID:         patient.ID,
		NotificationID: rv.Notification.ID,
		Email:          patient.Email,
		Name:           patient.FullName(),
		Type:           rv.Notification.Type,
		Title:          rv.Notification.Title,
		Message:        rv.Notification.Message,
	}, now)
	if err != nil {
		return apperrors.Internal(err)
	}
	rv.Events = append(rv.Events, event)
	return nil
}
