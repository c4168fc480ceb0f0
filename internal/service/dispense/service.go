package dispense

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

const notificationTitle = "Medication Ready for Pickup"

type Service struct {
	prescriptions repository.PrescriptionRepository
	users         repository.UserRepository
	workflow      repository.WorkflowRepository
	metrics       *metrics.Metrics
	now           func() time.Time
}

func NewService(
	prescriptions repository.PrescriptionRepository,
	users repository.UserRepository,
	workflow repository.WorkflowRepository,
	m *metrics.Metrics,
) *Service {
	return &Service{
		prescriptions: prescriptions,
		users:         users,
		workflow:      workflow,
		metrics:       m,
		now:           time.Now,
	}
}

// Dispense hands out a pending prescription identified by its id or by its record id
func (s *Service) Dispense(ctx context.Context, clerk model.Actor, req *model.DispenseRequest) (*model.Dispense, error) {
	d, err := s.dispense(ctx, clerk, req)
	s.metrics.Workflow("dispense", err)
	return d, err
}

func (s *Service) dispense(ctx context.Context, clerk model.Actor, req *model.DispenseRequest) (*model.Dispense, error) {
	if clerk.Role != model.RoleClerk {
		return nil, apperrors.Unauthorized("only clerks can dispense medication", nil)
	}

	prescription, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	if prescription.Status != model.PrescriptionStatusPending {
		return nil, apperrors.NotFound("pending prescription", nil)
	}

	patient, err := s.users.Get(ctx, prescription.PatientID)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("load patient of prescription %s: %w", prescription.ID, err))
	}

	now := s.now().UTC()
	notes := strings.TrimSpace(req.Notes)
	d := &model.Dispense{
		PrescriptionID: prescription.ID,
		RecordID:       prescription.RecordID,
		DispenserID:    clerk.ID,
		DispenserName:  clerk.FullName(),
		Notes:          notes,
		DispensedAt:    now,
	}

	d.Notification = model.NewNotification(
		patient.ID,
		model.NotificationMedicationDispensed,
		notificationTitle,
		fmt.Sprintf("Your prescribed medication \"%s\" has been prepared and is ready for pickup. Please visit the pharmacy at your earliest convenience.", prescription.Medication),
		now,
	)
	d.Message = model.NewMessage(patient.ID, clerk, clerk.FullName(), pickupMessage(prescription.Medication, notes), now)

	if err := s.attachEvents(d, patient, prescription, now); err != nil {
		return nil, apperrors.Internal(err)
	}

	if err := s.workflow.ApplyDispense(ctx, d); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.NotFound("pending prescription", err)
		case errors.Is(err, repository.ErrInvalidTransition):
			return nil, apperrors.Conflict("record is not awaiting dispensing", err)
		case errors.Is(err, repository.ErrUnknownUser):
			return nil, apperrors.Unauthorized("account no longer exists", err)
		default:
			return nil, apperrors.Internal(err)
		}
	}

	log.Ctx(ctx).Info().
		Str("prescription_id", d.PrescriptionID.String()).
		Str("record_id", d.RecordID.String()).
		Str("clerk_id", clerk.ID.String()).
		Msg("Medication dispensed")
	return d, nil
}

// resolve finds the prescription by its own id first, then by record id
func (s *Service) resolve(ctx context.Context, req *model.DispenseRequest) (*model.Prescription, error) {
	rawPrescription := strings.TrimSpace(req.PrescriptionID)
	rawRecord := strings.TrimSpace(req.RecordID)
	if rawPrescription == "" && rawRecord == "" {
		return nil, apperrors.Validation("prescriptionId or recordId is required")
	}

	var (
		prescription *model.Prescription
		err          error
	)
	if rawPrescription != "" {
		id, perr := uuid.Parse(rawPrescription)
		if perr != nil {
			return nil, apperrors.Validation("invalid prescription id")
		}
		prescription, err = s.prescriptions.Get(ctx, id)
	} else {
		id, perr := uuid.Parse(rawRecord)
		if perr != nil {
			return nil, apperrors.Validation("invalid record id")
		}
		prescription, err = s.prescriptions.GetPendingByRecord(ctx, id)
	}

	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("pending prescription", err)
		}
		return nil, apperrors.Internal(err)
	}
	return prescription, nil
}

func (s *Service) attachEvents(d *model.Dispense, patient *model.User, p *model.Prescription, now time.Time) error {
	prescriptionID := p.ID
	dispensed, err := model.NewOutboxEvent(model.EventPrescriptionDispensed, p.ID, model.RecordEvent{
		UserID:         patient.ID,
		RecordID:       p.RecordID,
		PrescriptionID: &prescriptionID,
		Status:         model.RecordStatusDispensed,
	}, now)
	if err != nil {
		return err
	}

	notified, err := model.NewOutboxEvent(model.EventNotificationCreated, d.Notification.ID, model.NotificationEvent{
		UserID:         patient.ID,
		NotificationID: d.Notification.ID,
		Email:          patient.Email,
		Name:           patient.FullName(),
		Type:           d.Notification.Type,
		Title:          d.Notification.Title,
		Message:        d.Notification.Message,
	}, now)
	if err != nil {
		return err
	}

	sent, err := model.NewOutboxEvent(model.EventMessageSent, d.Message.ID, model.MessageEvent{
		UserID:    patient.ID,
		MessageID: d.Message.ID,
		FromRole:  d.Message.FromRole,
		FromName:  d.Message.FromName,
		Message:   d.Message.Body,
	}, now)
	if err != nil {
		return err
	}

	d.Events = []*model.OutboxEvent{dispensed, notified, sent}
	return nil
}

func pickupMessage(medication, notes string) string {
	msg := fmt.Sprintf("Your medication \"%s\" is ready for pickup.", medication)
	if notes != "" {
		msg += " Note: " + notes
	}
	return msg
}
