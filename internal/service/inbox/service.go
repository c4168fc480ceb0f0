package inbox

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
	"github.com/jwalitptl/careflow-api/internal/service/review"
	apperrors "github.com/jwalitptl/careflow-api/pkg/errors"
	"github.com/jwalitptl/careflow-api/pkg/metrics"
)

const doctorMessageTitle = "New Message from Doctor"

// Service delivers staff messages to patients and serves the patient's inbox
type Service struct {
	users         repository.UserRepository
	messages      repository.MessageRepository
	notifications repository.NotificationRepository
	workflow      repository.WorkflowRepository
	metrics       *metrics.Metrics
	now           func() time.Time
}

func NewService(
	users repository.UserRepository,
	messages repository.MessageRepository,
	notifications repository.NotificationRepository,
	workflow repository.WorkflowRepository,
	m *metrics.Metrics,
) *Service {
	return &Service{
		users:         users,
		messages:      messages,
		notifications: notifications,
		workflow:      workflow,
		metrics:       m,
		now:           time.Now,
	}
}

// SendFromDoctor messages the patient with the given email and raises a notification
func (s *Service) SendFromDoctor(ctx context.Context, doctor model.Actor, req *model.DoctorMessageRequest) (*model.Message, error) {
	msg, err := s.sendFromDoctor(ctx, doctor, req)
	s.metrics.Workflow("doctor_message", err)
	return msg, err
}

func (s *Service) sendFromDoctor(ctx context.Context, doctor model.Actor, req *model.DoctorMessageRequest) (*model.Message, error) {
	if doctor.Role != model.RoleDoctor {
		return nil, apperrors.Unauthorized("only doctors can use this endpoint", nil)
	}
	body := strings.TrimSpace(req.Message)
	email := model.NormalizeEmail(req.PatientEmail)
	if email == "" || body == "" {
		return nil, apperrors.Validation("patientEmail and message are required")
	}

	patient, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("patient", err)
		}
		return nil, apperrors.Internal(err)
	}
	if patient.Role != model.RolePatient {
		return nil, apperrors.NotFound("patient", nil)
	}

	now := s.now().UTC()
	delivery := &model.Delivery{
		Message: model.NewMessage(patient.ID, doctor, review.DoctorName(doctor), body, now),
		Notification: model.NewNotification(
			patient.ID,
			model.NotificationMessage,
			doctorMessageTitle,
			fmt.Sprintf("You have received a new message from Dr. %s %s", doctor.FirstName, doctor.LastName),
			now,
		),
	}
	if err := s.deliver(ctx, delivery, patient, now); err != nil {
		return nil, err
	}
	return delivery.Message, nil
}

// SendFromClerk messages the patient with the given id
func (s *Service) SendFromClerk(ctx context.Context, clerk model.Actor, req *model.ClerkMessageRequest) (*model.Message, error) {
	msg, err := s.sendFromClerk(ctx, clerk, req)
	s.metrics.Workflow("clerk_message", err)
	return msg, err
}

func (s *Service) sendFromClerk(ctx context.Context, clerk model.Actor, req *model.ClerkMessageRequest) (*model.Message, error) {
	if clerk.Role != model.RoleClerk {
		return nil, apperrors.Unauthorized("only clerks can use this endpoint", nil)
	}
	body := strings.TrimSpace(req.Message)
	rawID := strings.TrimSpace(req.PatientID)
	if rawID == "" || body == "" {
		return nil, apperrors.Validation("patientId and message are required")
	}
	patientID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, apperrors.Validation("invalid patient id")
	}

	patient, err := s.users.Get(ctx, patientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("patient", err)
		}
		return nil, apperrors.Internal(err)
	}
	if patient.Role != model.RolePatient {
		return nil, apperrors.NotFound("patient", nil)
	}

	now := s.now().UTC()
	delivery := &model.Delivery{
		Message: model.NewMessage(patient.ID, clerk, clerk.FullName(), body, now),
	}
	if err := s.deliver(ctx, delivery, patient, now); err != nil {
		return nil, err
	}
	return delivery.Message, nil
}

func (s *Service) deliver(ctx context.Context, d *model.Delivery, patient *model.User, now time.Time) error {
	sent, err := model.NewOutboxEvent(model.EventMessageSent, d.Message.ID, model.MessageEvent{
		UserID:    patient.ID,
		MessageID: d.Message.ID,
		FromRole:  d.Message.FromRole,
		FromName:  d.Message.FromName,
		Message:   d.Message.Body,
	}, now)
	if err != nil {
		return apperrors.Internal(err)
	}
	d.Events = append(d.Events, sent)

	if n := d.Notification; n != nil {
		notified, err := model.NewOutboxEvent(model.EventNotificationCreated, n.ID, model.NotificationEvent{
			UserID:         patient.ID,
			NotificationID: n.ID,
			Email:          patient.Email,
			Name:           patient.FullName(),
			Type:           n.Type,
			Title:          n.Title,
			Message:        n.Message,
		}, now)
		if err != nil {
			return apperrors.Internal(err)
		}
		d.Events = append(d.Events, notified)
	}

	if err := s.workflow.Deliver(ctx, d); err != nil {
		if errors.Is(err, repository.ErrUnknownUser) {
			return apperrors.Unauthorized("account no longer exists", err)
		}
		return apperrors.Internal(err)
	}

	log.Ctx(ctx).Info().
		Str("message_id", d.Message.ID.String()).
		Str("patient_id", patient.ID.String()).
		Str("from_role", string(d.Message.FromRole)).
		Msg("Message delivered")
	return nil
}

func (s *Service) Messages(ctx context.Context, patient model.Actor) ([]*model.Message, error) {
	messages, err := s.messages.ListByUser(ctx, patient.ID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return messages, nil
}

func (s *Service) Notifications(ctx context.Context, patient model.Actor) ([]*model.Notification, error) {
	notifications, err := s.notifications.ListByUser(ctx, patient.ID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return notifications, nil
}

// MarkMessageRead is a no-op reporting false when the message is unknown or not the caller's
func (s *Service) MarkMessageRead(ctx context.Context, patient model.Actor, rawID string) (bool, error) {
	id, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil {
		return false, apperrors.Validation("invalid message id")
	}
	updated, err := s.messages.MarkRead(ctx, id, patient.ID)
	if err != nil {
		return false, apperrors.Internal(err)
	}
	return updated, nil
}

func (s *Service) MarkNotificationRead(ctx context.Context, patient model.Actor, rawID string) (bool, error) {
	id, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil {
		return false, apperrors.Validation("invalid notification id")
	}
	updated, err := s.notifications.MarkRead(ctx, id, patient.ID)
	if err != nil {
		return false, apperrors.Internal(err)
	}
	return updated, nil
}
