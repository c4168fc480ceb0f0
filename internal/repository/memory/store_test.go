package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/repository"
)

func seedUser(t *testing.T, s *Store, email string, role model.Role) *model.User {
	t.Helper()
	u := &model.User{ID: uuid.New(), FirstName: "First", LastName: string(role), Email: email, Role: role, CreatedAt: time.Now()}
	require.NoError(t, s.Users().Create(context.Background(), u))
	return u
}

func TestUsers_DuplicateEmailIsCaseInsensitive(t *testing.T) {
	s := NewStore()
	seedUser(t, s, "jane@example.com", model.RolePatient)

	err := s.Users().Create(context.Background(), &model.User{ID: uuid.New(), Email: "JANE@example.com"})
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	got, err := s.Users().GetByEmail(context.Background(), "Jane@Example.com")
	require.NoError(t, err)
	assert.Equal(t, model.RolePatient, got.Role)
}

func TestRecords_ListOrderingAndFilter(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	patient := seedUser(t, s, "p@example.com", model.RolePatient)
	other := seedUser(t, s, "o@example.com", model.RolePatient)

	base := time.Now()
	for i, owner := range []uuid.UUID{patient.ID, patient.ID, other.ID} {
		rec := (&model.SubmitRecordRequest{Symptoms: "cough"}).ToRecord(owner, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, s.Records().Create(ctx, rec))
	}

	mine, err := s.Records().List(ctx, model.RecordFilter{PatientID: &patient.ID})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.True(t, mine[0].SubmittedAt.After(mine[1].SubmittedAt))
	assert.Equal(t, "First patient", mine[0].PatientName)

	all, err := s.Records().List(ctx, model.RecordFilter{Statuses: []model.RecordStatus{model.RecordStatusPending}})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestWorkflow_ReviewThenDispense(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	patient := seedUser(t, s, "p@example.com", model.RolePatient)
	doctor := seedUser(t, s, "d@example.com", model.RoleDoctor)
	clerk := seedUser(t, s, "c@example.com", model.RoleClerk)
	now := time.Now()

	rec := (&model.SubmitRecordRequest{Symptoms: "fever"}).ToRecord(patient.ID, now)
	require.NoError(t, s.Records().Create(ctx, rec))

	prescription := &model.Prescription{
		ID: uuid.New(), RecordID: rec.ID, PatientID: patient.ID, DoctorID: doctor.ID,
		Medication: "rest", Status: model.PrescriptionStatusPending, CreatedAt: now,
	}
	require.NoError(t, s.Workflow().ApplyReview(ctx, &model.Review{
		RecordID: rec.ID, Status: model.RecordStatusPrescribed, Diagnosis: "flu",
		ReviewerID: doctor.ID, ReviewedAt: now, Issued: prescription,
	}))

	err := s.Workflow().ApplyReview(ctx, &model.Review{RecordID: rec.ID, Status: model.RecordStatusReviewed, ReviewerID: doctor.ID})
	assert.ErrorIs(t, err, repository.ErrInvalidTransition)

	d := &model.Dispense{PrescriptionID: prescription.ID, DispenserID: clerk.ID, DispensedAt: now}
	require.NoError(t, s.Workflow().ApplyDispense(ctx, d))
	assert.Equal(t, rec.ID, d.RecordID)

	got, err := s.Records().Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RecordStatusDispensed, got.Status)

	err = s.Workflow().ApplyDispense(ctx, &model.Dispense{PrescriptionID: prescription.ID, DispenserID: clerk.ID})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestWorkflow_FailedDeliveryLeavesNoTrace(t *testing.T) {
	s := NewStore()
	sender := seedUser(t, s, "c@example.com", model.RoleClerk)

	err := s.Workflow().Deliver(context.Background(), &model.Delivery{
		Message: model.NewMessage(uuid.New(), sender.Actor(), "Clerk", "hi", time.Now()),
	})
	assert.ErrorIs(t, err, repository.ErrUnknownUser)
	assert.Empty(t, s.messages)
}

func TestMarkRead_OwnershipScoped(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	patient := seedUser(t, s, "p@example.com", model.RolePatient)
	intruder := seedUser(t, s, "x@example.com", model.RolePatient)
	doctor := seedUser(t, s, "d@example.com", model.RoleDoctor)

	msg := model.NewMessage(patient.ID, doctor.Actor(), "Dr. First doctor", "hello", time.Now())
	require.NoError(t, s.Workflow().Deliver(ctx, &model.Delivery{Message: msg}))

	updated, err := s.Messages().MarkRead(ctx, msg.ID, intruder.ID)
	require.NoError(t, err)
	assert.False(t, updated)

	updated, err = s.Messages().MarkRead(ctx, msg.ID, patient.ID)
	require.NoError(t, err)
	assert.True(t, updated)

	updated, err = s.Messages().MarkRead(ctx, msg.ID, patient.ID)
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestOutbox_ClaimAndFail(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	patient := seedUser(t, s, "p@example.com", model.RolePatient)
	now := time.Now()

	rec := (&model.SubmitRecordRequest{Symptoms: "fever"}).ToRecord(patient.ID, now)
	event, err := model.NewOutboxEvent(model.EventRecordSubmitted, rec.ID, model.RecordEvent{RecordID: rec.ID}, now)
	require.NoError(t, err)
	require.NoError(t, s.Records().Create(ctx, rec, event))

	claimed, err := s.Outbox().ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	again, err := s.Outbox().ClaimPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, s.Outbox().MarkFailed(ctx, event.ID, "boom", 2))
	assert.Equal(t, model.OutboxStatusPending, s.OutboxEvents()[0].Status)

	_, err = s.Outbox().ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.NoError(t, s.Outbox().MarkFailed(ctx, event.ID, "boom", 2))
	assert.Equal(t, model.OutboxStatusFailed, s.OutboxEvents()[0].Status)
	assert.Equal(t, 2, s.OutboxEvents()[0].Attempts)
}
