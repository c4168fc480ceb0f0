package review

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/repository/memory"
	apperrors "github.com/jwalitptl/careflow-api/pkg/errors"
)

type fixture struct {
	store   *memory.Store
	svc     *Service
	patient *model.User
	doctor  model.Actor
	record  *model.MedicalRecord
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	patient := &model.User{ID: uuid.New(), FirstName: "Jane", LastName: "Doe", Email: "jane@example.com", Role: model.RolePatient}
	doctor := &model.User{ID: uuid.New(), FirstName: "Greg", LastName: "House", Email: "greg@example.com", Role: model.RoleDoctor}
	require.NoError(t, store.Users().Create(ctx, patient))
	require.NoError(t, store.Users().Create(ctx, doctor))

	record := (&model.SubmitRecordRequest{Symptoms: "fever"}).ToRecord(patient.ID, time.Now())
	require.NoError(t, store.Records().Create(ctx, record))

	return &fixture{
		store:   store,
		svc:     NewService(store.Records(), store.Users(), store.Workflow(), nil),
		patient: patient,
		doctor:  doctor.Actor(),
		record:  record,
	}
}

func TestReview_WithPrescription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rv, err := f.svc.Review(ctx, f.doctor, &model.ReviewRequest{
		RecordID:     f.record.ID.String(),
		Diagnosis:    "influenza",
		Prescription: "Oseltamivir 75mg",
		Notes:        "rest",
	})
	require.NoError(t, err)
	assert.Equal(t, model.RecordStatusPrescribed, rv.Status)

	record, err := f.store.Records().Get(ctx, f.record.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RecordStatusPrescribed, record.Status)
	assert.Equal(t, "Dr. Greg House", record.ReviewerName)
	assert.Equal(t, "influenza", record.Diagnosis)
	require.NotNil(t, record.ReviewedAt)

	prescriptions, err := f.store.Prescriptions().List(ctx, model.PrescriptionFilter{})
	require.NoError(t, err)
	require.Len(t, prescriptions, 1)
	assert.Equal(t, model.PrescriptionStatusPending, prescriptions[0].Status)
	assert.Equal(t, model.DefaultDosage, prescriptions[0].Dosage)
	assert.Equal(t, "Oseltamivir 75mg", prescriptions[0].Instructions)
	assert.Equal(t, "Greg House", prescriptions[0].DoctorName)
	assert.Equal(t, "jane@example.com", prescriptions[0].PatientEmail)

	notifications, err := f.store.Notifications().ListByUser(ctx, f.patient.ID)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, model.NotificationRecordReviewed, notifications[0].Type)
	assert.Equal(t, "Medical Record Reviewed", notifications[0].Title)

	var types []string
	for _, e := range f.store.OutboxEvents() {
		types = append(types, e.EventType)
	}
	assert.ElementsMatch(t, []string{model.EventRecordReviewed, model.EventNotificationCreated}, types)
}

func TestReview_WithoutPrescription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rv, err := f.svc.Review(ctx, f.doctor, &model.ReviewRequest{RecordID: f.record.ID.String(), Diagnosis: "common cold"})
	require.NoError(t, err)
	assert.Equal(t, model.RecordStatusReviewed, rv.Status)
	assert.Nil(t, rv.Issued)

	prescriptions, err := f.store.Prescriptions().List(ctx, model.PrescriptionFilter{})
	require.NoError(t, err)
	assert.Empty(t, prescriptions)

	notifications, err := f.store.Notifications().ListByUser(ctx, f.patient.ID)
	require.NoError(t, err)
	assert.Empty(t, notifications)
}

func TestReview_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Review(ctx, f.doctor, &model.ReviewRequest{RecordID: f.record.ID.String(), Diagnosis: "x"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		actor model.Actor
		req   *model.ReviewRequest
		kind  apperrors.Kind
	}{
		{"missing diagnosis", f.doctor, &model.ReviewRequest{RecordID: f.record.ID.String(), Diagnosis: "  "}, apperrors.KindValidation},
		{"missing record id", f.doctor, &model.ReviewRequest{Diagnosis: "x"}, apperrors.KindValidation},
		{"malformed record id", f.doctor, &model.ReviewRequest{RecordID: "not-a-uuid", Diagnosis: "x"}, apperrors.KindValidation},
		{"unknown record", f.doctor, &model.ReviewRequest{RecordID: uuid.NewString(), Diagnosis: "x"}, apperrors.KindNotFound},
		{"already reviewed", f.doctor, &model.ReviewRequest{RecordID: f.record.ID.String(), Diagnosis: "y"}, apperrors.KindConflict},
		{"not a doctor", f.patient.Actor(), &model.ReviewRequest{RecordID: f.record.ID.String(), Diagnosis: "y"}, apperrors.KindUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Review(ctx, tt.actor, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperrors.KindOf(err))
		})
	}
}

func TestReview_UnknownDoctorIsUnauthorized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ghost := model.Actor{ID: uuid.New(), Role: model.RoleDoctor, FirstName: "No", LastName: "One"}
	_, err := f.svc.Review(ctx, ghost, &model.ReviewRequest{
		RecordID:  f.record.ID.String(),
		Diagnosis: "flu",
	})
	assert.Equal(t, apperrors.KindUnauthorized, apperrors.KindOf(err))

	record, err := f.store.Records().Get(ctx, f.record.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RecordStatusPending, record.Status)
}
