package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/repository"
)

func newMock(t *testing.T) (BaseRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewBaseRepository(sqlx.NewDb(db, "postgres")), mock
}

func q(s string) string {
	return regexp.QuoteMeta(s)
}

func TestUserRepository_CreateDuplicate(t *testing.T) {
	base, mock := newMock(t)
	repo := NewUserRepository(base)

	mock.ExpectExec(q("INSERT INTO users")).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})

	err := repo.Create(context.Background(), &model.User{ID: uuid.New(), Email: "a@b.c", Role: model.RolePatient})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByEmail(t *testing.T) {
	base, mock := newMock(t)
	repo := NewUserRepository(base)
	id := uuid.New()
	now := time.Now()

	mock.ExpectQuery(q("FROM users WHERE email = $1")).
		WithArgs("jane@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "first_name", "last_name", "email", "password_hash", "role", "created_at", "updated_at"}).
			AddRow(id.String(), "Jane", "Doe", "jane@example.com", "hash", "patient", now, now))

	user, err := repo.GetByEmail(context.Background(), "  Jane@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, model.RolePatient, user.Role)
	assert.Equal(t, "Jane Doe", user.FullName())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetNotFound(t *testing.T) {
	base, mock := newMock(t)
	repo := NewUserRepository(base)

	mock.ExpectQuery(q("FROM users WHERE id = $1")).WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestMedicalRecordRepository_CreateWithEvents(t *testing.T) {
	base, mock := newMock(t)
	repo := NewMedicalRecordRepository(base)
	now := time.Now()
	record := (&model.SubmitRecordRequest{Symptoms: "fever", HeartRate: "80"}).ToRecord(uuid.New(), now)
	event, err := model.NewOutboxEvent(model.EventRecordSubmitted, record.ID, model.RecordEvent{RecordID: record.ID}, now)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO patient_records")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO outbox_events")).
		WithArgs(event.ID, model.EventRecordSubmitted, record.ID, sqlmock.AnyArg(), model.OutboxStatusPending, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), record, event))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMedicalRecordRepository_ListReviewed(t *testing.T) {
	base, mock := newMock(t)
	repo := NewMedicalRecordRepository(base)
	now := time.Now()
	reviewer := uuid.New()

	columns := []string{
		"id", "patient_id", "symptoms", "pain_level", "vital_signs", "medical_history",
		"allergies", "current_medications", "additional_notes", "age", "emergency_contact",
		"status", "submitted_at", "diagnosis", "prescription", "doctor_notes",
		"reviewer_id", "reviewer_name", "reviewed_at", "dispensed_by", "dispenser_name",
		"dispensed_at", "updated_at", "patient_name", "patient_email",
	}
	mock.ExpectQuery(q("r.status = ANY($1) ORDER BY r.reviewed_at DESC")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			uuid.NewString(), uuid.NewString(), "fever", "3", []byte(`{"heartRate":"80"}`), "",
			"", "", "", "30", "",
			"prescribed", now, "flu", "rest", "",
			reviewer.String(), "Dr. Greg House", now, nil, "",
			nil, now, "Jane Doe", "jane@example.com",
		))

	records, err := repo.List(context.Background(), model.RecordFilter{
		Statuses: []model.RecordStatus{model.RecordStatusReviewed, model.RecordStatusPrescribed},
		OrderBy:  model.OrderByReviewed,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "80", records[0].VitalSigns.HeartRate)
	assert.Equal(t, "Jane Doe", records[0].PatientName)
	require.NotNil(t, records[0].ReviewerID)
	assert.Equal(t, reviewer, *records[0].ReviewerID)
	assert.Nil(t, records[0].DispensedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func reviewFixture(t *testing.T, withPrescription bool) *model.Review {
	now := time.Now()
	rv := &model.Review{
		RecordID:     uuid.New(),
		Status:       model.RecordStatusReviewed,
		Diagnosis:    "flu",
		ReviewerID:   uuid.New(),
		ReviewerName: "Dr. Greg House",
		ReviewedAt:   now,
	}
	if withPrescription {
		rv.Status = model.RecordStatusPrescribed
		rv.Prescription = "rest"
		rv.Issued = &model.Prescription{ID: uuid.New(), RecordID: rv.RecordID, Medication: "rest", Status: model.PrescriptionStatusPending}
		rv.Notification = model.NewNotification(uuid.New(), model.NotificationRecordReviewed, "Medical Record Reviewed", "x", now)
		event, err := model.NewOutboxEvent(model.EventRecordReviewed, rv.RecordID, model.RecordEvent{RecordID: rv.RecordID}, now)
		require.NoError(t, err)
		rv.Events = []*model.OutboxEvent{event}
	}
	return rv
}

func TestWorkflowRepository_ApplyReviewWithPrescription(t *testing.T) {
	base, mock := newMock(t)
	repo := NewWorkflowRepository(base)
	rv := reviewFixture(t, true)

	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE patient_records SET")).
		WithArgs(model.RecordStatusPrescribed, "flu", "rest", "", rv.ReviewerID, "Dr. Greg House", sqlmock.AnyArg(), rv.RecordID, model.RecordStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO prescriptions")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO notifications")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO outbox_events")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.ApplyReview(context.Background(), rv))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowRepository_ApplyReviewNotPending(t *testing.T) {
	base, mock := newMock(t)
	repo := NewWorkflowRepository(base)
	rv := reviewFixture(t, false)

	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE patient_records SET")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT EXISTS (SELECT 1 FROM patient_records WHERE id = $1)")).
		WithArgs(rv.RecordID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.ApplyReview(context.Background(), rv)
	assert.ErrorIs(t, err, repository.ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowRepository_ApplyReviewUnknownRecord(t *testing.T) {
	base, mock := newMock(t)
	repo := NewWorkflowRepository(base)
	rv := reviewFixture(t, false)

	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE patient_records SET")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT EXISTS")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	err := repo.ApplyReview(context.Background(), rv)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMedicalRecordRepository_CreateUnknownPatient(t *testing.T) {
	base, mock := newMock(t)
	repo := NewMedicalRecordRepository(base)
	record := (&model.SubmitRecordRequest{Symptoms: "fever"}).ToRecord(uuid.New(), time.Now())

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO patient_records")).
		WillReturnError(&pq.Error{Code: "23503", Constraint: "patient_records_patient_id_fkey"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), record)
	assert.ErrorIs(t, err, repository.ErrUnknownUser)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowRepository_ApplyReviewUnknownReviewer(t *testing.T) {
	base, mock := newMock(t)
	repo := NewWorkflowRepository(base)
	rv := reviewFixture(t, false)

	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE patient_records SET")).
		WillReturnError(&pq.Error{Code: "23503", Constraint: "patient_records_reviewer_id_fkey"})
	mock.ExpectRollback()

	err := repo.ApplyReview(context.Background(), rv)
	assert.ErrorIs(t, err, repository.ErrUnknownUser)
	assert.NotErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowRepository_ApplyDispense(t *testing.T) {
	base, mock := newMock(t)
	repo := NewWorkflowRepository(base)
	recordID := uuid.New()
	now := time.Now()
	d := &model.Dispense{
		PrescriptionID: uuid.New(),
		DispenserID:    uuid.New(),
		DispenserName:  "Carl Clerk",
		DispensedAt:    now,
		Notification:   model.NewNotification(uuid.New(), model.NotificationMedicationDispensed, "Medication Ready for Pickup", "x", now),
		Message:        &model.Message{ID: uuid.New(), Body: "ready", SentAt: now},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(q("UPDATE prescriptions SET")).
		WithArgs(model.PrescriptionStatusDispensed, d.DispenserID, sqlmock.AnyArg(), "", d.PrescriptionID, model.PrescriptionStatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"record_id"}).AddRow(recordID.String()))
	mock.ExpectExec(q("UPDATE patient_records SET")).
		WithArgs(model.RecordStatusDispensed, d.DispenserID, "Carl Clerk", sqlmock.AnyArg(), recordID, model.RecordStatusPrescribed).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO notifications")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO messages")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.ApplyDispense(context.Background(), d))
	assert.Equal(t, recordID, d.RecordID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowRepository_ApplyDispenseAlreadyDispensed(t *testing.T) {
	base, mock := newMock(t)
	repo := NewWorkflowRepository(base)

	mock.ExpectBegin()
	mock.ExpectQuery(q("UPDATE prescriptions SET")).
		WillReturnRows(sqlmock.NewRows([]string{"record_id"}))
	mock.ExpectRollback()

	err := repo.ApplyDispense(context.Background(), &model.Dispense{PrescriptionID: uuid.New()})
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepository_MarkReadScopedToOwner(t *testing.T) {
	base, mock := newMock(t)
	repo := NewMessageRepository(base)
	id, owner := uuid.New(), uuid.New()

	mock.ExpectExec(q("UPDATE messages SET read = TRUE WHERE id = $1 AND user_id = $2")).
		WithArgs(id, owner).
		WillReturnResult(sqlmock.NewResult(0, 0))

	updated, err := repo.MarkRead(context.Background(), id, owner)
	require.NoError(t, err)
	assert.False(t, updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_ListByUser(t *testing.T) {
	base, mock := newMock(t)
	repo := NewNotificationRepository(base)
	user := uuid.New()

	mock.ExpectQuery(q("FROM notifications")).
		WithArgs(user).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "type", "title", "message", "read", "created_at"}).
			AddRow(uuid.NewString(), user.String(), "message", "New Message from Doctor", "hi", false, time.Now()))

	list, err := repo.ListByUser(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.NotificationMessage, list[0].Type)
}

func TestOutboxRepository_ClaimPending(t *testing.T) {
	base, mock := newMock(t)
	repo := NewOutboxRepository(base)
	now := time.Now()

	mock.ExpectQuery(q("FOR UPDATE SKIP LOCKED")).
		WithArgs(model.OutboxStatusProcessing, sqlmock.AnyArg(), model.OutboxStatusPending, 10).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "event_type", "aggregate_id", "payload", "status", "attempts", "last_error",
			"created_at", "updated_at", "processed_at",
		}).AddRow(uuid.NewString(), model.EventNotificationCreated, uuid.NewString(), []byte(`{"userId":"x"}`), "processing", 0, "", now, now, nil))

	events, err := repo.ClaimPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.OutboxStatusProcessing, events[0].Status)
	assert.JSONEq(t, `{"userId":"x"}`, string(events[0].Payload))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_MarkFailed(t *testing.T) {
	base, mock := newMock(t)
	repo := NewOutboxRepository(base)
	id := uuid.New()

	mock.ExpectExec(q("SET attempts = attempts + 1")).
		WithArgs("boom", 5, model.OutboxStatusFailed, model.OutboxStatusPending, sqlmock.AnyArg(), id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkFailed(context.Background(), id, "boom", 5))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_ReleaseStale(t *testing.T) {
	base, mock := newMock(t)
	repo := NewOutboxRepository(base)
	cutoff := time.Now().Add(-5 * time.Minute)

	mock.ExpectExec(q("WHERE status = $3 AND updated_at < $4")).
		WithArgs(model.OutboxStatusPending, sqlmock.AnyArg(), model.OutboxStatusProcessing, cutoff).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.ReleaseStale(context.Background(), cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_Up(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	migrator := NewMigrator(sqlx.NewDb(db, "postgres"))

	migrations, err := migrator.Load()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, 1, migrations[0].Version)

	mock.ExpectExec(q("CREATE TABLE IF NOT EXISTS schema_migrations")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT version, applied_at FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version", "applied_at"}))
	for _, mig := range migrations {
		mock.ExpectBegin()
		mock.ExpectExec(q("CREATE TABLE")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(q("INSERT INTO schema_migrations")).
			WithArgs(mig.Version, mig.Name).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	count, err := migrator.Up(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(migrations), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_StatusMarksApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	migrator := NewMigrator(sqlx.NewDb(db, "postgres"))

	mock.ExpectExec(q("CREATE TABLE IF NOT EXISTS schema_migrations")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT version, applied_at FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version", "applied_at"}).AddRow(1, time.Now()))

	statuses, err := migrator.Status(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, statuses)
	assert.True(t, statuses[0].Applied)
	assert.NotNil(t, statuses[0].AppliedAt)
}
