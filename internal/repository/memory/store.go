// Package memory is an in-process implementation of the repository interfaces.
// It backs the memory database driver and the service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/repository"
)

// Store holds every table behind one lock so workflow writes stay atomic
type Store struct {
	mu            sync.RWMutex
	users         map[uuid.UUID]*model.User
	emails        map[string]uuid.UUID
	records       map[uuid.UUID]*model.MedicalRecord
	prescriptions map[uuid.UUID]*model.Prescription
	messages      map[uuid.UUID]*model.Message
	notifications map[uuid.UUID]*model.Notification
	outbox        map[uuid.UUID]*model.OutboxEvent
}

func NewStore() *Store {
	return &Store{
		users:         make(map[uuid.UUID]*model.User),
		emails:        make(map[string]uuid.UUID),
		records:       make(map[uuid.UUID]*model.MedicalRecord),
		prescriptions: make(map[uuid.UUID]*model.Prescription),
		messages:      make(map[uuid.UUID]*model.Message),
		notifications: make(map[uuid.UUID]*model.Notification),
		outbox:        make(map[uuid.UUID]*model.OutboxEvent),
	}
}

func (s *Store) Users() repository.UserRepository                 { return userRepo{s} }
func (s *Store) Records() repository.MedicalRecordRepository      { return recordRepo{s} }
func (s *Store) Prescriptions() repository.PrescriptionRepository { return prescriptionRepo{s} }
func (s *Store) Messages() repository.MessageRepository           { return messageRepo{s} }
func (s *Store) Notifications() repository.NotificationRepository { return notificationRepo{s} }
func (s *Store) Workflow() repository.WorkflowRepository          { return workflowRepo{s} }
func (s *Store) Outbox() repository.OutboxRepository              { return outboxRepo{s} }

// Ping always succeeds
func (s *Store) Ping(context.Context) error { return nil }

// OutboxEvents returns a snapshot of the outbox, oldest first
func (s *Store) OutboxEvents() []model.OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.OutboxEvent, 0, len(s.outbox))
	for _, e := range s.outbox {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func notFound(what string, id interface{}) error {
	return fmt.Errorf("%s %v: %w", what, id, repository.ErrNotFound)
}

func (s *Store) checkUser(id uuid.UUID) error {
	if _, ok := s.users[id]; !ok {
		return fmt.Errorf("user %s: %w", id, repository.ErrUnknownUser)
	}
	return nil
}

func (s *Store) userName(id uuid.UUID) (string, string) {
	u, ok := s.users[id]
	if !ok {
		return "", ""
	}
	return u.FullName(), u.Email
}

func (s *Store) addOutbox(events []*model.OutboxEvent) {
	for _, e := range events {
		cp := *e
		s.outbox[e.ID] = &cp
	}
}

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	email := model.NormalizeEmail(user.Email)
	if _, taken := r.s.emails[email]; taken {
		return fmt.Errorf("email %s: %w", email, repository.ErrDuplicate)
	}
	cp := *user
	cp.Email = email
	r.s.users[user.ID] = &cp
	r.s.emails[email] = user.ID
	return nil
}

func (r userRepo) Get(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	cp := *u
	return &cp, nil
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.emails[model.NormalizeEmail(email)]
	if !ok {
		return nil, notFound("user", email)
	}
	cp := *r.s.users[id]
	return &cp, nil
}

type recordRepo struct{ s *Store }

func (r recordRepo) Create(_ context.Context, record *model.MedicalRecord, events ...*model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.checkUser(record.PatientID); err != nil {
		return err
	}
	cp := *record
	r.s.records[record.ID] = &cp
	r.s.addOutbox(events)
	return nil
}

func (r recordRepo) Get(_ context.Context, id uuid.UUID) (*model.MedicalRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rec, ok := r.s.records[id]
	if !ok {
		return nil, notFound("medical record", id)
	}
	cp := *rec
	return &cp, nil
}

func (r recordRepo) List(_ context.Context, filter model.RecordFilter) ([]*model.RecordView, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*model.RecordView{}
	for _, rec := range r.s.records {
		if filter.PatientID != nil && rec.PatientID != *filter.PatientID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, rec.Status) {
			continue
		}
		name, email := r.s.userName(rec.PatientID)
		out = append(out, &model.RecordView{MedicalRecord: *rec, PatientName: name, PatientEmail: email})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := orderKey(&out[i].MedicalRecord, filter.OrderBy), orderKey(&out[j].MedicalRecord, filter.OrderBy)
		if a == nil || b == nil {
			if a != b {
				return b == nil
			}
		} else if !a.Equal(*b) {
			return a.After(*b)
		}
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out, nil
}

func containsStatus(list []model.RecordStatus, s model.RecordStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func orderKey(rec *model.MedicalRecord, o model.RecordOrder) *time.Time {
	switch o {
	case model.OrderByReviewed:
		return rec.ReviewedAt
	case model.OrderByDispensed:
		return rec.DispensedAt
	default:
		return &rec.SubmittedAt
	}
}

type prescriptionRepo struct{ s *Store }

func (r prescriptionRepo) Get(_ context.Context, id uuid.UUID) (*model.Prescription, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.prescriptions[id]
	if !ok {
		return nil, notFound("prescription", id)
	}
	cp := *p
	return &cp, nil
}

func (r prescriptionRepo) GetPendingByRecord(_ context.Context, recordID uuid.UUID) (*model.Prescription, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var found *model.Prescription
	for _, p := range r.s.prescriptions {
		if p.RecordID != recordID || p.Status != model.PrescriptionStatusPending {
			continue
		}
		if found == nil || p.CreatedAt.After(found.CreatedAt) {
			found = p
		}
	}
	if found == nil {
		return nil, notFound("pending prescription for record", recordID)
	}
	cp := *found
	return &cp, nil
}

func (r prescriptionRepo) List(_ context.Context, filter model.PrescriptionFilter) ([]*model.PrescriptionView, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*model.PrescriptionView{}
	for _, p := range r.s.prescriptions {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		patientName, patientEmail := r.s.userName(p.PatientID)
		doctorName, _ := r.s.userName(p.DoctorID)
		out = append(out, &model.PrescriptionView{
			Prescription: *p,
			PatientName:  patientName,
			PatientEmail: patientEmail,
			DoctorName:   doctorName,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type messageRepo struct{ s *Store }

func (r messageRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]*model.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []*model.Message{}
	for _, m := range r.s.messages {
		if m.UserID == userID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SentAt.After(out[j].SentAt) })
	return out, nil
}

func (r messageRepo) MarkRead(_ context.Context, id, userID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok || m.UserID != userID || m.Read {
		return false, nil
	}
	m.Read = true
	return true, nil
}

type notificationRepo struct{ s *Store }

func (r notificationRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]*model.Notification, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []*model.Notification{}
	for _, n := range r.s.notifications {
		if n.UserID == userID {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r notificationRepo) MarkRead(_ context.Context, id, userID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n, ok := r.s.notifications[id]
	if !ok || n.UserID != userID || n.Read {
		return false, nil
	}
	n.Read = true
	return true, nil
}
