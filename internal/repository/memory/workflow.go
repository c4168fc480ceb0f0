package memory

import (
	"context"
	"fmt"

	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/repository"
)

type workflowRepo struct{ s *Store }

// every method validates before mutating so a failure leaves the store untouched

func (r workflowRepo) ApplyReview(_ context.Context, rv *model.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, ok := r.s.records[rv.RecordID]
	if !ok {
		return notFound("medical record", rv.RecordID)
	}
	if rec.Status != model.RecordStatusPending {
		return fmt.Errorf("medical record %s is %s: %w", rec.ID, rec.Status, repository.ErrInvalidTransition)
	}
	if err := r.s.checkUser(rv.ReviewerID); err != nil {
		return err
	}
	if rv.Notification != nil {
		if err := r.s.checkUser(rv.Notification.UserID); err != nil {
			return err
		}
	}

	reviewedAt := rv.ReviewedAt
	reviewer := rv.ReviewerID
	rec.Status = rv.Status
	rec.Diagnosis = rv.Diagnosis
	rec.Prescription = rv.Prescription
	rec.DoctorNotes = rv.Notes
	rec.ReviewerID = &reviewer
	rec.ReviewerName = rv.ReviewerName
	rec.ReviewedAt = &reviewedAt
	rec.UpdatedAt = reviewedAt

	if rv.Issued != nil {
		cp := *rv.Issued
		r.s.prescriptions[cp.ID] = &cp
	}
	if rv.Notification != nil {
		cp := *rv.Notification
		r.s.notifications[cp.ID] = &cp
	}
	r.s.addOutbox(rv.Events)
	return nil
}

func (r workflowRepo) ApplyDispense(_ context.Context, d *model.Dispense) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.prescriptions[d.PrescriptionID]
	if !ok || p.Status != model.PrescriptionStatusPending {
		return notFound("pending prescription", d.PrescriptionID)
	}
	rec, ok := r.s.records[p.RecordID]
	if !ok {
		return notFound("medical record", p.RecordID)
	}
	if !rec.Status.CanTransitionTo(model.RecordStatusDispensed) {
		return fmt.Errorf("medical record %s is %s: %w", rec.ID, rec.Status, repository.ErrInvalidTransition)
	}
	if err := r.s.checkUser(d.DispenserID); err != nil {
		return err
	}
	if d.Notification != nil {
		if err := r.s.checkUser(d.Notification.UserID); err != nil {
			return err
		}
	}
	if d.Message != nil {
		if err := r.s.checkUser(d.Message.UserID); err != nil {
			return err
		}
	}

	at := d.DispensedAt
	by := d.DispenserID
	p.Status = model.PrescriptionStatusDispensed
	p.DispensedBy = &by
	p.DispensedAt = &at
	p.Notes = d.Notes
	p.UpdatedAt = at

	rec.Status = model.RecordStatusDispensed
	rec.DispensedBy = &by
	rec.DispenserName = d.DispenserName
	rec.DispensedAt = &at
	rec.UpdatedAt = at
	d.RecordID = rec.ID

	if d.Notification != nil {
		cp := *d.Notification
		r.s.notifications[cp.ID] = &cp
	}
	if d.Message != nil {
		cp := *d.Message
		r.s.messages[cp.ID] = &cp
	}
	r.s.addOutbox(d.Events)
	return nil
}

func (r workflowRepo) Deliver(_ context.Context, delivery *model.Delivery) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.checkUser(delivery.Message.UserID); err != nil {
		return err
	}
	if err := r.s.checkUser(delivery.Message.FromUserID); err != nil {
		return err
	}
	if delivery.Notification != nil {
		if err := r.s.checkUser(delivery.Notification.UserID); err != nil {
			return err
		}
	}

	cp := *delivery.Message
	r.s.messages[cp.ID] = &cp
	if delivery.Notification != nil {
		n := *delivery.Notification
		r.s.notifications[n.ID] = &n
	}
	r.s.addOutbox(delivery.Events)
	return nil
}
