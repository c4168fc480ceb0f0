package model

import (
	"time"

	"github.com/google/uuid"
)

// Review is everything a doctor's review writes. It is applied in one transaction.
type Review struct {
	RecordID     uuid.UUID
	Status       RecordStatus
	Diagnosis    string
	Prescription string
	Notes        string
	ReviewerID   uuid.UUID
	ReviewerName string
	ReviewedAt   time.Time

	// Issued and Notification are nil when no prescription was given
	Issued       *Prescription
	Notification *Notification
	Events       []*OutboxEvent
}

// Dispense is everything a clerk's dispense writes. It is applied in one transaction.
type Dispense struct {
	PrescriptionID uuid.UUID
	RecordID       uuid.UUID
	DispenserID    uuid.UUID
	DispenserName  string
	Notes          string
	DispensedAt    time.Time

	Notification *Notification
	Message      *Message
	Events       []*OutboxEvent
}

// Delivery is a message plus its optional notification
type Delivery struct {
	Message      *Message
	Notification *Notification
	Events       []*OutboxEvent
}
