package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationRecordReviewed      NotificationType = "record_reviewed"
	NotificationMedicationDispensed NotificationType = "medication_dispensed"
	NotificationMessage             NotificationType = "message"
)

type Notification struct {
	ID        uuid.UUID        `json:"id" db:"id"`
	UserID    uuid.UUID        `json:"userId" db:"user_id"`
	Type      NotificationType `json:"type" db:"type"`
	Title     string           `json:"title" db:"title"`
	Message   string           `json:"message" db:"message"`
	Read      bool             `json:"read" db:"read"`
	CreatedAt time.Time        `json:"createdAt" db:"created_at"`
}

func NewNotification(userID uuid.UUID, typ NotificationType, title, message string, now time.Time) *Notification {
	return &Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Message:   message,
		CreatedAt: now,
	}
}
