package model

import (
	"time"

	"github.com/google/uuid"
)

// Message is a staff-to-patient message
type Message struct {
	ID         uuid.UUID `json:"id" db:"id"`
	UserID     uuid.UUID `json:"patientId" db:"user_id"`
	FromUserID uuid.UUID `json:"fromUserId" db:"from_user_id"`
	FromRole   Role      `json:"fromRole" db:"from_role"`
	FromName   string    `json:"from" db:"from_name"`
	Body       string    `json:"message" db:"body"`
	Read       bool      `json:"read" db:"read"`
	SentAt     time.Time `json:"timestamp" db:"sent_at"`
}

func NewMessage(to uuid.UUID, from Actor, fromName, body string, now time.Time) *Message {
	return &Message{
		ID:         uuid.New(),
		UserID:     to,
		FromUserID: from.ID,
		FromRole:   from.Role,
		FromName:   fromName,
		Body:       body,
		SentAt:     now,
	}
}

// DoctorMessageRequest addresses the patient by email
type DoctorMessageRequest struct {
	PatientEmail string `json:"patientEmail" binding:"required,email"`
	Message      string `json:"message" binding:"required,notblank,max=5000"`
}

// ClerkMessageRequest addresses the patient by id
type ClerkMessageRequest struct {
	PatientID string `json:"patientId" binding:"required"`
	Message   string `json:"message" binding:"required,notblank,max=5000"`
}

// MarkReadResponse reports whether anything changed
type MarkReadResponse struct {
	Success bool `json:"success"`
	Updated bool `json:"updated"`
}
