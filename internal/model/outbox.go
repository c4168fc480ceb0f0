package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusProcessed  OutboxStatus = "processed"
	OutboxStatusFailed     OutboxStatus = "failed"
)

// Outbox event types
const (
	EventRecordSubmitted       = "record.submitted"
	EventRecordReviewed        = "record.reviewed"
	EventPrescriptionDispensed = "prescription.dispensed"
	EventMessageSent           = "message.sent"
	EventNotificationCreated   = "notification.created"
)

type OutboxEvent struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	EventType   string          `db:"event_type" json:"eventType"`
	AggregateID uuid.UUID       `db:"aggregate_id" json:"aggregateId"`
	Payload     json.RawMessage `db:"payload" json:"payload"`
	Status      OutboxStatus    `db:"status" json:"status"`
	Attempts    int             `db:"attempts" json:"attempts"`
	LastError   string          `db:"last_error" json:"lastError,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updatedAt"`
	ProcessedAt *time.Time      `db:"processed_at" json:"processedAt,omitempty"`
}

// NewOutboxEvent marshals payload into a pending event
func NewOutboxEvent(eventType string, aggregateID uuid.UUID, payload interface{}, now time.Time) (*OutboxEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &OutboxEvent{
		ID:          uuid.New(),
		EventType:   eventType,
		AggregateID: aggregateID,
		Payload:     data,
		Status:      OutboxStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// RecordEvent is the payload of record lifecycle events
type RecordEvent struct {
	UserID         uuid.UUID    `json:"userId"`
	RecordID       uuid.UUID    `json:"recordId"`
	PrescriptionID *uuid.UUID   `json:"prescriptionId,omitempty"`
	Status         RecordStatus `json:"status"`
}

// NotificationEvent carries what the relay needs to push or email a notification
type NotificationEvent struct {
	UserID         uuid.UUID        `json:"userId"`
	NotificationID uuid.UUID        `json:"notificationId"`
	Email          string           `json:"email,omitempty"`
	Name           string           `json:"name,omitempty"`
	Type           NotificationType `json:"type"`
	Title          string           `json:"title"`
	Message        string           `json:"message"`
}

// MessageEvent is the payload of message.sent
type MessageEvent struct {
	UserID    uuid.UUID `json:"userId"`
	MessageID uuid.UUID `json:"messageId"`
	FromRole  Role      `json:"fromRole"`
	FromName  string    `json:"from"`
	Message   string    `json:"message"`
}
