package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Envelope is the wire format of every event relayed from the outbox
type Envelope struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	AggregateID uuid.UUID       `json:"aggregateId"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"createdAt"`
}
