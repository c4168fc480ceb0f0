package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/careflow-api/pkg/messaging"
)

// Relay forwards broker envelopes to the stream of the user named in the payload
type Relay struct {
	hub     *Hub
	broker  messaging.Broker
	channel string
}

func NewRelay(hub *Hub, broker messaging.Broker, channel string) *Relay {
	return &Relay{hub: hub, broker: broker, channel: channel}
}

// Run blocks until ctx is done or the subscription fails
func (r *Relay) Run(ctx context.Context) error {
	log.Info().Str("channel", r.channel).Msg("Starting realtime relay")
	return messaging.Consume(ctx, r.broker, r.channel, r.Handle)
}

func (r *Relay) Handle(_ context.Context, env messaging.Envelope) error {
	var target struct {
		UserID uuid.UUID `json:"userId"`
	}
	if err := json.Unmarshal(env.Payload, &target); err != nil {
		return fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	if target.UserID == uuid.Nil {
		return nil
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", env.Type, err)
	}
	if !r.hub.SendTo(target.UserID, data) {
		log.Warn().Str("event_id", env.ID.String()).Msg("Realtime hub saturated, event dropped")
	}
	return nil
}
