package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
)

// EnvelopeHandler handles one decoded envelope
type EnvelopeHandler func(ctx context.Context, env Envelope) error

// Consume subscribes to channel and feeds every envelope to handler until ctx is done.
// Undecodable messages and handler errors are logged and skipped.
func Consume(ctx context.Context, broker Broker, channel string, handler EnvelopeHandler) error {
	msgChan, err := broker.Subscribe(ctx, channel)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	for raw := range msgChan {
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Warn().Err(err).Str("channel", channel).Msg("Dropping malformed envelope")
			continue
		}
		if err := handler(ctx, env); err != nil {
			log.Error().Err(err).
				Str("event_id", env.ID.String()).
				Str("event_type", env.Type).
				Msg("Failed to handle envelope")
		}
	}
	return ctx.Err()
}
