package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/jwalitptl/careflow-api/pkg/messaging"
	"github.com/jwalitptl/careflow-api/pkg/metrics"
)

type RedisBroker struct {
	client  *redis.Client
	cb      *gobreaker.CircuitBreaker
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

type Config struct {
	URL              string
	MaxRetries       int
	RetryBackoff     time.Duration
	PoolSize         int
	MinIdleConns     int
	BreakerThreshold uint32
	BreakerTimeout   time.Duration
}

func NewRedisBroker(ctx context.Context, config Config, logger zerolog.Logger, m *metrics.Metrics) (*RedisBroker, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Configure connection pooling
	opts.MaxRetries = config.MaxRetries
	if config.RetryBackoff > 0 {
		opts.MinRetryBackoff = config.RetryBackoff
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewWithClient(client, config, logger, m), nil
}

// NewWithClient wraps an existing client without pinging it
func NewWithClient(client *redis.Client, config Config, logger zerolog.Logger, m *metrics.Metrics) *RedisBroker {
	threshold := config.BreakerThreshold
	if threshold == 0 {
		threshold = 5
	}
	timeout := config.BreakerTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-broker",
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})

	return &RedisBroker{
		client:  client,
		cb:      cb,
		logger:  logger,
		metrics: m,
	}
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	_, err = b.cb.Execute(func() (interface{}, error) {
		return nil, b.client.Publish(ctx, channel, payload).Err()
	})
	b.metrics.Redis("publish", err)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	pubsub := b.client.Subscribe(ctx, channel)

	// Wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		b.metrics.Redis("subscribe", err)
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}
	b.metrics.Redis("subscribe", nil)

	in := pubsub.Channel()
	msgChan := make(chan []byte, 100)

	go func() {
		defer func() {
			pubsub.Close()
			close(msgChan)
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case msgChan <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return msgChan, nil
}

// Ping reports whether Redis is reachable
func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

var _ messaging.Broker = (*RedisBroker)(nil)
