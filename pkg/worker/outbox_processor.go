package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/careflow-api/internal/email"
	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/repository"
	"github.com/jwalitptl/careflow-api/pkg/logger"
	"github.com/jwalitptl/careflow-api/pkg/messaging"
	"github.com/jwalitptl/careflow-api/pkg/metrics"
)

type OutboxProcessorConfig struct {
	Channel      string
	BatchSize    int
	PollInterval time.Duration
	// MaxAttempts is how many batches may fail an event before it is parked as failed
	MaxAttempts  int
	RetryDelay   time.Duration
	MaxRetryTime time.Duration
}

func (c OutboxProcessorConfig) validate() error {
	switch {
	case c.Channel == "":
		return errors.New("channel is required")
	case c.BatchSize <= 0:
		return errors.New("batch size must be greater than 0")
	case c.PollInterval <= 0:
		return errors.New("poll interval must be greater than 0")
	case c.MaxAttempts <= 0:
		return errors.New("max attempts must be greater than 0")
	case c.RetryDelay <= 0:
		return errors.New("retry delay must be greater than 0")
	}
	return nil
}

// OutboxProcessor relays committed outbox rows to the broker and emails patient notifications
type OutboxProcessor struct {
	repo    repository.OutboxRepository
	broker  messaging.Broker
	mailer  email.Sender
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	broker messaging.Broker,
	mailer email.Sender,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) (*OutboxProcessor, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid outbox processor config: %w", err)
	}
	if mailer == nil {
		mailer = email.NopSender{}
	}

	return &OutboxProcessor{
		repo:    repo,
		broker:  broker,
		mailer:  mailer,
		config:  config,
		logger:  logger.With("outbox"),
		metrics: metrics,
	}, nil
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor", "channel", p.config.Channel)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
		}
	}
}

// ProcessBatch claims and relays one batch, returning how many events were published
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	events, err := p.repo.ClaimPending(ctx, p.config.BatchSize)
	p.metrics.Database("claim_outbox_events", err)
	if err != nil {
		return 0, fmt.Errorf("failed to claim pending events: %w", err)
	}

	published := 0
	for _, event := range events {
		if err := p.processEvent(ctx, event); err != nil {
			p.logger.Error(err, "Failed to process event",
				"event_id", event.ID.String(),
				"event_type", event.EventType)
			continue
		}
		published++
	}
	return published, nil
}

func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) error {
	env := messaging.Envelope{
		ID:          event.ID,
		Type:        event.EventType,
		AggregateID: event.AggregateID,
		Payload:     event.Payload,
		CreatedAt:   event.CreatedAt,
	}

	err := backoff.RetryNotify(
		func() error { return p.broker.Publish(ctx, p.config.Channel, env) },
		backoff.WithContext(p.newBackOff(), ctx),
		func(err error, wait time.Duration) {
			p.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()
			p.logger.Warn("Retrying publish", "event_id", event.ID.String(), "wait", wait.String(), "error", err.Error())
		},
	)
	if err != nil {
		p.metrics.OutboxEventsFailed.Inc()
		if markErr := p.repo.MarkFailed(ctx, event.ID, err.Error(), p.config.MaxAttempts); markErr != nil {
			p.logger.Error(markErr, "Failed to update event status", "event_id", event.ID.String())
		}
		return err
	}

	if event.EventType == model.EventNotificationCreated {
		p.sendEmail(ctx, event)
	}

	p.metrics.OutboxEventsProcessed.Inc()
	if err := p.repo.MarkProcessed(ctx, event.ID); err != nil {
		p.logger.Error(err, "Failed to update event status", "event_id", event.ID.String())
		return err
	}
	return nil
}

func (p *OutboxProcessor) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.config.RetryDelay
	if p.config.MaxRetryTime > 0 {
		b.MaxElapsedTime = p.config.MaxRetryTime
	}
	return b
}

// sendEmail is best effort; a failed email does not republish the event
func (p *OutboxProcessor) sendEmail(ctx context.Context, event *model.OutboxEvent) {
	var n model.NotificationEvent
	if err := json.Unmarshal(event.Payload, &n); err != nil {
		p.logger.Error(err, "Malformed notification payload", "event_id", event.ID.String())
		return
	}
	if n.Email == "" {
		return
	}
	if err := p.mailer.Send(ctx, n.Email, n.Name, n.Title, n.Message); err != nil {
		p.logger.Error(err, "Failed to email notification", "notification_id", n.NotificationID.String())
	}
}
