package worker

import (
	"context"
	"time"

	"github.com/jwalitptl/careflow-api/internal/repository"
	"github.com/jwalitptl/careflow-api/pkg/logger"
)

// StaleClaimReaper hands events claimed by a worker that died mid-batch back to the queue
type StaleClaimReaper struct {
	repo       repository.OutboxRepository
	staleAfter time.Duration
	interval   time.Duration
	logger     *logger.Logger
	now        func() time.Time
}

func NewStaleClaimReaper(repo repository.OutboxRepository, staleAfter, interval time.Duration, logger *logger.Logger) *StaleClaimReaper {
	return &StaleClaimReaper{
		repo:       repo,
		staleAfter: staleAfter,
		interval:   interval,
		logger:     logger.With("outbox_reaper"),
		now:        time.Now,
	}
}

func (w *StaleClaimReaper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Reap(ctx); err != nil {
				w.logger.Error(err, "Failed to release stale outbox claims")
			}
		}
	}
}

func (w *StaleClaimReaper) Reap(ctx context.Context) (int64, error) {
	n, err := w.repo.ReleaseStale(ctx, w.now().UTC().Add(-w.staleAfter))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		w.logger.Warn("Released stale outbox claims", "count", n)
	}
	return n, nil
}
