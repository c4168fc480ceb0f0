package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/careflow-api/internal/model"
)

type outboxRepo struct{ s *Store }

func (r outboxRepo) ClaimPending(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	pending := make([]*model.OutboxEvent, 0)
	for _, e := range r.s.outbox {
		if e.Status == model.OutboxStatusPending {
			pending = append(pending, e)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	now := time.Now().UTC()
	out := make([]*model.OutboxEvent, 0, len(pending))
	for _, e := range pending {
		e.Status = model.OutboxStatusProcessing
		e.UpdatedAt = now
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (r outboxRepo) MarkProcessed(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.outbox[id]
	if !ok {
		return notFound("outbox event", id)
	}
	now := time.Now().UTC()
	e.Status = model.OutboxStatusProcessed
	e.ProcessedAt = &now
	e.UpdatedAt = now
	e.LastError = ""
	return nil
}

func (r outboxRepo) MarkFailed(_ context.Context, id uuid.UUID, errMsg string, maxAttempts int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.outbox[id]
	if !ok {
		return notFound("outbox event", id)
	}
	e.Attempts++
	e.LastError = errMsg
	e.UpdatedAt = time.Now().UTC()
	if e.Attempts >= maxAttempts {
		e.Status = model.OutboxStatusFailed
	} else {
		e.Status = model.OutboxStatusPending
	}
	return nil
}

func (r outboxRepo) ReleaseStale(_ context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	now := time.Now().UTC()
	for _, e := range r.s.outbox {
		if e.Status == model.OutboxStatusProcessing && e.UpdatedAt.Before(cutoff) {
			e.Status = model.OutboxStatusPending
			e.UpdatedAt = now
			n++
		}
	}
	return n, nil
}
