package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var ErrBrokerClosed = errors.New("broker closed")

// MemoryBroker is an in-process fan-out broker used when no Redis URL is configured
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[chan []byte]struct{}
	closed bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[chan []byte]struct{})}
}

func (b *MemoryBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBrokerClosed
	}
	for ch := range b.subs[channel] {
		select {
		case ch <- payload:
		case <-ctx.Done():
			return ctx.Err()
		default:
			// slow subscriber, drop like redis pub/sub would
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}

	ch := make(chan []byte, 100)
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[chan []byte]struct{})
	}
	b.subs[channel][ch] = struct{}{}

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[channel][ch]; ok {
			delete(b.subs[channel], ch)
			close(ch)
		}
	}()

	return ch, nil
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, subs := range b.subs {
		for ch := range subs {
			close(ch)
		}
	}
	b.subs = make(map[string]map[chan []byte]struct{})
	return nil
}
