// Package realtime pushes relayed events to connected patients over websockets.
package realtime

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/careflow-api/pkg/metrics"
)

type delivery struct {
	userID uuid.UUID
	data   []byte
}

// Hub tracks open connections per user. All state is owned by the Run goroutine.
type Hub struct {
	clients    map[uuid.UUID]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	deliver    chan delivery
	count      chan chan int
	done       chan struct{}
	metrics    *metrics.Metrics
}

func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan delivery, 256),
		count:      make(chan chan int),
		done:       make(chan struct{}),
		metrics:    m,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, set := range h.clients {
				for c := range set {
					h.drop(c)
				}
			}
			return
		case c := <-h.register:
			if h.clients[c.userID] == nil {
				h.clients[c.userID] = make(map[*Client]struct{})
			}
			h.clients[c.userID][c] = struct{}{}
			h.gauge(1)
			log.Debug().Str("user_id", c.userID.String()).Msg("Stream client connected")
		case c := <-h.unregister:
			h.drop(c)
		case d := <-h.deliver:
			for c := range h.clients[d.userID] {
				select {
				case c.send <- d.data:
				default:
					// slow consumer
					h.drop(c)
				}
			}
		case reply := <-h.count:
			n := 0
			for _, set := range h.clients {
				n += len(set)
			}
			reply <- n
		}
	}
}

// SendTo queues data for every connection of userID. It never blocks the caller.
func (h *Hub) SendTo(userID uuid.UUID, data []byte) bool {
	select {
	case h.deliver <- delivery{userID: userID, data: data}:
		return true
	default:
		return false
	}
}

// Connections reports the number of open connections
func (h *Hub) Connections(ctx context.Context) int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.done:
		return 0
	case <-ctx.Done():
		return 0
	}
}

func (h *Hub) drop(c *Client) {
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	close(c.send)
	h.gauge(-1)
}

func (h *Hub) gauge(delta float64) {
	if h.metrics != nil {
		h.metrics.StreamConnections.Add(delta)
	}
}
