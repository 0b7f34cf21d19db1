package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/northboundcommerce/po-ingest-engine/internal/platform/logger"
)

// sseHeartbeatInterval matches the teacher's internal/sse/hub.go cadence.
const sseHeartbeatInterval = 15 * time.Second

// client is one connected SSE listener, adapted from the teacher's
// SSEClient — buffered outbound channel, never blocks the publisher.
type client struct {
	id       string
	outbound chan Event
	done     chan struct{}
}

// Subscriber is the HTTP-side SSE fan-out for a single merchant's
// progress events, grounded on the teacher's internal/sse/hub.go
// ServeHTTP (event-stream headers, 15s heartbeat ticker, per-message
// Flush) generalized from a global hub onto one Subscriber per merchant
// backed by the Progress Bus.
type Subscriber struct {
	log        *logger.Logger
	bus        *Bus
	merchantID string

	mu      sync.Mutex
	clients map[string]*client
}

// NewSubscriber wires a merchant's SSE fan-out to the bus; it subscribes
// immediately and keeps forwarding until ctx is canceled.
func NewSubscriber(ctx context.Context, log *logger.Logger, bus *Bus, merchantID string) (*Subscriber, error) {
	s := &Subscriber{
		log:        log.With("component", "ProgressSubscriber", "merchant_id", merchantID),
		bus:        bus,
		merchantID: merchantID,
		clients:    make(map[string]*client),
	}
	if err := bus.Subscribe(ctx, merchantID, s.broadcast); err != nil {
		return nil, fmt.Errorf("subscribe progress events for merchant: %w", err)
	}
	return s, nil
}

func (s *Subscriber) broadcast(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		select {
		case c.outbound <- ev:
		default:
			s.log.Warn("dropping progress event for slow client", "client_id", c.id)
		}
	}
}

// ServeHTTP streams Server-Sent Events to one connecting client until it
// disconnects, writing a padded ping comment every heartbeat interval to
// keep intermediate proxies from closing the connection.
func (s *Subscriber) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	c := &client{id: fmt.Sprintf("%p", r), outbound: make(chan Event, 32), done: make(chan struct{})}
	s.addClient(c)
	defer s.removeClient(c)

	ticker := time.NewTicker(sseHeartbeatInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case ev := <-c.outbound:
			raw, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Topic, raw)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": ping                                                                      \n\n")
			flusher.Flush()
		}
	}
}

func (s *Subscriber) addClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.id] = c
}

func (s *Subscriber) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c.id)
	close(c.done)
}
