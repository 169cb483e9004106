package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const subscriberQueueSize = 256

// subscriber is one player endpoint's delivery lane: a FIFO queue drained by
// a dedicated goroutine, so a slow or dead endpoint never stalls anyone else
// and events reach each endpoint in sequence order.
type subscriber struct {
	playerID string
	endpoint string
	queue    chan Event
	stop     chan struct{}
	stopOnce sync.Once
}

func (s *subscriber) close() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

// Dispatcher assigns global sequence numbers and pushes every event to every
// registered endpoint (HTTP POST to <endpoint>/notify) and to any connected
// spectator websockets. Delivery to a player is retried a bounded number of
// times; on exhaustion the onDrop callback feeds the disconnect back into
// the coordinator.
type Dispatcher struct {
	cfg *Config

	mu   sync.Mutex
	seq  uint64
	subs map[string]*subscriber

	spectators *spectatorHub

	client *http.Client
	onDrop func(playerID string)
}

func newDispatcher(cfg *Config, onDrop func(playerID string)) *Dispatcher {
	return &Dispatcher{
		cfg:        cfg,
		subs:       make(map[string]*subscriber),
		spectators: newSpectatorHub(),
		client:     &http.Client{Timeout: cfg.pushTimeout},
		onDrop:     onDrop,
	}
}

// subscribe starts (or restarts, after a reconnect) delivery to a player's
// endpoint.
func (d *Dispatcher) subscribe(playerID, endpoint string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if old, ok := d.subs[playerID]; ok {
		old.close()
	}

	sub := &subscriber{
		playerID: playerID,
		endpoint: endpoint,
		queue:    make(chan Event, subscriberQueueSize),
		stop:     make(chan struct{}),
	}
	d.subs[playerID] = sub

	go d.deliverLoop(sub)
}

func (d *Dispatcher) unsubscribe(playerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if sub, ok := d.subs[playerID]; ok {
		sub.close()
		delete(d.subs, playerID)
	}
}

// publish stamps each event with the next sequence number and enqueues it
// for every subscriber and spectator. A queue that has been full for long
// enough to overflow means the endpoint is hopeless; it gets dropped the
// same way the retry path drops it.
func (d *Dispatcher) publish(events ...Event) {
	d.mu.Lock()

	stamped := make([]Event, 0, len(events))
	for _, ev := range events {
		d.seq++
		ev.Seq = d.seq
		stamped = append(stamped, ev)
	}

	var overflowed []*subscriber
	for _, sub := range d.subs {
		for _, ev := range stamped {
			select {
			case sub.queue <- ev:
			default:
				overflowed = append(overflowed, sub)
			}
		}
	}
	for _, sub := range overflowed {
		sub.close()
		delete(d.subs, sub.playerID)
	}

	d.mu.Unlock()

	for _, sub := range overflowed {
		logf(d.cfg, "PUSH: Queue overflow for %s, dropping", sub.endpoint)
		d.onDrop(sub.playerID)
	}

	for _, ev := range stamped {
		d.spectators.broadcast(ev)
	}
}

// deliverLoop drains one subscriber's queue in order. Each event is posted
// with bounded retries; once retries are exhausted the player is reported
// disconnected and the lane shuts down. A lane that was replaced by a
// reconnect mid-retry just exits: the failure belongs to the old endpoint,
// not the player.
func (d *Dispatcher) deliverLoop(sub *subscriber) {
	for {
		select {
		case <-sub.stop:
			return
		case ev := <-sub.queue:
			if d.push(sub.endpoint, ev) {
				continue
			}

			d.mu.Lock()
			current := d.subs[sub.playerID] == sub
			if current {
				delete(d.subs, sub.playerID)
			}
			d.mu.Unlock()

			if current {
				logf(d.cfg, "PUSH: Endpoint %s unreachable after %d attempts, dropping",
					sub.endpoint, d.cfg.pushRetries+1)
				d.onDrop(sub.playerID)
			}
			return
		}
	}
}

// push attempts one event delivery, retrying with a fixed backoff.
func (d *Dispatcher) push(endpoint string, ev Event) bool {
	body, err := json.Marshal(ev)
	if err != nil {
		logf(d.cfg, "PUSH: Failed to encode event %d: %v", ev.Seq, err)
		return true // nothing to retry
	}

	url := "http://" + endpoint + "/notify"

	for attempt := 0; attempt <= d.cfg.pushRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(d.cfg.pushBackoff)
		}

		resp, err := d.client.Post(url, "application/json", bytes.NewReader(body))
		if err != nil {
			continue
		}
		resp.Body.Close()

		if resp.StatusCode < 300 {
			return true
		}
	}

	return false
}

// sequence returns the last assigned event sequence number.
func (d *Dispatcher) sequence() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.seq
}

// spectatorHub fans the event stream out to browser websockets. Spectators
// are best-effort: anyone who cannot keep up is dropped, never retried.
type spectatorHub struct {
	mu      sync.Mutex
	clients map[*spectatorClient]bool
}

type spectatorClient struct {
	conn *websocket.Conn
	send chan Event
}

func newSpectatorHub() *spectatorHub {
	return &spectatorHub{clients: make(map[*spectatorClient]bool)}
}

func (h *spectatorHub) add(conn *websocket.Conn) *spectatorClient {
	client := &spectatorClient{
		conn: conn,
		send: make(chan Event, 32),
	}

	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	go client.writePump()
	return client
}

func (h *spectatorHub) remove(client *spectatorClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *spectatorHub) broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- ev:
		default:
			delete(h.clients, client)
			close(client.send)
		}
	}
}

func (c *spectatorClient) writePump() {
	defer c.conn.Close()

	for ev := range c.send {
		if err := c.conn.WriteJSON(ev); err != nil {
			return
		}
	}
}
