package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// notifySink records events POSTed to its /notify endpoint in arrival order.
type notifySink struct {
	mu     sync.Mutex
	events []Event
	server *httptest.Server
}

func newNotifySink(t *testing.T) *notifySink {
	t.Helper()

	sink := &notifySink{}
	sink.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/notify" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		ev := Event{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ev))

		sink.mu.Lock()
		sink.events = append(sink.events, ev)
		sink.mu.Unlock()
	}))
	t.Cleanup(sink.server.Close)

	return sink
}

func (s *notifySink) endpoint() string {
	return strings.TrimPrefix(s.server.URL, "http://")
}

func (s *notifySink) received() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Event{}, s.events...)
}

func (s *notifySink) waitFor(t *testing.T, count int) []Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if events := s.received(); len(events) >= count {
			return events
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %d events, got %d", count, len(s.received()))
	return nil
}

func TestDispatcher_DeliversInSequenceOrder(t *testing.T) {
	sink := newNotifySink(t)

	d := newDispatcher(testConfig(), func(string) {
		t.Error("unexpected drop")
	})
	d.subscribe("p1", sink.endpoint())

	d.publish(
		Event{Type: EventRoster},
		Event{Type: EventClueRevealed},
	)
	d.publish(Event{Type: EventWindowOpened})

	events := sink.waitFor(t, 3)
	require.Len(t, events, 3)
	assert.Equal(t, EventRoster, events[0].Type)
	assert.Equal(t, EventClueRevealed, events[1].Type)
	assert.Equal(t, EventWindowOpened, events[2].Type)
	for i, ev := range events {
		assert.Equal(t, uint64(i+1), ev.Seq)
	}

	assert.Equal(t, uint64(3), d.sequence())

	d.unsubscribe("p1")
}

func TestDispatcher_FanOutReachesEverySubscriber(t *testing.T) {
	first := newNotifySink(t)
	second := newNotifySink(t)

	d := newDispatcher(testConfig(), func(string) {
		t.Error("unexpected drop")
	})
	d.subscribe("p1", first.endpoint())
	d.subscribe("p2", second.endpoint())

	d.publish(Event{Type: EventChat, Payload: ChatPayload{Nick: "A", Message: "hi"}})

	firstEvents := first.waitFor(t, 1)
	secondEvents := second.waitFor(t, 1)

	// Both copies carry the same global sequence number.
	assert.Equal(t, firstEvents[0].Seq, secondEvents[0].Seq)

	d.unsubscribe("p1")
	d.unsubscribe("p2")
}

func TestDispatcher_UnreachableEndpointIsDropped(t *testing.T) {
	cfg := testConfig()
	cfg.pushRetries = 1
	cfg.pushBackoff = time.Millisecond
	cfg.pushTimeout = 200 * time.Millisecond

	dropped := make(chan string, 1)
	d := newDispatcher(cfg, func(playerID string) {
		dropped <- playerID
	})

	// Nothing listens here; every push attempt fails.
	d.subscribe("ghost", "127.0.0.1:1")
	d.publish(Event{Type: EventRoster})

	select {
	case playerID := <-dropped:
		assert.Equal(t, "ghost", playerID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the drop report")
	}

	// The lane is gone; publishing again must not resurrect it.
	d.publish(Event{Type: EventChat})
	d.mu.Lock()
	_, exists := d.subs["ghost"]
	d.mu.Unlock()
	assert.False(t, exists)
}

func TestDispatcher_FailingServerExhaustsRetries(t *testing.T) {
	attempts := 0
	mu := sync.Mutex{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.pushRetries = 2
	cfg.pushBackoff = time.Millisecond

	dropped := make(chan string, 1)
	d := newDispatcher(cfg, func(playerID string) {
		dropped <- playerID
	})

	d.subscribe("p1", strings.TrimPrefix(server.URL, "http://"))
	d.publish(Event{Type: EventRoster})

	select {
	case <-dropped:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the drop report")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, attempts, "one initial attempt plus two retries")
}

func TestDispatcher_StaleLaneDoesNotDropReconnectedPlayer(t *testing.T) {
	sink := newNotifySink(t)

	cfg := testConfig()
	cfg.pushRetries = 5
	cfg.pushBackoff = 50 * time.Millisecond
	cfg.pushTimeout = 200 * time.Millisecond

	dropped := make(chan string, 1)
	d := newDispatcher(cfg, func(playerID string) {
		dropped <- playerID
	})

	d.subscribe("p1", "127.0.0.1:1")
	d.publish(Event{Type: EventRoster})

	// The client reconnects with a live endpoint while the old lane is
	// still retrying against the dead one.
	time.Sleep(20 * time.Millisecond)
	d.subscribe("p1", sink.endpoint())
	d.publish(Event{Type: EventChat})

	sink.waitFor(t, 1)

	// Let the stale lane finish exhausting its retries.
	time.Sleep(500 * time.Millisecond)

	select {
	case playerID := <-dropped:
		t.Fatalf("reconnected player %q was reported disconnected", playerID)
	default:
	}

	d.mu.Lock()
	_, exists := d.subs["p1"]
	d.mu.Unlock()
	assert.True(t, exists, "the fresh lane survives the stale lane's failure")
}

func TestDispatcher_ResubscribeReplacesEndpoint(t *testing.T) {
	stale := newNotifySink(t)
	fresh := newNotifySink(t)

	d := newDispatcher(testConfig(), func(string) {})

	d.subscribe("p1", stale.endpoint())
	d.subscribe("p1", fresh.endpoint())

	d.publish(Event{Type: EventRoster})

	fresh.waitFor(t, 1)
	assert.Empty(t, stale.received(), "old lane stopped before delivery")
}
