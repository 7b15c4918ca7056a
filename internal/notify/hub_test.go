package notify

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/imrishuroy/go-offline-ordersync/internal/syncer"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func recvEvent(t *testing.T, ch chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatalf("client channel closed unexpectedly")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return Event{}
}

func TestHubBroadcastFanOut(t *testing.T) {
	h := startHub(t)

	c1 := &client{send: make(chan Event, 1)}
	c2 := &client{send: make(chan Event, 1)}
	h.register <- c1
	h.register <- c2

	h.Broadcast(Event{Type: EventQueueChanged, Pending: 3})

	for i, c := range []*client{c1, c2} {
		ev := recvEvent(t, c.send)
		if ev.Type != EventQueueChanged || ev.Pending != 3 {
			t.Fatalf("client %d got wrong event: %+v", i, ev)
		}
	}
}

func TestHubSyncCompletedEvent(t *testing.T) {
	h := startHub(t)

	c := &client{send: make(chan Event, 1)}
	h.register <- c

	h.SyncCompleted(syncer.Report{Succeeded: 2, Failed: 1, Pending: 4})

	ev := recvEvent(t, c.send)
	if ev.Type != EventSyncCompleted {
		t.Fatalf("expected %q, got %q", EventSyncCompleted, ev.Type)
	}
	if ev.Succeeded != 2 || ev.Failed != 1 || ev.Pending != 4 {
		t.Fatalf("report fields not carried over: %+v", ev)
	}
}

func TestHubDropsSlowConsumer(t *testing.T) {
	h := startHub(t)

	fast := &client{send: make(chan Event, 2)}
	slow := &client{send: make(chan Event, 1)}
	slow.send <- Event{} // already backed up, next delivery cannot fit
	h.register <- fast
	h.register <- slow

	h.Broadcast(Event{Type: EventQueueChanged, Pending: 1})
	h.Broadcast(Event{Type: EventQueueChanged, Pending: 2})

	// broadcasts are handled in order, so once the fast consumer has the
	// second event the first one was fully fanned out
	if ev := recvEvent(t, fast.send); ev.Pending != 1 {
		t.Fatalf("fast consumer got wrong event: %+v", ev)
	}
	if ev := recvEvent(t, fast.send); ev.Pending != 2 {
		t.Fatalf("fast consumer lost an event after the drop: %+v", ev)
	}

	// the slow consumer was dropped on the first fan-out: its channel holds
	// the stale event and is closed behind it
	if _, ok := <-slow.send; !ok {
		t.Fatalf("expected the stale buffered event first")
	}
	if _, ok := <-slow.send; ok {
		t.Fatalf("slow consumer channel not closed after drop")
	}
}

func TestHubUnregister(t *testing.T) {
	h := startHub(t)

	c := &client{send: make(chan Event, 1)}
	h.register <- c
	h.unregister <- c

	select {
	case _, ok := <-c.send:
		if ok {
			t.Fatalf("expected closed channel after unregister, got event")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after unregister")
	}
}
