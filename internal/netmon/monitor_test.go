package netmon

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

type fakeProber struct {
	online atomic.Bool
}

func newFakeProber(online bool) *fakeProber {
	p := &fakeProber{}
	p.online.Store(online)
	return p
}

func (p *fakeProber) Probe(ctx context.Context) bool { return p.online.Load() }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInitialState(t *testing.T) {
	m := New(newFakeProber(true), time.Minute, discardLogger())
	if !m.Online() {
		t.Fatalf("expected initial state online")
	}

	m = New(newFakeProber(false), time.Minute, discardLogger())
	if m.Online() {
		t.Fatalf("expected initial state offline")
	}
}

func TestEdgeTriggeredNotifications(t *testing.T) {
	m := New(newFakeProber(false), time.Minute, discardLogger())
	sub := m.Subscribe()

	// repeated identical observations must not emit anything
	m.observe(false)
	m.observe(false)
	select {
	case v := <-sub:
		t.Fatalf("unexpected notification for unchanged state: %v", v)
	default:
	}

	// a transition emits exactly one event
	m.observe(true)
	select {
	case v := <-sub:
		if !v {
			t.Fatalf("expected online event, got offline")
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a transition event")
	}

	// no duplicate online events
	m.observe(true)
	select {
	case v := <-sub:
		t.Fatalf("duplicate event for unchanged state: %v", v)
	default:
	}

	if !m.Online() {
		t.Fatalf("state not updated")
	}
}

func TestSlowSubscriberSeesLatestState(t *testing.T) {
	m := New(newFakeProber(false), time.Minute, discardLogger())
	sub := m.Subscribe()

	// flap twice without the subscriber reading; the stale event is replaced
	m.observe(true)
	m.observe(false)

	select {
	case v := <-sub:
		if v {
			t.Fatalf("expected latest state (offline), got stale online event")
		}
	case <-time.After(time.Second):
		t.Fatalf("expected an event")
	}
}

func TestRunProbesOnInterval(t *testing.T) {
	p := newFakeProber(false)
	m := New(p, 10*time.Millisecond, discardLogger())
	sub := m.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	p.online.Store(true)
	select {
	case v := <-sub:
		if !v {
			t.Fatalf("expected online transition")
		}
	case <-time.After(time.Second):
		t.Fatalf("monitor did not observe the transition")
	}
}
