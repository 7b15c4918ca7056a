package netmon

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Prober answers whether the remote side currently looks reachable. It only
// has to establish reachability of the host, not correctness of the API;
// distinguishing "online but rejecting" is the dispatcher's job.
type Prober interface {
	Probe(ctx context.Context) bool
}

// DialProber probes by opening (and immediately closing) a TCP connection.
type DialProber struct {
	Addr    string // host:port of the remote API
	Timeout time.Duration
}

func (p DialProber) Probe(ctx context.Context) bool {
	d := net.Dialer{Timeout: p.Timeout}
	conn, err := d.DialContext(ctx, "tcp", p.Addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Monitor tracks the online/offline state of the device and notifies
// subscribers on transitions. Notifications are edge-triggered: subscribers
// see exactly one event per actual state change, never duplicates, even
// though the underlying prober runs on an interval.
type Monitor struct {
	prober   Prober
	interval time.Duration
	log      *slog.Logger

	mu     sync.Mutex
	online bool
	subs   []chan bool
}

// New creates a Monitor. The initial state is the platform's best effort: one
// synchronous probe with a short deadline.
func New(prober Prober, interval time.Duration, log *slog.Logger) *Monitor {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return &Monitor{
		prober:   prober,
		interval: interval,
		log:      log,
		online:   prober.Probe(ctx),
	}
}

// Online reports the current network state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe returns a channel that receives the new state on every
// transition. The channel is buffered; if a subscriber lags, intermediate
// flaps are dropped in favor of the latest state.
func (m *Monitor) Subscribe() <-chan bool {
	ch := make(chan bool, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Run probes on the configured interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.observe(m.prober.Probe(ctx))
		}
	}
}

// observe records a probe result and fans out a notification if the state
// actually changed.
func (m *Monitor) observe(online bool) {
	m.mu.Lock()
	if online == m.online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]chan bool, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	if online {
		m.log.Info("connection restored")
	} else {
		m.log.Warn("connection lost, new orders will be queued locally")
	}

	for _, ch := range subs {
		select {
		case ch <- online:
		default:
			// subscriber still has an unread event; replace it with the
			// latest state so edges are never duplicated or stale
			select {
			case <-ch:
			default:
			}
			ch <- online
		}
	}
}
