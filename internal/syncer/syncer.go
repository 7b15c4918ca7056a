package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/imrishuroy/go-offline-ordersync/internal/api"
	"github.com/imrishuroy/go-offline-ordersync/internal/queue"
)

// Queue is the slice of the store a drain pass needs.
type Queue interface {
	GetPending() ([]queue.PendingOrder, error)
	GetPendingCount() (int, error)
	UpdateStatus(id uint64, status, errMsg string) error
	Remove(id uint64) error
}

// Submitter relays one order payload to the remote API.
type Submitter interface {
	CreateOrder(ctx context.Context, payload json.RawMessage, idempotencyKey string) (json.RawMessage, error)
}

// Notifier receives the aggregate result of a completed drain pass so open
// UI instances can refresh their pending counts.
type Notifier interface {
	SyncCompleted(report Report)
}

// Report is the aggregate outcome of one drain pass.
type Report struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
}

// ErrSyncRunning is returned by SyncNow when a pass is already in flight.
// Triggers are coalesced, not queued.
var ErrSyncRunning = errors.New("sync pass already running")

// Drain runs one pass over the snapshot of pending records, strictly
// sequentially and in FIFO order. Per-record submission failures are recorded
// on the record and do not abort the pass; a storage failure does. A
// queue.ErrNotFound on update or an already-deleted record means another
// drainer got there first; the record is skipped and not counted.
//
// Shared by the in-process engine and the background sync daemon so both
// drainers behave identically.
func Drain(ctx context.Context, q Queue, submit Submitter, log *slog.Logger) (Report, error) {
	pending, err := q.GetPending()
	if err != nil {
		return Report{}, fmt.Errorf("read pending orders: %w", err)
	}
	if len(pending) == 0 {
		return Report{}, nil
	}

	log.Info("draining offline queue", slog.Int("pending", len(pending)))

	var report Report
	for _, rec := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if err := q.UpdateStatus(rec.ID, queue.StatusSyncing, ""); err != nil {
			if errors.Is(err, queue.ErrNotFound) {
				// another drainer already handled this record
				log.Debug("record already handled elsewhere", slog.Uint64("id", rec.ID))
				continue
			}
			return report, fmt.Errorf("mark syncing: %w", err)
		}

		_, submitErr := submit.CreateOrder(ctx, rec.OrderData, rec.ClientRef)
		if submitErr != nil {
			// A failing order must not block the rest of the queue.
			if err := q.UpdateStatus(rec.ID, queue.StatusFailed, submitErr.Error()); err != nil {
				if errors.Is(err, queue.ErrNotFound) {
					// another drainer removed it mid-flight; not our failure
					log.Debug("record already handled elsewhere", slog.Uint64("id", rec.ID))
					continue
				}
				return report, fmt.Errorf("mark failed: %w", err)
			}
			report.Failed++
			log.Warn("order sync failed",
				slog.Uint64("id", rec.ID),
				slog.String("error", submitErr.Error()))
			continue
		}

		// Remove is idempotent; a record deleted by a racing drainer is fine.
		if err := q.Remove(rec.ID); err != nil {
			return report, fmt.Errorf("remove synced order: %w", err)
		}
		report.Succeeded++
		log.Info("order synced", slog.Uint64("id", rec.ID))
	}

	if n, err := q.GetPendingCount(); err != nil {
		log.Warn("failed to read pending count", slog.String("error", err.Error()))
	} else {
		report.Pending = n
	}
	return report, nil
}

// Engine drives drain passes inside the agent: it listens for online
// transitions from the connectivity monitor (with a settling delay so a flaky
// link doesn't cause thrashing) and serves manual "sync now" requests. All
// triggers funnel through the same single-flight entry point.
type Engine struct {
	store    Queue
	client   Submitter
	monitor  ConnState
	notifier Notifier
	settle   time.Duration
	log      *slog.Logger

	running atomic.Bool
	kick    chan struct{}
}

// ConnState is the engine's view of the connectivity monitor.
type ConnState interface {
	Online() bool
	Subscribe() <-chan bool
}

// NewEngine wires a sync engine. settle is the delay between an online
// transition and the drain pass it triggers.
func NewEngine(store Queue, client Submitter, monitor ConnState, notifier Notifier, settle time.Duration, log *slog.Logger) *Engine {
	return &Engine{
		store:    store,
		client:   client,
		monitor:  monitor,
		notifier: notifier,
		settle:   settle,
		log:      log,
		kick:     make(chan struct{}, 1),
	}
}

// RequestSync schedules a near-term drain pass without blocking. Used by the
// dispatcher after it enqueues an order so the queue flushes as soon as the
// link allows.
func (e *Engine) RequestSync() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// SyncNow runs a drain pass immediately (manual trigger). Returns
// ErrSyncRunning if a pass is already in flight.
func (e *Engine) SyncNow(ctx context.Context) (Report, error) {
	return e.sync(ctx)
}

// Run blocks until ctx is cancelled, draining the queue after every online
// transition and every RequestSync kick.
func (e *Engine) Run(ctx context.Context) {
	transitions := e.monitor.Subscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case online := <-transitions:
			if !online {
				continue
			}
			// settle before syncing so a flapping link doesn't thrash
			select {
			case <-ctx.Done():
				return
			case <-time.After(e.settle):
			}
		case <-e.kick:
		}

		if _, err := e.sync(ctx); err != nil && !errors.Is(err, ErrSyncRunning) {
			e.log.Error("sync pass failed", slog.String("error", err.Error()))
		}
	}
}

// sync is the single-flight entry point: if a pass is already running the
// trigger is dropped.
func (e *Engine) sync(ctx context.Context) (Report, error) {
	if !e.running.CompareAndSwap(false, true) {
		return Report{}, ErrSyncRunning
	}
	defer e.running.Store(false)

	if !e.monitor.Online() {
		return Report{}, nil
	}

	report, err := Drain(ctx, e.store, e.client, e.log)
	if err != nil {
		return report, err
	}
	if report.Succeeded > 0 || report.Failed > 0 {
		e.notifier.SyncCompleted(report)
		e.log.Info("sync pass complete",
			slog.Int("succeeded", report.Succeeded),
			slog.Int("failed", report.Failed),
			slog.Int("pending", report.Pending))
	}
	return report, nil
}

// Running reports whether a drain pass is currently in flight.
func (e *Engine) Running() bool {
	return e.running.Load()
}

var _ Submitter = (*api.Client)(nil)
