package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/imrishuroy/go-offline-ordersync/internal/api"
)

// OrderQueue is the slice of the store the dispatcher needs for new orders.
type OrderQueue interface {
	Add(orderData json.RawMessage, clientRef string) (uint64, error)
	GetPendingCount() (int, error)
}

// Submitter relays an order to the remote API.
type Submitter interface {
	CreateOrder(ctx context.Context, payload json.RawMessage, idempotencyKey string) (json.RawMessage, error)
}

// ConnState reports whether the device currently looks online.
type ConnState interface {
	Online() bool
}

// SyncRequester is poked after an enqueue so the queue flushes as soon as the
// link allows.
type SyncRequester interface {
	RequestSync()
}

// Result tells the caller what happened to a submitted order. Exactly one of
// the two shapes applies: delivered directly (Response set) or saved locally
// (Queued true, QueueID/Pending set). The distinction must reach the
// operator: "saved locally, will send automatically" requires no action,
// a rejection does.
type Result struct {
	Queued   bool            `json:"queued"`
	QueueID  uint64          `json:"queue_id,omitempty"`
	Pending  int             `json:"pending,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

// Dispatcher is the single entry point through which new orders enter the
// system. It decides direct-submit vs enqueue and owns the enqueue-on-failure
// fallback.
type Dispatcher struct {
	queue   OrderQueue
	client  Submitter
	monitor ConnState
	sync    SyncRequester
	log     *slog.Logger
}

func New(q OrderQueue, client Submitter, monitor ConnState, sync SyncRequester, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		queue:   q,
		client:  client,
		monitor: monitor,
		sync:    sync,
		log:     log,
	}
}

// Submit routes one order. Offline: enqueue without touching the network.
// Online: direct submit; a transport failure falls back to the queue, an
// application-level rejection propagates to the caller untouched. Retrying
// an invalid order will never succeed, so it is never enqueued.
func (d *Dispatcher) Submit(ctx context.Context, orderData json.RawMessage) (Result, error) {
	clientRef := uuid.NewString()

	if !d.monitor.Online() {
		d.log.Info("device offline, queueing order locally")
		return d.enqueue(orderData, clientRef)
	}

	resp, err := d.client.CreateOrder(ctx, orderData, clientRef)
	if err != nil {
		if api.IsTransport(err) {
			d.log.Warn("direct submit failed, queueing order locally",
				slog.String("error", err.Error()))
			return d.enqueue(orderData, clientRef)
		}
		return Result{}, err
	}

	return Result{Response: resp}, nil
}

func (d *Dispatcher) enqueue(orderData json.RawMessage, clientRef string) (Result, error) {
	id, err := d.queue.Add(orderData, clientRef)
	if err != nil {
		return Result{}, fmt.Errorf("save order locally: %w", err)
	}

	pending, err := d.queue.GetPendingCount()
	if err != nil {
		// the order is safely stored; the count is cosmetic
		d.log.Error("failed to read pending count", slog.String("error", err.Error()))
		pending = 0
	}

	d.sync.RequestSync()
	d.log.Info("order saved to offline queue",
		slog.Uint64("id", id), slog.Int("pending", pending))

	return Result{Queued: true, QueueID: id, Pending: pending}, nil
}
