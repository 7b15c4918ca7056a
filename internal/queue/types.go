package queue

import (
	"encoding/json"
	"time"
)

// Pending order statuses
const (
	StatusPending = "pending"
	StatusSyncing = "syncing"
	StatusFailed  = "failed"
)

// PendingOrder is a durable record of an order not yet confirmed by the
// remote server. OrderData is relayed verbatim on every sync attempt; the
// queue never interprets its contents. ClientRef is the idempotency key sent
// with every replay so the server can dedupe a retried order it already
// accepted.
type PendingOrder struct {
	ID         uint64          `json:"id"`          // assigned by the store, monotonic, never reused
	OrderData  json.RawMessage `json:"order_data"`  // opaque order payload
	ClientRef  string          `json:"client_ref"`  // idempotency key
	Timestamp  time.Time       `json:"timestamp"`   // creation time; FIFO sort key
	Status     string          `json:"status"`      // pending | syncing | failed
	RetryCount int             `json:"retry_count"` // incremented each time status enters syncing
	Error      string          `json:"error,omitempty"`
}
