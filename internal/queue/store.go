package queue

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

var ordersBucket = []byte("pending_orders")

// ErrNotFound is returned by UpdateStatus and Requeue when the record does
// not exist. Under two independent drainers this usually means the other
// drainer already removed the record; callers treat it as "already synced".
var ErrNotFound = errors.New("pending order not found")

// ErrStatusMismatch is returned by Requeue when the record is not in the
// status the transition expects.
var ErrStatusMismatch = errors.New("status mismatch, conditional transition failed")

// ErrBusy is returned by Open when another process holds the queue file lock.
// A background drainer treats it as "someone else is draining" and skips the
// pass.
var ErrBusy = errors.New("queue store is locked by another process")

// Store encapsulates operations on the durable pending-order queue. Every
// mutation is a single bbolt transaction committed before the call returns,
// so a record reported as added survives an immediate crash.
type Store struct {
	db      *bbolt.DB
	nowFunc func() time.Time
}

// Open opens (creating if needed) the queue file at path. lockTimeout bounds
// the wait for the exclusive file lock; ErrBusy is returned when it expires.
// The file lock doubles as drainer election: whoever holds the store open is
// the designated drainer.
func Open(path string, lockTimeout time.Duration) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: lockTimeout})
	if err != nil {
		if errors.Is(err, bbolt.ErrTimeout) {
			return nil, ErrBusy
		}
		return nil, fmt.Errorf("open queue store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(ordersBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create orders bucket: %w", err)
	}

	return &Store{db: db, nowFunc: time.Now}, nil
}

// Close releases the queue file and its lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add inserts a new record with status=pending and returns the assigned id.
// Ids come from the bucket sequence: monotonic and never reused, even after
// deletion.
func (s *Store) Add(orderData json.RawMessage, clientRef string) (uint64, error) {
	var id uint64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(ordersBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}

		rec := PendingOrder{
			ID:        seq,
			OrderData: orderData,
			ClientRef: clientRef,
			Timestamp: s.nowFunc(),
			Status:    StatusPending,
		}
		buf, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if err := b.Put(itob(seq), buf); err != nil {
			return fmt.Errorf("put record: %w", err)
		}
		id = seq
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetPending returns all records with status=pending, oldest first (ascending
// timestamp, id as tiebreak). This is the FIFO order a drain pass follows.
func (s *Store) GetPending() ([]PendingOrder, error) {
	return s.getByStatus(StatusPending)
}

// GetFailed returns records that a sync pass marked failed. They are never
// retried automatically; the operator inspects them here and requeues or
// discards.
func (s *Store) GetFailed() ([]PendingOrder, error) {
	return s.getByStatus(StatusFailed)
}

func (s *Store) getByStatus(status string) ([]PendingOrder, error) {
	var out []PendingOrder
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(ordersBucket).ForEach(func(_, v []byte) error {
			var rec PendingOrder
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal record: %w", err)
			}
			if rec.Status == status {
				out = append(out, rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// GetPendingCount reports how many records GetPending would return.
func (s *Store) GetPendingCount() (int, error) {
	n := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(ordersBucket).ForEach(func(_, v []byte) error {
			var rec PendingOrder
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal record: %w", err)
			}
			if rec.Status == StatusPending {
				n++
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// UpdateStatus mutates one record in place. Entering syncing increments
// RetryCount as part of the same transaction. errMsg is recorded only for
// failed; any other transition clears it. Returns ErrNotFound if the id does
// not exist.
func (s *Store) UpdateStatus(id uint64, status, errMsg string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(ordersBucket)
		v := b.Get(itob(id))
		if v == nil {
			return ErrNotFound
		}
		var rec PendingOrder
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("unmarshal record: %w", err)
		}

		rec.Status = status
		if status == StatusSyncing {
			rec.RetryCount++
		}
		if status == StatusFailed {
			rec.Error = errMsg
		} else {
			rec.Error = ""
		}

		buf, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if err := b.Put(itob(id), buf); err != nil {
			return fmt.Errorf("put record: %w", err)
		}
		return nil
	})
}

// Requeue conditionally moves a failed record back to pending so the next
// drain pass picks it up. RetryCount is kept. Returns ErrNotFound if the id
// does not exist and ErrStatusMismatch if the record is not failed (a pending
// or syncing record is already in flight).
func (s *Store) Requeue(id uint64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(ordersBucket)
		v := b.Get(itob(id))
		if v == nil {
			return ErrNotFound
		}
		var rec PendingOrder
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("unmarshal record: %w", err)
		}
		if rec.Status != StatusFailed {
			return ErrStatusMismatch
		}

		rec.Status = StatusPending
		rec.Error = ""

		buf, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if err := b.Put(itob(id), buf); err != nil {
			return fmt.Errorf("put record: %w", err)
		}
		return nil
	})
}

// Remove deletes one record after confirmed server acceptance. Removing a
// non-existent id is a no-op: under concurrent drainers it means the record
// was already synced.
func (s *Store) Remove(id uint64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(ordersBucket).Delete(itob(id))
	})
}

// Clear deletes all records. Maintenance escape hatch, not used in the normal
// flow. The bucket sequence is preserved so ids are still never reused.
func (s *Store) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(ordersBucket)
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return fmt.Errorf("delete record: %w", err)
			}
		}
		return nil
	})
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
