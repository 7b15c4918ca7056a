package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-offline-ordersync/internal/api"
	"github.com/imrishuroy/go-offline-ordersync/internal/dispatch"
	"github.com/imrishuroy/go-offline-ordersync/internal/notify"
	"github.com/imrishuroy/go-offline-ordersync/internal/queue"
	"github.com/imrishuroy/go-offline-ordersync/internal/syncer"
	"github.com/imrishuroy/go-offline-ordersync/internal/validation"
)

// OrderDispatcher routes a new order (direct submit or enqueue).
type OrderDispatcher interface {
	Submit(ctx context.Context, orderData json.RawMessage) (dispatch.Result, error)
}

// QueueStore is the slice of the store the HTTP surface exposes to operators.
type QueueStore interface {
	GetPending() ([]queue.PendingOrder, error)
	GetFailed() ([]queue.PendingOrder, error)
	GetPendingCount() (int, error)
	Requeue(id uint64) error
	Clear() error
}

// SyncTrigger runs a manual drain pass.
type SyncTrigger interface {
	SyncNow(ctx context.Context) (syncer.Report, error)
}

// Broadcaster pushes events to connected UI instances.
type Broadcaster interface {
	Broadcast(ev notify.Event)
	SyncCompleted(report syncer.Report)
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// HandlerConfig groups dependencies for the agent's HTTP surface.
type HandlerConfig struct {
	Dispatcher OrderDispatcher
	Store      QueueStore
	Engine     SyncTrigger
	Hub        Broadcaster
	Log        *slog.Logger
}

// RegisterRoutes registers the agent API: order submission, queue inspection
// and maintenance, manual sync, and the UI notification endpoints.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()

	r.POST("/orders", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.CreateOrderRequest
		raw, err := validation.BindAndValidate(c, &req, v)
		if err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		result, err := cfg.Dispatcher.Submit(ctx, raw)
		if err != nil {
			var appErr *api.AppError
			if errors.As(err, &appErr) {
				// rejected by the server; the operator must fix the order,
				// it will never be retried
				c.JSON(appErr.StatusCode, gin.H{
					"error":  "order_rejected",
					"detail": appErr.Message,
				})
				return
			}
			// the queue itself failed: offline support is degraded and there
			// is no further fallback beneath it
			cfg.Log.Error("order could not be submitted or stored", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":  "offline_queue_unavailable",
				"detail": err.Error(),
			})
			return
		}

		if result.Queued {
			cfg.Hub.Broadcast(notify.Event{Type: notify.EventQueueChanged, Pending: result.Pending})
			c.JSON(http.StatusAccepted, gin.H{
				"status":   "queued",
				"queue_id": result.QueueID,
				"pending":  result.Pending,
				"message":  "saved locally, will send automatically",
			})
			return
		}

		c.Data(http.StatusCreated, "application/json", result.Response)
	})

	r.GET("/queue/count", func(c *gin.Context) {
		n, err := cfg.Store.GetPendingCount()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "queue_read_failed", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"pending": n})
	})

	r.GET("/queue/pending", func(c *gin.Context) {
		listOrders(c, cfg.Store.GetPending)
	})

	r.GET("/queue/failed", func(c *gin.Context) {
		listOrders(c, cfg.Store.GetFailed)
	})

	r.POST("/queue/sync", func(c *gin.Context) {
		report, err := cfg.Engine.SyncNow(c.Request.Context())
		if err != nil {
			if errors.Is(err, syncer.ErrSyncRunning) {
				c.JSON(http.StatusConflict, gin.H{"error": "sync_in_progress"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "sync_failed", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	})

	r.POST("/queue/:id/requeue", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
			return
		}
		if err := cfg.Store.Requeue(id); err != nil {
			if errors.Is(err, queue.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
				return
			}
			if errors.Is(err, queue.ErrStatusMismatch) {
				c.JSON(http.StatusConflict, gin.H{"error": "order_not_failed"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "requeue_failed", "detail": err.Error()})
			return
		}
		n, _ := cfg.Store.GetPendingCount()
		cfg.Hub.Broadcast(notify.Event{Type: notify.EventQueueChanged, Pending: n})
		c.JSON(http.StatusOK, gin.H{"status": "requeued", "pending": n})
	})

	// maintenance escape hatch, not part of the normal flow
	r.DELETE("/queue", func(c *gin.Context) {
		if err := cfg.Store.Clear(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "clear_failed", "detail": err.Error()})
			return
		}
		cfg.Hub.Broadcast(notify.Event{Type: notify.EventQueueChanged, Pending: 0})
		c.Status(http.StatusNoContent)
	})

	r.GET("/ws", func(c *gin.Context) {
		cfg.Hub.ServeWS(c.Writer, c.Request)
	})

	// the background sync daemon posts its drain reports here so open UIs
	// hear about passes that ran outside the agent
	r.POST("/internal/sync-result", func(c *gin.Context) {
		var report syncer.Report
		if err := c.ShouldBindJSON(&report); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_report"})
			return
		}
		cfg.Hub.SyncCompleted(report)
		c.Status(http.StatusNoContent)
	})
}

func listOrders(c *gin.Context, get func() ([]queue.PendingOrder, error)) {
	orders, err := get()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "queue_read_failed", "detail": err.Error()})
		return
	}
	if orders == nil {
		orders = []queue.PendingOrder{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}
