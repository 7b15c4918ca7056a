package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-offline-ordersync/internal/api"
	"github.com/imrishuroy/go-offline-ordersync/internal/config"
	"github.com/imrishuroy/go-offline-ordersync/internal/dispatch"
	"github.com/imrishuroy/go-offline-ordersync/internal/handlers"
	"github.com/imrishuroy/go-offline-ordersync/internal/logger"
	"github.com/imrishuroy/go-offline-ordersync/internal/netmon"
	"github.com/imrishuroy/go-offline-ordersync/internal/notify"
	"github.com/imrishuroy/go-offline-ordersync/internal/queue"
	"github.com/imrishuroy/go-offline-ordersync/internal/syncer"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterRoutes(r, cfg)

	return r
}

// openStore retries briefly in case the background sync daemon is holding the
// queue file for a drain pass; it releases the lock as soon as the pass ends.
func openStore(path string, lockTimeout time.Duration, log *slog.Logger) (*queue.Store, error) {
	var lastErr error
	for attempt := 0; attempt < 5; attempt++ {
		store, err := queue.Open(path, lockTimeout)
		if err == nil {
			return store, nil
		}
		lastErr = err
		if !errors.Is(err, queue.ErrBusy) {
			return nil, err
		}
		log.Info("queue file locked, retrying", slog.Int("attempt", attempt+1))
	}
	return nil, lastErr
}

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg := config.MustLoad(configPath)

	log := logger.New(cfg.Logger.Level)
	log.Info("starting offline-ordersync agent", slog.String("log_level", cfg.Logger.Level))

	store, err := openStore(cfg.Queue.Path, cfg.Queue.LockTimeout, log)
	if err != nil {
		log.Error("failed to open offline queue", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()
	log.Info("offline queue opened", slog.String("path", cfg.Queue.Path))

	client := api.NewClient(cfg.RemoteAPI.BaseURL, cfg.RemoteAPI.Timeout)

	probeAddr := cfg.Sync.ProbeAddr
	if probeAddr == "" {
		probeAddr = probeAddrFromURL(cfg.RemoteAPI.BaseURL)
	}
	monitor := netmon.New(netmon.DialProber{Addr: probeAddr, Timeout: 3 * time.Second}, cfg.Sync.ProbeInterval, log)
	log.Info("connectivity monitor initialized",
		slog.String("probe_addr", probeAddr), slog.Bool("online", monitor.Online()))

	hub := notify.NewHub(log)
	engine := syncer.NewEngine(store, client, monitor, hub, cfg.Sync.SettleDelay, log)
	dispatcher := dispatch.New(store, client, monitor, engine, log)

	ctx, cancel := context.WithCancel(context.Background())
	go monitor.Run(ctx)
	go hub.Run(ctx)
	go engine.Run(ctx)

	// flush anything left over from the previous run once the link is up
	engine.RequestSync()

	r := setupRouter(handlers.HandlerConfig{
		Dispatcher: dispatcher,
		Store:      store,
		Engine:     engine,
		Hub:        hub,
		Log:        log,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
	}

	go func() {
		log.Info("agent API listening", slog.String("addr", cfg.HTTPServer.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down agent")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", slog.String("error", err.Error()))
	}

	log.Info("agent stopped")
}

// probeAddrFromURL derives a dialable host:port from the API base URL.
func probeAddrFromURL(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return baseURL
	}
	if u.Port() != "" {
		return u.Host
	}
	if u.Scheme == "https" {
		return u.Host + ":443"
	}
	return u.Host + ":80"
}
