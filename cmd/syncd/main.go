// syncd is the background sync fallback: a small daemon that drains the
// shared offline queue when connectivity returns, even if no agent (and no
// UI) is running. It opens the queue file per pass with a short lock timeout;
// if the agent holds the file, the agent is the designated drainer and the
// pass is skipped.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/imrishuroy/go-offline-ordersync/internal/api"
	"github.com/imrishuroy/go-offline-ordersync/internal/config"
	"github.com/imrishuroy/go-offline-ordersync/internal/logger"
	"github.com/imrishuroy/go-offline-ordersync/internal/netmon"
	"github.com/imrishuroy/go-offline-ordersync/internal/notify"
	"github.com/imrishuroy/go-offline-ordersync/internal/queue"
	"github.com/imrishuroy/go-offline-ordersync/internal/syncer"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg := config.MustLoad(configPath)

	log := logger.New(cfg.Logger.Level).With(slog.String("component", "syncd"))
	log.Info("starting background sync daemon")

	client := api.NewClient(cfg.RemoteAPI.BaseURL, cfg.RemoteAPI.Timeout)
	poster := notify.NewPoster(cfg.Sync.AgentURL, log)

	probeAddr := cfg.Sync.ProbeAddr
	if probeAddr == "" {
		probeAddr = probeAddrFromURL(cfg.RemoteAPI.BaseURL)
	}
	monitor := netmon.New(netmon.DialProber{Addr: probeAddr, Timeout: 3 * time.Second}, cfg.Sync.ProbeInterval, log)

	ctx, cancel := context.WithCancel(context.Background())
	go monitor.Run(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	transitions := monitor.Subscribe()

	// flush anything queued while everything was down
	if monitor.Online() {
		drainOnce(ctx, cfg, client, poster, log)
	}

	for {
		select {
		case <-stop:
			log.Info("background sync daemon stopped")
			cancel()
			return
		case online := <-transitions:
			if !online {
				continue
			}
			select {
			case <-stop:
				cancel()
				return
			case <-time.After(cfg.Sync.SettleDelay):
			}
			drainOnce(ctx, cfg, client, poster, log)
		}
	}
}

// drainOnce runs one drain pass over the shared queue file. A held file lock
// means another drainer (normally the agent) is active, so the pass is skipped.
func drainOnce(ctx context.Context, cfg *config.Config, client *api.Client, poster *notify.Poster, log *slog.Logger) {
	store, err := queue.Open(cfg.Queue.Path, cfg.Queue.LockTimeout)
	if err != nil {
		if errors.Is(err, queue.ErrBusy) {
			log.Debug("queue held by another drainer, skipping pass")
			return
		}
		log.Error("failed to open offline queue", slog.String("error", err.Error()))
		return
	}
	defer store.Close()

	report, err := syncer.Drain(ctx, store, client, log)
	if err != nil {
		log.Error("drain pass failed", slog.String("error", err.Error()))
		return
	}
	if report.Succeeded > 0 || report.Failed > 0 {
		log.Info("drain pass complete",
			slog.Int("succeeded", report.Succeeded),
			slog.Int("failed", report.Failed),
			slog.Int("pending", report.Pending))
		poster.SyncCompleted(report)
	}
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
