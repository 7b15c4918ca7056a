package notify

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/imrishuroy/go-offline-ordersync/internal/syncer"
)

// Poster relays a drain report from the background sync daemon to the agent,
// which rebroadcasts it to connected UIs. Best effort: if no agent is
// running there is nobody to notify and the report is simply logged.
type Poster struct {
	agentURL string
	http     *http.Client
	log      *slog.Logger
}

func NewPoster(agentURL string, log *slog.Logger) *Poster {
	return &Poster{
		agentURL: strings.TrimRight(agentURL, "/"),
		http:     &http.Client{Timeout: 5 * time.Second},
		log:      log,
	}
}

// SyncCompleted implements syncer.Notifier.
func (p *Poster) SyncCompleted(report syncer.Report) {
	buf, err := json.Marshal(report)
	if err != nil {
		return
	}

	resp, err := p.http.Post(p.agentURL+"/internal/sync-result", "application/json", bytes.NewReader(buf))
	if err != nil {
		p.log.Info("no agent reachable to notify",
			slog.Int("succeeded", report.Succeeded),
			slog.Int("failed", report.Failed))
		return
	}
	resp.Body.Close()
}
