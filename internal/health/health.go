// Package health exposes the daemon's last published status over HTTP.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/trackIT-Systems/tsscheduled/internal/daemon"
	"github.com/trackIT-Systems/tsscheduled/pkg/pubsub"
)

type Health struct {
	publisher *pubsub.Publisher[daemon.Status]
	logger    *slog.Logger
	status    daemon.Status
	updated   bool
	lock      sync.RWMutex
}

func New(publisher *pubsub.Publisher[daemon.Status], logger *slog.Logger) *Health {
	return &Health{
		publisher: publisher,
		logger:    logger,
	}
}

func (h *Health) Run(ctx context.Context) error {
	h.logger.Debug("started")
	defer h.logger.Debug("stopped")

	ch := h.publisher.Subscribe()
	defer h.publisher.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case status := <-ch:
			h.lock.Lock()
			h.status = status
			h.updated = true
			h.lock.Unlock()
		}
	}
}

func (h *Health) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.lock.RLock()
	defer h.lock.RUnlock()
	if !h.updated {
		http.Error(w, "no update yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(h.status); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
