package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/RxMesh/PharmaCore/internal/domain/syncrun"
	"github.com/RxMesh/PharmaCore/internal/port/messagequeue"
)

// SyncEvent is the JSON payload published after each ingest, fan-out or
// provisioning run.
type SyncEvent struct {
	RunID      string        `json:"run_id"`
	Kind       string        `json:"kind"`
	TenantID   string        `json:"tenant_id,omitempty"`
	Stats      syncrun.Stats `json:"stats"`
	DurationMS int64         `json:"duration_ms"`
	At         time.Time     `json:"at"`
}

// publishEvent sends a sync event to the queue. Publishing is best-effort:
// a publish failure is logged and never fails the run that produced it.
func publishEvent(ctx context.Context, queue messagequeue.Queue, log *slog.Logger, subject string, ev SyncEvent) {
	if queue == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Warn("encode sync event failed", "subject", subject, "error", err)
		return
	}
	if err := queue.Publish(ctx, subject, data); err != nil {
		log.Warn("publish sync event failed", "subject", subject, "error", err)
	}
}
