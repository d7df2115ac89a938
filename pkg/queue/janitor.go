package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/brant/roofpipeline/pkg/config"
	"github.com/brant/roofpipeline/pkg/documents"
)

// Janitor periodically scans for PROCESSING documents whose lease expired
// (a crashed or stalled worker) and either returns them to PENDING for
// redelivery or fails them once retries are exhausted.
type Janitor struct {
	store  *documents.Store
	broker *Broker
	cfg    *config.QueueConfig
	log    *slog.Logger
}

// NewJanitor builds a Janitor.
func NewJanitor(store *documents.Store, broker *Broker, cfg *config.QueueConfig, log *slog.Logger) *Janitor {
	return &Janitor{store: store, broker: broker, cfg: cfg, log: log}
}

// Run loops until ctx is cancelled, scanning every JanitorInterval.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.cfg.JanitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	now := time.Now().UTC()
	stale, err := j.store.ListStaleProcessing(ctx, now)
	if err != nil {
		j.log.Error("janitor sweep failed", "error", err)
		return
	}

	for _, doc := range stale {
		if doc.AttemptCount >= j.cfg.RetryMaxAttempts {
			if ok, err := j.store.FailExhausted(ctx, doc.ID, now); err != nil {
				j.log.Error("janitor fail-exhausted failed", "document_id", doc.ID, "error", err)
			} else if ok {
				j.log.Warn("document failed: lease expired, retries exhausted", "document_id", doc.ID)
			}
			continue
		}
		ok, err := j.store.ReturnToPending(ctx, doc.ID, now)
		if err != nil {
			j.log.Error("janitor return-to-pending failed", "document_id", doc.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		j.log.Info("document returned to pending after lease expiry", "document_id", doc.ID)
		if err := j.broker.Enqueue(ctx, doc.ID, doc.AttemptCount+1); err != nil {
			j.log.Error("janitor re-enqueue failed", "document_id", doc.ID, "error", err)
		}
	}
}
