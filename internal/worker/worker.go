// Package worker triggers sync runs asynchronously: from rate ingestion
// events on the bus and, when configured, on a fixed schedule.
package worker

import (
	"context"
	"errors"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/openlease/ratesync/internal/domain"
	syncer "github.com/openlease/ratesync/internal/sync"
)

// Worker listens for rate ingestion events and runs the sync orchestrator.
type Worker struct {
	bus          domain.EventBus
	orchestrator *syncer.Orchestrator
	interval     time.Duration

	subscriptions []domain.Subscription
	wg            gosync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a worker. A zero interval disables scheduled runs;
// event-triggered runs stay active either way.
func NewWorker(bus domain.EventBus, orchestrator *syncer.Orchestrator, interval time.Duration) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:          bus,
		orchestrator: orchestrator,
		interval:     interval,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start subscribes to the ingestion topic and launches the scheduler.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicRatesIngested, w.handleRatesIngested)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	if w.interval > 0 {
		w.wg.Add(1)
		go w.runScheduler()
	}

	slog.Info("sync worker started",
		"topic", domain.TopicRatesIngested,
		"interval", w.interval,
	)
	return nil
}

// handleRatesIngested runs a sync after new rates land. A run already in
// flight covers the new snapshot's group on its next trigger, so the
// in-progress error is logged at debug and dropped.
func (w *Worker) handleRatesIngested(ctx context.Context, msg *domain.Message) error {
	slog.Debug("rates ingested, triggering sync",
		"message_id", msg.ID,
	)
	return w.runSync(ctx)
}

// runScheduler triggers periodic sync runs until the worker stops.
func (w *Worker) runScheduler() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			_ = w.runSync(w.ctx)
		}
	}
}

func (w *Worker) runSync(ctx context.Context) error {
	summary, err := w.orchestrator.Run(ctx)
	if errors.Is(err, syncer.ErrRunInProgress) {
		slog.Debug("sync already running, skipping trigger")
		return nil
	}
	if err != nil {
		slog.Error("triggered sync run failed",
			"error", err,
		)
		return err
	}

	slog.Debug("triggered sync run finished",
		"run_id", summary.RunID,
		"groups_changed", summary.GroupsChanged,
	)
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("sync worker stopped")
	return nil
}
