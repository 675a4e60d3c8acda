// Package worker runs enrichment requests picked up from the event bus.
package worker

import (
	"context"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/openbioscience/finch/internal/domain"
)

// Enricher runs one over-representation analysis. Satisfied by
// enrich.Engine.
type Enricher interface {
	Enrich(ctx context.Context, req *domain.EnrichmentRequest) (*domain.Report, error)
}

// Worker processes async enrichment requests from the EventBus. It owns the
// run lifecycle: the request's pending run is executed, persisted and
// announced on the completion subject.
type Worker struct {
	bus    domain.EventBus
	repo   domain.Repository
	engine Enricher

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, engine Enricher) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		engine: engine,
		ctx:    ctx,
		cancel: cancel,
	}
}

// RunRequest is the payload of an async enrichment request. RunID is the
// identifier the submitter already handed to its caller; the completed run
// is stored under it.
type RunRequest struct {
	RunID   string                   `json:"runId"`
	Request domain.EnrichmentRequest `json:"request"`
}

// Start subscribes the worker to the enrichment request subject.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.SubjectEnrichRequested, w.handleRequest)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("enrichment worker started",
		"subject", domain.SubjectEnrichRequested,
	)
	return nil
}

// handleRequest executes one async enrichment request end to end.
func (w *Worker) handleRequest(ctx context.Context, event *domain.Event) error {
	start := time.Now()

	var req RunRequest
	if err := json.Unmarshal(event.Payload, &req); err != nil {
		slog.Error("failed to parse enrichment request",
			"event_id", event.ID,
			"error", err,
		)
		return err
	}
	if req.RunID == "" {
		req.RunID = uuid.New().String()
	}

	report, err := w.engine.Enrich(ctx, &req.Request)
	if err != nil {
		slog.Error("enrichment run failed",
			"run_id", req.RunID,
			"organism", req.Request.Organism,
			"error", err,
		)
		w.markFailed(ctx, req.RunID)
		return err
	}

	run := report.ToRun()
	run.ID = req.RunID

	if w.repo != nil {
		if err := w.repo.SaveRun(ctx, run); err != nil {
			slog.Error("failed to save enrichment run",
				"run_id", run.ID,
				"error", err,
			)
		}
	}

	w.publishCompleted(ctx, run)

	slog.Info("enrichment run completed",
		"run_id", run.ID,
		"organism", run.Organism,
		"status", run.Status,
		"rows", len(run.Rows),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// markFailed transitions the submitter's pending run so its status is
// visible to pollers, and announces the terminal state.
func (w *Worker) markFailed(ctx context.Context, runID string) {
	if w.repo != nil {
		if err := w.repo.UpdateRunStatus(ctx, runID, domain.RunStatusFailed); err != nil {
			slog.Error("failed to mark run failed",
				"run_id", runID,
				"error", err,
			)
		}
	}
	w.publishCompleted(ctx, &domain.Run{ID: runID, Status: domain.RunStatusFailed})
}

func (w *Worker) publishCompleted(ctx context.Context, run *domain.Run) {
	payload, err := json.Marshal(run)
	if err != nil {
		slog.Error("failed to encode run completion",
			"run_id", run.ID,
			"error", err,
		)
		return
	}
	if err := w.bus.Publish(ctx, domain.SubjectEnrichCompleted, &domain.Event{Payload: payload}); err != nil {
		slog.Error("failed to publish run completion",
			"run_id", run.ID,
			"error", err,
		)
	}
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"subject", sub.Subject(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("enrichment worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Subjects          []string `json:"subjects"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	subjects := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		subjects[i] = sub.Subject()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Subjects:          subjects,
	}
}
