// Package worker provides async processing of comparison requests from the
// EventBus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tariffsheriff/tariffd/internal/domain"
	"github.com/tariffsheriff/tariffd/internal/engine"
)

// Worker consumes comparison requests, fans each one out across its
// candidate origins, publishes the ranked result, and records it for audit.
type Worker struct {
	bus        domain.EventBus
	repo       domain.Repository
	comparator *engine.Comparator

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new async comparison worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, comparator *engine.Comparator) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:        bus,
		repo:       repo,
		comparator: comparator,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start subscribes to the comparison request topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicComparisonRequested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("comparison worker started",
		"topic", domain.TopicComparisonRequested,
	)
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processComparison(ctx, msg)
}

// processComparison runs one comparison request end to end.
func (w *Worker) processComparison(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var req domain.ComparisonRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse comparison request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	comparisonID := req.ComparisonID
	if comparisonID == "" {
		comparisonID = msg.ID
	}

	slog.Debug("processing comparison",
		"comparison_id", comparisonID,
		"importer", req.Request.ImporterISO3,
		"hs_code", req.Request.HSCode,
		"origin_count", len(req.Origins),
	)

	result := w.comparator.Compare(ctx, &req.Request, req.Origins)
	result.ComparisonID = comparisonID

	// Record each successful outcome for the audit trail.
	if w.repo != nil {
		for _, outcome := range result.Outcomes {
			if outcome.Result == nil {
				continue
			}
			calcReq := req.Request
			calcReq.OriginISO3 = outcome.OriginISO3
			calc := &domain.Calculation{
				ID:        uuid.New().String(),
				Name:      "comparison " + comparisonID,
				Request:   calcReq,
				Result:    *outcome.Result,
				CreatedAt: time.Now().UTC(),
			}
			if err := w.repo.SaveCalculation(ctx, calc); err != nil {
				slog.Error("failed to save comparison outcome",
					"comparison_id", comparisonID,
					"origin", outcome.OriginISO3,
					"error", err,
				)
			}
		}
	}

	payload, _ := json.Marshal(result)
	if err := w.bus.Publish(ctx, domain.TopicComparisonCompleted, payload); err != nil {
		slog.Error("failed to publish comparison result",
			"comparison_id", comparisonID,
			"error", err,
		)
	}

	slog.Info("comparison processed",
		"comparison_id", comparisonID,
		"origin_count", len(req.Origins),
		"best_origin", result.BestOrigin,
		"duration_ms", time.Since(start).Milliseconds(),
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

	slog.Info("comparison worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
