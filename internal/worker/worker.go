// Package worker provides async processing for the distributed profile.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensegment/magpie/internal/domain"
)

// Refresher rebuilds features, personas and the snapshot from the
// stored dataset.
type Refresher interface {
	Refresh(ctx context.Context) (*domain.SegmentationSnapshot, error)
}

// Worker processes refresh requests asynchronously from the EventBus.
type Worker struct {
	bus       domain.EventBus
	segmenter Refresher

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, segmenter Refresher) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		segmenter: segmenter,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to the refresh request topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicRefreshRequested, w.handleRefresh)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("refresh worker started",
		"topic", domain.TopicRefreshRequested,
	)
	return nil
}

// RefreshRequest is the message payload for an async refresh.
type RefreshRequest struct {
	RequestedBy string `json:"requested_by,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// handleRefresh rebuilds the segmentation when a request arrives.
func (w *Worker) handleRefresh(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var req RefreshRequest
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			slog.Error("failed to parse refresh request",
				"message_id", msg.ID,
				"error", err,
			)
			return err
		}
	}

	slog.Debug("refresh requested",
		"message_id", msg.ID,
		"requested_by", req.RequestedBy,
	)

	snapshot, err := w.segmenter.Refresh(ctx)
	if err != nil {
		slog.Error("segmentation refresh failed",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	slog.Info("segmentation refreshed",
		"snapshot_id", snapshot.ID,
		"customers", snapshot.CustomerCount,
		"events", snapshot.EventCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
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

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscription_count"`
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
