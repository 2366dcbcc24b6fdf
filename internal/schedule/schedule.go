// Package schedule runs periodic segmentation refreshes.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/opensegment/magpie/internal/domain"
)

// refreshTimeout bounds a single scheduled rebuild.
const refreshTimeout = 10 * time.Minute

// Refresher rebuilds features, personas and the snapshot.
type Refresher interface {
	Refresh(ctx context.Context) (*domain.SegmentationSnapshot, error)
}

// Scheduler triggers refreshes on a cron spec.
type Scheduler struct {
	cron *rcron.Cron
}

// NewScheduler creates an empty scheduler using standard 5-field specs.
func NewScheduler() *Scheduler {
	return &Scheduler{cron: rcron.New()}
}

// AddRefreshJob registers a refresh on the given cron spec. An empty
// spec is a no-op so deployments can disable scheduling entirely.
func (s *Scheduler) AddRefreshJob(spec string, segmenter Refresher) error {
	if spec == "" {
		return nil
	}

	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		start := time.Now()
		snapshot, err := segmenter.Refresh(ctx)
		if err != nil {
			slog.Error("scheduled refresh failed",
				"cron", spec,
				"error", err,
			)
			return
		}

		slog.Info("scheduled refresh complete",
			"cron", spec,
			"snapshot_id", snapshot.ID,
			"customers", snapshot.CustomerCount,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
	if err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}

	slog.Info("refresh scheduled", "cron", spec)
	return nil
}

// Start begins running registered jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// JobCount reports how many jobs are registered.
func (s *Scheduler) JobCount() int {
	return len(s.cron.Entries())
}
