package worker

import (
	"context"
	"sync"

	"github.com/opensegment/magpie/internal/domain"
	"github.com/opensegment/magpie/internal/simulate"
)

// Sweeper evaluates scenario sweeps concurrently against one segment.
type Sweeper struct {
	maxWorkers int
}

// NewSweeper creates a sweeper with a bounded worker pool.
func NewSweeper(maxWorkers int) *Sweeper {
	if maxWorkers <= 0 {
		maxWorkers = 8
	}
	return &Sweeper{maxWorkers: maxWorkers}
}

// Run scores every scenario against the segment. Outcomes keep the
// request order regardless of which goroutine finished first.
func (s *Sweeper) Run(ctx context.Context, segment []domain.FeatureVector, scenarios []domain.Scenario) ([]domain.SweepOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	outcomes := make([]domain.SweepOutcome, len(scenarios))

	var wg sync.WaitGroup
	sem := make(chan struct{}, s.maxWorkers)

	for i, sc := range scenarios {
		wg.Add(1)
		sem <- struct{}{}

		go func(idx int, sc domain.Scenario) {
			defer wg.Done()
			defer func() { <-sem }()

			outcomes[idx] = domain.SweepOutcome{
				Scenario: sc,
				Result:   simulate.Run(segment, sc),
			}
		}(i, sc)
	}

	wg.Wait()

	return outcomes, nil
}
