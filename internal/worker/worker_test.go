package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensegment/magpie/internal/bus"
	"github.com/opensegment/magpie/internal/domain"
	"github.com/opensegment/magpie/internal/simulate"
)

type fakeRefresher struct {
	calls atomic.Int32
	err   error
}

func (f *fakeRefresher) Refresh(ctx context.Context) (*domain.SegmentationSnapshot, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.SegmentationSnapshot{
		ID:            "snap-001",
		CustomerCount: 10,
		EventCount:    120,
	}, nil
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewWorker(eventBus, &fakeRefresher{})

		if err := w.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}
		if stats.Topics[0] != domain.TopicRefreshRequested {
			t.Errorf("expected topic '%s', got '%s'", domain.TopicRefreshRequested, stats.Topics[0])
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = w.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("RefreshProcessed", func(t *testing.T) {
		refresher := &fakeRefresher{}
		w := NewWorker(eventBus, refresher)
		w.Start()
		defer w.Stop()

		// Allow subscription to be active
		time.Sleep(50 * time.Millisecond)

		payload, _ := json.Marshal(RefreshRequest{RequestedBy: "api"})
		if err := eventBus.Publish(context.Background(), domain.TopicRefreshRequested, payload); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		// Wait for processing
		time.Sleep(100 * time.Millisecond)

		if got := refresher.calls.Load(); got != 1 {
			t.Errorf("expected 1 refresh call, got %d", got)
		}
	})

	t.Run("EmptyPayload", func(t *testing.T) {
		refresher := &fakeRefresher{}
		w := NewWorker(eventBus, refresher)
		w.Start()
		defer w.Stop()

		time.Sleep(50 * time.Millisecond)

		if err := eventBus.Publish(context.Background(), domain.TopicRefreshRequested, nil); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		time.Sleep(100 * time.Millisecond)

		if got := refresher.calls.Load(); got != 1 {
			t.Errorf("expected 1 refresh call for empty payload, got %d", got)
		}
	})

	t.Run("RefreshErrorDoesNotStopWorker", func(t *testing.T) {
		refresher := &fakeRefresher{err: errors.New("database unavailable")}
		w := NewWorker(eventBus, refresher)
		w.Start()
		defer w.Stop()

		time.Sleep(50 * time.Millisecond)

		eventBus.Publish(context.Background(), domain.TopicRefreshRequested, nil)
		eventBus.Publish(context.Background(), domain.TopicRefreshRequested, nil)

		time.Sleep(100 * time.Millisecond)

		if got := refresher.calls.Load(); got != 2 {
			t.Errorf("expected 2 refresh attempts, got %d", got)
		}
	})
}

func sweepSegment() []domain.FeatureVector {
	return []domain.FeatureVector{
		{CustomerID: "c-001", Spend90: 120, PurchaseCount90: 3, DiscountShare90: 0.4, PremiumShare90: 0.1, RecencyDays: 20},
		{CustomerID: "c-002", Spend90: 480, PurchaseCount90: 7, DiscountShare90: 0.1, PremiumShare90: 0.6, RecencyDays: 10},
		{CustomerID: "c-003", Spend90: 60, PurchaseCount90: 1, DiscountShare90: 0.8, PremiumShare90: 0.0, RecencyDays: 70},
	}
}

func TestSweeper(t *testing.T) {
	segment := sweepSegment()

	t.Run("PreservesRequestOrder", func(t *testing.T) {
		scenarios := make([]domain.Scenario, 12)
		for i := range scenarios {
			scenarios[i] = domain.Scenario{
				CurrentChannel:       domain.ChannelEmail,
				NewChannel:           domain.ChannelSMS,
				TouchesPerWeek:       float64(i) * 0.5,
				IncentiveLevel:       0.3,
				PersonalizationLevel: 0.5,
			}
		}

		sweeper := NewSweeper(4)
		outcomes, err := sweeper.Run(context.Background(), segment, scenarios)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		if len(outcomes) != len(scenarios) {
			t.Fatalf("expected %d outcomes, got %d", len(scenarios), len(outcomes))
		}
		for i, out := range outcomes {
			if out.Scenario.TouchesPerWeek != scenarios[i].TouchesPerWeek {
				t.Errorf("outcome %d: expected touches %.1f, got %.1f",
					i, scenarios[i].TouchesPerWeek, out.Scenario.TouchesPerWeek)
			}
		}
	})

	t.Run("MatchesDirectRun", func(t *testing.T) {
		sc := domain.Scenario{
			CurrentChannel:       domain.ChannelEmail,
			NewChannel:           domain.ChannelAppPush,
			TouchesPerWeek:       2.0,
			IncentiveLevel:       0.4,
			PersonalizationLevel: 0.6,
		}

		sweeper := NewSweeper(2)
		outcomes, err := sweeper.Run(context.Background(), segment, []domain.Scenario{sc})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		want := simulate.Run(segment, sc)
		got := outcomes[0].Result
		if got.EngagementIndex != want.EngagementIndex {
			t.Errorf("expected engagement %.6f, got %.6f", want.EngagementIndex, got.EngagementIndex)
		}
		if got.ConversionProb != want.ConversionProb {
			t.Errorf("expected conversion %.6f, got %.6f", want.ConversionProb, got.ConversionProb)
		}
	})

	t.Run("NoScenarios", func(t *testing.T) {
		sweeper := NewSweeper(4)
		outcomes, err := sweeper.Run(context.Background(), segment, nil)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if len(outcomes) != 0 {
			t.Errorf("expected no outcomes, got %d", len(outcomes))
		}
	})

	t.Run("CancelledContext", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		sweeper := NewSweeper(4)
		_, err := sweeper.Run(ctx, segment, []domain.Scenario{{NewChannel: domain.ChannelEmail}})
		if err == nil {
			t.Fatal("expected error for cancelled context")
		}
	})

	t.Run("SingleWorkerStillOrdered", func(t *testing.T) {
		scenarios := make([]domain.Scenario, 5)
		for i := range scenarios {
			scenarios[i] = domain.Scenario{
				CurrentChannel: domain.ChannelEmail,
				NewChannel:     fmt.Sprintf("channel-%d", i),
			}
		}

		sweeper := NewSweeper(1)
		outcomes, err := sweeper.Run(context.Background(), segment, scenarios)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		for i, out := range outcomes {
			if out.Scenario.NewChannel != scenarios[i].NewChannel {
				t.Errorf("outcome %d: expected channel %s, got %s",
					i, scenarios[i].NewChannel, out.Scenario.NewChannel)
			}
		}
	})
}
