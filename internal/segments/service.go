// Package segments orchestrates the segmentation pipeline: dataset
// loads, feature aggregation, persona classification, snapshotting,
// and segment queries for the simulator and journey briefs.
package segments

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opensegment/magpie/internal/audience"
	"github.com/opensegment/magpie/internal/domain"
	"github.com/opensegment/magpie/internal/features"
	"github.com/opensegment/magpie/internal/metrics"
	"github.com/opensegment/magpie/internal/persona"
	"github.com/opensegment/magpie/internal/simulate"
	"github.com/opensegment/magpie/internal/worker"
)

// Cache TTLs. A refresh flushes everything anyway; the TTLs only bound
// staleness when the cache outlives the process that filled it.
const (
	featureTTL    = 10 * time.Minute
	simulationTTL = 5 * time.Minute
)

// Service runs the segmentation pipeline against the repository.
type Service struct {
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	selector   *audience.Engine
	sweeper    *worker.Sweeper
	windowDays int
}

// NewService wires the pipeline. windowDays <= 0 falls back to the
// default trailing window.
func NewService(repo domain.Repository, cache domain.Cache, bus domain.EventBus, selector *audience.Engine, sweeper *worker.Sweeper, windowDays int) *Service {
	if windowDays <= 0 {
		windowDays = domain.DefaultWindowDays
	}
	return &Service{
		repo:       repo,
		cache:      cache,
		bus:        bus,
		selector:   selector,
		sweeper:    sweeper,
		windowDays: windowDays,
	}
}

// LoadDataset stores customers and events. Events are idempotent on
// event_id, so replayed batches do not duplicate history.
func (s *Service) LoadDataset(ctx context.Context, customers []domain.Customer, events []domain.Event) error {
	if len(customers) > 0 {
		if err := s.repo.UpsertCustomers(ctx, customers); err != nil {
			return fmt.Errorf("failed to store customers: %w", err)
		}
		metrics.DatasetRows.WithLabelValues("customers").Add(float64(len(customers)))
	}
	if len(events) > 0 {
		if err := s.repo.InsertEvents(ctx, events); err != nil {
			return fmt.Errorf("failed to store events: %w", err)
		}
		metrics.DatasetRows.WithLabelValues("events").Add(float64(len(events)))
	}

	payload, _ := json.Marshal(map[string]int{
		"customers": len(customers),
		"events":    len(events),
	})
	if err := s.bus.Publish(ctx, domain.TopicDatasetLoaded, payload); err != nil {
		slog.Error("failed to publish dataset loaded event", "error", err)
	}

	slog.Info("dataset loaded",
		"customers", len(customers),
		"events", len(events),
	)
	return nil
}

// RequestRefresh asks the async worker to rebuild the segmentation.
func (s *Service) RequestRefresh(ctx context.Context, requestedBy string) error {
	payload, err := json.Marshal(worker.RefreshRequest{RequestedBy: requestedBy})
	if err != nil {
		return err
	}
	return s.bus.Publish(ctx, domain.TopicRefreshRequested, payload)
}

// Refresh rebuilds feature vectors and persona assignments from the
// stored dataset, persists them wholesale, and records a snapshot.
// The cache is flushed so no stale vector or simulation survives.
func (s *Service) Refresh(ctx context.Context) (*domain.SegmentationSnapshot, error) {
	start := time.Now()

	snapshot, err := s.refresh(ctx, start)
	if err != nil {
		metrics.RefreshRuns.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.RefreshRuns.WithLabelValues("success").Inc()
	metrics.RefreshDuration.Observe(time.Since(start).Seconds())
	metrics.CustomersSegmented.Set(float64(snapshot.CustomerCount))
	for _, label := range domain.AllPersonas() {
		metrics.PersonaSize.WithLabelValues(label).Set(float64(snapshot.PersonaCounts[label]))
	}

	return snapshot, nil
}

func (s *Service) refresh(ctx context.Context, start time.Time) (*domain.SegmentationSnapshot, error) {
	customers, err := s.repo.ListCustomers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	events, err := s.repo.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	vectors, err := features.Aggregate(customers, events, s.windowDays)
	if err != nil {
		return nil, fmt.Errorf("feature aggregation failed: %w", err)
	}

	thresholds := persona.ComputeThresholds(vectors)
	assignments := persona.Classify(vectors, customers, thresholds)

	if err := s.repo.ReplaceFeatures(ctx, vectors); err != nil {
		return nil, fmt.Errorf("failed to store features: %w", err)
	}
	if err := s.repo.ReplacePersonas(ctx, assignments); err != nil {
		return nil, fmt.Errorf("failed to store personas: %w", err)
	}

	counts := make(map[string]int, len(domain.AllPersonas()))
	for _, a := range assignments {
		counts[a.Persona]++
	}

	var maxEventDT time.Time
	for i := range events {
		if events[i].EventDT.After(maxEventDT) {
			maxEventDT = events[i].EventDT
		}
	}

	snapshot := &domain.SegmentationSnapshot{
		ID:            uuid.New().String(),
		CreatedAt:     time.Now().UTC(),
		CustomerCount: len(customers),
		EventCount:    len(events),
		WindowDays:    s.windowDays,
		MaxEventDT:    maxEventDT,
		Thresholds:    thresholds,
		PersonaCounts: counts,
		ElapsedMs:     time.Since(start).Milliseconds(),
	}
	if err := s.repo.SaveSnapshot(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}

	if err := s.cache.Flush(ctx); err != nil {
		slog.Error("cache flush failed after refresh", "error", err)
	}

	payload, _ := json.Marshal(snapshot)
	if err := s.bus.Publish(ctx, domain.TopicSnapshotRefreshed, payload); err != nil {
		slog.Error("failed to publish snapshot refreshed event", "error", err)
	}

	slog.Info("segmentation rebuilt",
		"snapshot_id", snapshot.ID,
		"customers", snapshot.CustomerCount,
		"events", snapshot.EventCount,
		"window_days", snapshot.WindowDays,
		"elapsed_ms", snapshot.ElapsedMs,
	)

	return snapshot, nil
}

// Features returns one customer's vector, serving from cache when warm.
func (s *Service) Features(ctx context.Context, customerID string) (*domain.FeatureVector, error) {
	if cached, err := s.cache.GetFeatures(ctx, customerID); err == nil && cached != nil {
		return cached, nil
	}

	fv, err := s.repo.GetFeatures(ctx, customerID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetFeatures(ctx, customerID, fv, featureTTL); err != nil {
		slog.Debug("feature cache write failed", "customer_id", customerID, "error", err)
	}
	return fv, nil
}

// Rows assembles selection rows for a persona segment, optionally
// narrowed by a filter expression. An empty persona spans everyone.
func (s *Service) Rows(ctx context.Context, personaLabel, filter string) ([]audience.Row, error) {
	var assignments []domain.PersonaAssignment
	var err error
	if personaLabel == "" {
		assignments, err = s.repo.ListPersonas(ctx)
	} else {
		assignments, err = s.repo.ListPersonasByLabel(ctx, personaLabel)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list personas: %w", err)
	}

	customers, err := s.repo.ListCustomers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	vectors, err := s.repo.ListFeatures(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list features: %w", err)
	}

	custByID := make(map[string]*domain.Customer, len(customers))
	for i := range customers {
		custByID[customers[i].ID] = &customers[i]
	}
	featByID := make(map[string]*domain.FeatureVector, len(vectors))
	for i := range vectors {
		featByID[vectors[i].CustomerID] = &vectors[i]
	}

	rows := make([]audience.Row, 0, len(assignments))
	for _, a := range assignments {
		rows = append(rows, audience.Row{
			Customer: custByID[a.CustomerID],
			Features: featByID[a.CustomerID],
			Persona:  a.Persona,
		})
	}

	if filter == "" {
		return rows, nil
	}
	return s.selector.Select(ctx, filter, rows)
}

// Segment returns the feature vectors for a persona plus filter.
func (s *Service) Segment(ctx context.Context, personaLabel, filter string) ([]domain.FeatureVector, error) {
	rows, err := s.Rows(ctx, personaLabel, filter)
	if err != nil {
		return nil, err
	}

	segment := make([]domain.FeatureVector, 0, len(rows))
	for _, row := range rows {
		if row.Features != nil {
			segment = append(segment, *row.Features)
		}
	}
	return segment, nil
}

// Stats summarizes each non-empty persona segment in cascade order.
func (s *Service) Stats(ctx context.Context) ([]domain.SegmentStats, error) {
	assignments, err := s.repo.ListPersonas(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list personas: %w", err)
	}
	vectors, err := s.repo.ListFeatures(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list features: %w", err)
	}

	featByID := make(map[string]*domain.FeatureVector, len(vectors))
	for i := range vectors {
		featByID[vectors[i].CustomerID] = &vectors[i]
	}

	grouped := make(map[string][]*domain.FeatureVector)
	for _, a := range assignments {
		if fv := featByID[a.CustomerID]; fv != nil {
			grouped[a.Persona] = append(grouped[a.Persona], fv)
		}
	}

	stats := make([]domain.SegmentStats, 0, len(grouped))
	for _, label := range domain.AllPersonas() {
		members := grouped[label]
		if len(members) == 0 {
			continue
		}
		stats = append(stats, summarize(label, members))
	}
	return stats, nil
}

// StatsFor summarizes one persona segment. An assigned persona with no
// members yields zero-valued stats rather than an error.
func (s *Service) StatsFor(ctx context.Context, personaLabel string) (*domain.SegmentStats, error) {
	assignments, err := s.repo.ListPersonasByLabel(ctx, personaLabel)
	if err != nil {
		return nil, fmt.Errorf("failed to list personas: %w", err)
	}
	if len(assignments) == 0 {
		return &domain.SegmentStats{Persona: personaLabel}, nil
	}

	vectors, err := s.repo.ListFeatures(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list features: %w", err)
	}
	featByID := make(map[string]*domain.FeatureVector, len(vectors))
	for i := range vectors {
		featByID[vectors[i].CustomerID] = &vectors[i]
	}

	members := make([]*domain.FeatureVector, 0, len(assignments))
	for _, a := range assignments {
		if fv := featByID[a.CustomerID]; fv != nil {
			members = append(members, fv)
		}
	}
	if len(members) == 0 {
		return &domain.SegmentStats{Persona: personaLabel}, nil
	}

	st := summarize(personaLabel, members)
	return &st, nil
}

func summarize(label string, members []*domain.FeatureVector) domain.SegmentStats {
	n := float64(len(members))
	var spend, purchases, discount, premium, recency float64
	for _, fv := range members {
		spend += fv.Spend90
		purchases += float64(fv.PurchaseCount90)
		discount += fv.DiscountShare90
		premium += fv.PremiumShare90
		recency += float64(fv.RecencyDays)
	}
	return domain.SegmentStats{
		Persona:          label,
		Customers:        len(members),
		AvgSpend90:       spend / n,
		AvgPurchases90:   purchases / n,
		AvgDiscountShare: discount / n,
		AvgPremiumShare:  premium / n,
		AvgRecencyDays:   recency / n,
	}
}

// Simulate scores one scenario against its segment, serving repeat
// runs from the fingerprint cache.
func (s *Service) Simulate(ctx context.Context, sc domain.Scenario) (*domain.SimulationResult, error) {
	fingerprint := simulate.Fingerprint(sc)
	if cached, err := s.cache.GetSimulation(ctx, fingerprint); err == nil && cached != nil {
		return cached, nil
	}

	segment, err := s.Segment(ctx, sc.Persona, sc.Filter)
	if err != nil {
		return nil, err
	}

	result := simulate.Run(segment, sc)

	personaLabel := sc.Persona
	if personaLabel == "" {
		personaLabel = "all"
	}
	metrics.SimulationsTotal.WithLabelValues(personaLabel).Inc()

	if err := s.cache.SetSimulation(ctx, fingerprint, &result, simulationTTL); err != nil {
		slog.Debug("simulation cache write failed", "error", err)
	}

	payload, _ := json.Marshal(domain.SweepOutcome{Scenario: sc, Result: result})
	if err := s.bus.Publish(ctx, domain.TopicSimulationComplete, payload); err != nil {
		slog.Debug("failed to publish simulation event", "error", err)
	}

	return &result, nil
}

// Sweep scores several scenario variants against one segment. The
// segment is selected once and shared across all variants.
func (s *Service) Sweep(ctx context.Context, req domain.SweepRequest) ([]domain.SweepOutcome, error) {
	segment, err := s.Segment(ctx, req.Persona, req.Filter)
	if err != nil {
		return nil, err
	}

	personaLabel := req.Persona
	if personaLabel == "" {
		personaLabel = "all"
	}
	metrics.SimulationsTotal.WithLabelValues(personaLabel).Add(float64(len(req.Scenarios)))

	return s.sweeper.Run(ctx, segment, req.Scenarios)
}

// ValidateFilter reports whether a filter expression compiles.
func (s *Service) ValidateFilter(expr string) error {
	return s.selector.Validate(expr)
}
