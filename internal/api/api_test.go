package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/opensegment/magpie/internal/audience"
	"github.com/opensegment/magpie/internal/bus"
	"github.com/opensegment/magpie/internal/cache"
	"github.com/opensegment/magpie/internal/domain"
	"github.com/opensegment/magpie/internal/repository"
	"github.com/opensegment/magpie/internal/segments"
	"github.com/opensegment/magpie/internal/worker"
)

var anchor = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// newTestServer wires a server against a temp SQLite file, the memory
// cache and the in-process bus, the same shape the standalone profile runs.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "magpie-api-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	c := cache.NewLRUCache(100)
	b := bus.NewChannelBus(100)
	t.Cleanup(func() { b.Close() })

	selector, err := audience.NewEngine(4)
	if err != nil {
		t.Fatalf("failed to create audience engine: %v", err)
	}

	svc := segments.NewService(repo, c, b, selector, worker.NewSweeper(4), 90)

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}
	return NewServer(cfg, svc, repo, c, "test-v1")
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

// seedDataset loads a small population with recognizable behaviors:
// a whale, a discount-chaser, a lapsed customer and a casual buyer.
func seedDataset(t *testing.T, srv *Server) {
	t.Helper()

	customers := []domain.Customer{
		{ID: "c-whale", JoinDate: anchor.AddDate(-2, 0, 0), LoyaltyTier: "gold", PrefChannel: "email", LabelAffinity: "none"},
		{ID: "c-deal", JoinDate: anchor.AddDate(-1, 0, 0), LoyaltyTier: "silver", PrefChannel: "sms", LabelAffinity: "none"},
		{ID: "c-lapsed", JoinDate: anchor.AddDate(-3, 0, 0), LoyaltyTier: "bronze", PrefChannel: "email", LabelAffinity: "none"},
		{ID: "c-casual", JoinDate: anchor.AddDate(0, -6, 0), LoyaltyTier: "bronze", PrefChannel: "app_push", LabelAffinity: "none"},
	}

	var events []domain.Event
	// Whale: frequent high-ticket purchases at list price.
	for i := 0; i < 6; i++ {
		events = append(events, domain.Event{
			CustomerID: "c-whale",
			EventDT:    anchor.AddDate(0, 0, -5*(i+1)),
			EventType:  domain.EventTypePurchase,
			NetPrice:   180, ListPrice: 180,
			Category: fmt.Sprintf("cat-%d", i%2), Brand: "acme",
			OrderID: fmt.Sprintf("o-whale-%d", i),
		})
	}
	// Deal hunter: everything bought on discount.
	for i := 0; i < 4; i++ {
		events = append(events, domain.Event{
			CustomerID: "c-deal",
			EventDT:    anchor.AddDate(0, 0, -7*(i+1)),
			EventType:  domain.EventTypePurchase,
			NetPrice:   20, ListPrice: 40, DiscountPct: 50,
			Category: "snacks", Brand: fmt.Sprintf("brand-%d", i),
			OrderID: fmt.Sprintf("o-deal-%d", i),
		})
	}
	// Lapsed: one purchase far outside the window.
	events = append(events, domain.Event{
		CustomerID: "c-lapsed",
		EventDT:    anchor.AddDate(0, 0, -200),
		EventType:  domain.EventTypePurchase,
		NetPrice:   30, ListPrice: 30,
		Category: "misc", Brand: "other",
		OrderID: "o-lapsed-0",
	})
	// Casual: a single recent low-value purchase.
	events = append(events, domain.Event{
		CustomerID: "c-casual",
		EventDT:    anchor.AddDate(0, 0, -10),
		EventType:  domain.EventTypePurchase,
		NetPrice:   15, ListPrice: 15,
		Category: "misc", Brand: "other",
		OrderID: "o-casual-0",
	})

	w := doJSON(t, srv, http.MethodPost, "/datasets", DatasetRequest{Customers: customers, Events: events})
	if w.Code != http.StatusCreated {
		t.Fatalf("dataset load returned %d: %s", w.Code, w.Body.String())
	}
}

func refresh(t *testing.T, srv *Server) {
	t.Helper()
	w := doJSON(t, srv, http.MethodPost, "/segmentation/refresh", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh returned %d: %s", w.Code, w.Body.String())
	}
}

func TestDatasetEndpoint(t *testing.T) {
	srv := newTestServer(t)

	t.Run("RejectsEmptyBody", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodPost, "/datasets", DatasetRequest{})
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})

	t.Run("RejectsCustomerWithoutID", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodPost, "/datasets", DatasetRequest{
			Customers: []domain.Customer{{JoinDate: anchor}},
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), "customer_id") {
			t.Errorf("error should name the missing field: %s", w.Body.String())
		}
	})

	t.Run("RejectsEventWithoutTimestamp", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodPost, "/datasets", DatasetRequest{
			Events: []domain.Event{{CustomerID: "c-001", EventType: "purchase"}},
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})

	t.Run("AcceptsValidBatch", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodPost, "/datasets", DatasetRequest{
			Customers: []domain.Customer{
				{ID: "c-001", JoinDate: anchor.AddDate(-1, 0, 0)},
			},
			Events: []domain.Event{
				{CustomerID: "c-001", EventDT: anchor, EventType: "purchase", NetPrice: 10, ListPrice: 10, OrderID: "o-1"},
			},
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}

		var resp DatasetResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.CustomersAccepted != 1 || resp.EventsAccepted != 1 {
			t.Errorf("unexpected counts: %+v", resp)
		}
	})
}

func TestRefreshAndSnapshots(t *testing.T) {
	srv := newTestServer(t)

	t.Run("LatestSnapshotBeforeAnyRun", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodGet, "/snapshots/latest", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", w.Code)
		}
	})

	seedDataset(t, srv)

	t.Run("SynchronousRefresh", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodPost, "/segmentation/refresh", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}

		var snap domain.SegmentationSnapshot
		if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
			t.Fatalf("failed to decode snapshot: %v", err)
		}
		if snap.CustomerCount != 4 {
			t.Errorf("expected 4 customers, got %d", snap.CustomerCount)
		}
		total := 0
		for _, n := range snap.PersonaCounts {
			total += n
		}
		if total != 4 {
			t.Errorf("persona counts should cover every customer, got %d", total)
		}
	})

	t.Run("AsyncRefreshAccepted", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodPost, "/segmentation/refresh?async=true", nil)
		if w.Code != http.StatusAccepted {
			t.Errorf("expected 202, got %d", w.Code)
		}
	})

	t.Run("LatestSnapshotAfterRun", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodGet, "/snapshots/latest", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
	})

	t.Run("ListSnapshotsRejectsBadLimit", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodGet, "/snapshots?limit=zero", nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})
}

func TestFeatureAndPersonaEndpoints(t *testing.T) {
	srv := newTestServer(t)
	seedDataset(t, srv)
	refresh(t, srv)

	t.Run("GetFeaturesForCustomer", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodGet, "/features/c-whale", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}

		var fv domain.FeatureVector
		if err := json.Unmarshal(w.Body.Bytes(), &fv); err != nil {
			t.Fatalf("failed to decode features: %v", err)
		}
		if fv.PurchaseCount90 != 6 {
			t.Errorf("expected 6 windowed purchases, got %d", fv.PurchaseCount90)
		}
	})

	t.Run("GetFeaturesUnknownCustomer", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodGet, "/features/nope", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", w.Code)
		}
	})

	t.Run("EveryCustomerHasPersona", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodGet, "/personas", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}

		var resp struct {
			Personas []domain.PersonaAssignment `json:"personas"`
			Count    int                        `json:"count"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode personas: %v", err)
		}
		if resp.Count != 4 {
			t.Errorf("expected 4 assignments, got %d", resp.Count)
		}
		for _, a := range resp.Personas {
			if _, ok := domain.PersonaFromSlug(a.Persona); !ok {
				t.Errorf("customer %s got unknown persona %q", a.CustomerID, a.Persona)
			}
		}
	})

	t.Run("LapsedCustomerClassified", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodGet, "/personas/c-lapsed", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}

		var a domain.PersonaAssignment
		if err := json.Unmarshal(w.Body.Bytes(), &a); err != nil {
			t.Fatalf("failed to decode assignment: %v", err)
		}
		if a.Persona != domain.PersonaLapsedWinback {
			t.Errorf("expected %q, got %q", domain.PersonaLapsedWinback, a.Persona)
		}
	})

	t.Run("FilterPersonasByUnknownLabel", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodGet, "/personas?persona=space-tourist", nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})
}

func TestSegmentEndpoints(t *testing.T) {
	srv := newTestServer(t)
	seedDataset(t, srv)
	refresh(t, srv)

	t.Run("ListSegments", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodGet, "/segments", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}

		var resp struct {
			Segments []domain.SegmentStats `json:"segments"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode segments: %v", err)
		}
		if len(resp.Segments) == 0 {
			t.Error("expected at least one non-empty segment")
		}
	})

	t.Run("GetSegmentBySlug", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodGet, "/segments/lapsed-winback", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}

		var stats domain.SegmentStats
		if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
			t.Fatalf("failed to decode stats: %v", err)
		}
		if stats.Customers != 1 {
			t.Errorf("expected 1 lapsed customer, got %d", stats.Customers)
		}
	})

	t.Run("GetSegmentUnknownSlug", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodGet, "/segments/space-tourist", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", w.Code)
		}
	})

	t.Run("PreviewWithFilter", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodPost, "/segments/preview", PreviewRequest{
			Filter: `features.spend_90 > 500.0`,
		})
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}

		var resp PreviewResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode preview: %v", err)
		}
		if resp.MatchedCount != 1 || len(resp.CustomerIDs) != 1 || resp.CustomerIDs[0] != "c-whale" {
			t.Errorf("expected only c-whale to match, got %+v", resp)
		}
	})

	t.Run("PreviewRejectsBadFilter", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodPost, "/segments/preview", PreviewRequest{
			Filter: `features.spend_90 +`,
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})

	t.Run("PreviewRequiresSelection", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodPost, "/segments/preview", PreviewRequest{})
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})
}

func TestSimulateEndpoints(t *testing.T) {
	srv := newTestServer(t)
	seedDataset(t, srv)
	refresh(t, srv)

	t.Run("SimulateScenario", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodPost, "/simulate", domain.Scenario{
			Persona:              "deal-hunter",
			CurrentChannel:       "email",
			NewChannel:           "sms",
			TouchesPerWeek:       2,
			IncentiveLevel:       0.5,
			PersonalizationLevel: 0.3,
		})
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}

		var result domain.SimulationResult
		if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
			t.Fatalf("failed to decode result: %v", err)
		}
		for name, v := range map[string]float64{
			"engagement_index": result.EngagementIndex,
			"conversion_prob":  result.ConversionProb,
			"fatigue_risk":     result.FatigueRisk,
			"unsub_risk":       result.UnsubRisk,
		} {
			if v < 0 || v > 1 {
				t.Errorf("%s out of bounds: %f", name, v)
			}
		}
		if len(result.Notes) == 0 {
			t.Error("expected at least one note")
		}
	})

	t.Run("SimulateRejectsOutOfRangeIncentive", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodPost, "/simulate", domain.Scenario{
			CurrentChannel: "email",
			NewChannel:     "email",
			IncentiveLevel: 1.5,
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})

	t.Run("SimulateRejectsUnknownPersona", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodPost, "/simulate", domain.Scenario{
			Persona:        "space-tourist",
			CurrentChannel: "email",
			NewChannel:     "email",
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})

	t.Run("SweepKeepsScenarioOrder", func(t *testing.T) {
		req := domain.SweepRequest{
			Persona: "deal-hunter",
			Scenarios: []domain.Scenario{
				{CurrentChannel: "email", NewChannel: "email", TouchesPerWeek: 1},
				{CurrentChannel: "email", NewChannel: "sms", TouchesPerWeek: 2},
				{CurrentChannel: "email", NewChannel: "app_push", TouchesPerWeek: 4},
			},
		}
		w := doJSON(t, srv, http.MethodPost, "/simulate/sweep", req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}

		var resp struct {
			Outcomes []domain.SweepOutcome `json:"outcomes"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode outcomes: %v", err)
		}
		if len(resp.Outcomes) != 3 {
			t.Fatalf("expected 3 outcomes, got %d", len(resp.Outcomes))
		}
		for i, out := range resp.Outcomes {
			if out.Scenario.NewChannel != req.Scenarios[i].NewChannel {
				t.Errorf("outcome %d out of order: got channel %s", i, out.Scenario.NewChannel)
			}
		}
	})

	t.Run("SweepRequiresScenarios", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodPost, "/simulate/sweep", domain.SweepRequest{})
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})
}

func TestJourneyEndpoints(t *testing.T) {
	srv := newTestServer(t)
	seedDataset(t, srv)
	refresh(t, srv)

	t.Run("ListJourneys", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodGet, "/journeys", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}

		var resp struct {
			Count int `json:"count"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode journeys: %v", err)
		}
		if resp.Count != len(domain.AllPersonas()) {
			t.Errorf("expected one template per persona, got %d", resp.Count)
		}
	})

	t.Run("GetJourneyBySlug", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodGet, "/journeys/deal-hunter", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
	})

	t.Run("BriefIsMarkdown", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodGet, "/briefs/lapsed-winback", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
			t.Errorf("expected markdown content type, got %s", ct)
		}
		if !strings.Contains(w.Body.String(), "# Journey Strategy Brief") {
			t.Error("brief missing title heading")
		}
	})

	t.Run("BriefUnknownPersona", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodGet, "/briefs/space-tourist", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", w.Code)
		}
	})
}

func TestOperationalEndpoints(t *testing.T) {
	srv := newTestServer(t)

	t.Run("Health", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodGet, "/health", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}

		var resp struct {
			Status  string            `json:"status"`
			Version string            `json:"version"`
			Checks  map[string]string `json:"checks"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode health: %v", err)
		}
		if resp.Status != "healthy" {
			t.Errorf("expected healthy, got %s", resp.Status)
		}
		if resp.Version != "test-v1" {
			t.Errorf("expected version test-v1, got %s", resp.Version)
		}
	})

	t.Run("Ready", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodGet, "/ready", nil)
		if w.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", w.Code)
		}
	})

	t.Run("Metrics", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodGet, "/metrics", nil)
		if w.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", w.Code)
		}
	})
}
