package features

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/opensegment/magpie/internal/domain"
)

var anchor = time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

func daysBefore(n int) time.Time {
	return anchor.Add(-time.Duration(n) * 24 * time.Hour)
}

func purchase(customerID string, at time.Time, net, list, discount float64, category, brand, label, orderID string) domain.Event {
	return domain.Event{
		CustomerID:  customerID,
		EventDT:     at,
		EventType:   domain.EventTypePurchase,
		NetPrice:    net,
		ListPrice:   list,
		DiscountPct: discount,
		Category:    category,
		Brand:       brand,
		Label:       label,
		OrderID:     orderID,
	}
}

func review(customerID string, at time.Time, rating, polarity float64) domain.Event {
	return domain.Event{
		CustomerID:    customerID,
		EventDT:       at,
		EventType:     domain.EventTypeReview,
		RatingValue:   rating,
		PolarityScore: polarity,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9
}

func TestAggregateNoEvents(t *testing.T) {
	customers := []domain.Customer{
		{ID: "c1", JoinDate: daysBefore(400)},
		{ID: "c2"},
	}

	out, err := Aggregate(customers, nil, 90)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(out))
	}
	for _, fv := range out {
		if fv.RecencyDays != domain.SentinelDays || fv.TenureDays != domain.SentinelDays {
			t.Errorf("%s: expected day sentinels, got recency=%d tenure=%d", fv.CustomerID, fv.RecencyDays, fv.TenureDays)
		}
		if fv.PurchaseCount90 != 0 || fv.Spend90 != 0 || fv.ReviewRate != 0 {
			t.Errorf("%s: expected zero aggregates, got %+v", fv.CustomerID, fv)
		}
	}
}

func TestAggregateSingleCustomer(t *testing.T) {
	customers := []domain.Customer{
		{ID: "c1", JoinDate: daysBefore(200), LabelAffinity: "vegan"},
	}
	events := []domain.Event{
		purchase("c1", anchor, 50, 50, 0, "skincare", "glow", "vegan", "o1"),
		purchase("c1", daysBefore(100), 80, 80, 0.2, "makeup", "glow", "", "o2"),
		review("c1", daysBefore(10), 4, 0.5),
	}

	out, err := Aggregate(customers, events, 90)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fv := out[0]

	if fv.RecencyDays != 0 {
		t.Errorf("expected recency 0, got %d", fv.RecencyDays)
	}
	if fv.TenureDays != 200 {
		t.Errorf("expected tenure 200, got %d", fv.TenureDays)
	}
	if fv.PurchaseCount90 != 1 {
		t.Errorf("expected 1 windowed purchase, got %d", fv.PurchaseCount90)
	}
	if !almostEqual(fv.Spend90, 50) {
		t.Errorf("expected spend 50, got %v", fv.Spend90)
	}
	if !almostEqual(fv.AvgOrderValue90, 50) {
		t.Errorf("expected aov 50, got %v", fv.AvgOrderValue90)
	}
	if fv.CategoryDiversity90 != 1 {
		t.Errorf("expected 1 category, got %d", fv.CategoryDiversity90)
	}
	if !almostEqual(fv.DiscountShare90, 0) {
		t.Errorf("expected discount share 0, got %v", fv.DiscountShare90)
	}
	// Only the windowed purchase pools into the price threshold, so its
	// own list price is the cut point and it counts as premium.
	if !almostEqual(fv.PremiumShare90, 1) {
		t.Errorf("expected premium share 1, got %v", fv.PremiumShare90)
	}
	if !almostEqual(fv.LabelMatchRate90, 1) {
		t.Errorf("expected label match 1, got %v", fv.LabelMatchRate90)
	}
	if !almostEqual(fv.TopBrandShare90, 1) {
		t.Errorf("expected top brand share 1, got %v", fv.TopBrandShare90)
	}
	// One review over two lifetime orders.
	if !almostEqual(fv.ReviewRate, 0.5) {
		t.Errorf("expected review rate 0.5, got %v", fv.ReviewRate)
	}
	if !almostEqual(fv.AvgRating, 4) {
		t.Errorf("expected avg rating 4, got %v", fv.AvgRating)
	}
	if !almostEqual(fv.AvgPolarity, 0.5) {
		t.Errorf("expected avg polarity 0.5, got %v", fv.AvgPolarity)
	}
}

func TestAggregateWindowBoundary(t *testing.T) {
	customers := []domain.Customer{{ID: "c1", JoinDate: daysBefore(365)}}
	events := []domain.Event{
		purchase("c1", anchor, 10, 10, 0, "a", "", "", "o1"),
		purchase("c1", daysBefore(90), 20, 20, 0, "b", "", "", "o2"), // exactly on the cutoff, included
		purchase("c1", daysBefore(91), 40, 40, 0, "c", "", "", "o3"), // one day past, excluded
	}

	out, err := Aggregate(customers, events, 90)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fv := out[0]
	if fv.PurchaseCount90 != 2 {
		t.Errorf("expected 2 windowed purchases, got %d", fv.PurchaseCount90)
	}
	if !almostEqual(fv.Spend90, 30) {
		t.Errorf("expected spend 30, got %v", fv.Spend90)
	}
	if fv.CategoryDiversity90 != 2 {
		t.Errorf("expected 2 categories, got %d", fv.CategoryDiversity90)
	}
}

func TestAggregatePremiumThresholdIsPopulationWide(t *testing.T) {
	customers := []domain.Customer{
		{ID: "cheap", JoinDate: daysBefore(100)},
		{ID: "rich", JoinDate: daysBefore(100)},
	}
	// Pooled windowed list prices: 10, 20, 30, 40. p75 = 32.5.
	events := []domain.Event{
		purchase("cheap", daysBefore(1), 10, 10, 0, "a", "", "", "o1"),
		purchase("cheap", daysBefore(2), 20, 20, 0, "a", "", "", "o2"),
		purchase("rich", daysBefore(3), 30, 30, 0, "a", "", "", "o3"),
		purchase("rich", daysBefore(4), 40, 40, 0, "a", "", "", "o4"),
	}

	out, err := Aggregate(customers, events, 90)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(out[0].PremiumShare90, 0) {
		t.Errorf("cheap: expected premium share 0, got %v", out[0].PremiumShare90)
	}
	if !almostEqual(out[1].PremiumShare90, 0.5) {
		t.Errorf("rich: expected premium share 0.5, got %v", out[1].PremiumShare90)
	}
}

func TestAggregateLabelAffinityGuard(t *testing.T) {
	customers := []domain.Customer{
		{ID: "fan", JoinDate: daysBefore(50), LabelAffinity: "vegan"},
		{ID: "none", JoinDate: daysBefore(50), LabelAffinity: "none"},
		{ID: "blank", JoinDate: daysBefore(50)},
	}
	events := []domain.Event{
		purchase("fan", daysBefore(1), 10, 10, 0, "a", "", "vegan", "o1"),
		purchase("fan", daysBefore(2), 10, 10, 0, "a", "", "organic", "o2"),
		purchase("none", daysBefore(1), 10, 10, 0, "a", "", "none", "o3"),
		purchase("blank", daysBefore(1), 10, 10, 0, "a", "", "", "o4"),
	}

	out, err := Aggregate(customers, events, 90)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(out[0].LabelMatchRate90, 0.5) {
		t.Errorf("fan: expected label match 0.5, got %v", out[0].LabelMatchRate90)
	}
	// "none" and empty affinities never match, even against identical labels.
	if !almostEqual(out[1].LabelMatchRate90, 0) {
		t.Errorf("none: expected label match 0, got %v", out[1].LabelMatchRate90)
	}
	if !almostEqual(out[2].LabelMatchRate90, 0) {
		t.Errorf("blank: expected label match 0, got %v", out[2].LabelMatchRate90)
	}
}

func TestAggregateReviewRateWithoutOrders(t *testing.T) {
	customers := []domain.Customer{{ID: "c1", JoinDate: daysBefore(30)}}
	events := []domain.Event{
		review("c1", daysBefore(1), 5, 0.9),
		review("c1", daysBefore(2), 3, -0.1),
	}

	out, err := Aggregate(customers, events, 90)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fv := out[0]
	if !almostEqual(fv.ReviewRate, 0) {
		t.Errorf("expected review rate 0 with no orders, got %v", fv.ReviewRate)
	}
	if !almostEqual(fv.AvgRating, 4) {
		t.Errorf("expected avg rating 4, got %v", fv.AvgRating)
	}
	if !almostEqual(fv.AvgPolarity, 0.4) {
		t.Errorf("expected avg polarity 0.4, got %v", fv.AvgPolarity)
	}
	if fv.RecencyDays != domain.SentinelDays {
		t.Errorf("expected recency sentinel with no purchases, got %d", fv.RecencyDays)
	}
}

func TestAggregateTopBrandShare(t *testing.T) {
	customers := []domain.Customer{{ID: "c1", JoinDate: daysBefore(30)}}
	events := []domain.Event{
		purchase("c1", daysBefore(1), 10, 10, 0, "a", "glow", "", "o1"),
		purchase("c1", daysBefore(2), 10, 10, 0, "a", "glow", "", "o2"),
		purchase("c1", daysBefore(3), 10, 10, 0, "a", "pure", "", "o3"),
		purchase("c1", daysBefore(4), 10, 10, 0, "a", "", "", "o4"),
	}

	out, err := Aggregate(customers, events, 90)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Modal brand appears twice across four windowed purchases.
	if !almostEqual(out[0].TopBrandShare90, 0.5) {
		t.Errorf("expected top brand share 0.5, got %v", out[0].TopBrandShare90)
	}
}

func TestAggregateUnknownCustomerEvents(t *testing.T) {
	customers := []domain.Customer{{ID: "c1", JoinDate: daysBefore(30)}}
	// The ghost's purchase sets the window anchor and skews the premium
	// pool but produces no output row.
	events := []domain.Event{
		purchase("ghost", anchor, 100, 100, 0, "a", "", "", "g1"),
		purchase("c1", daysBefore(10), 10, 10, 0, "a", "", "", "o1"),
	}

	out, err := Aggregate(customers, events, 90)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 vector, got %d", len(out))
	}
	if out[0].CustomerID != "c1" {
		t.Errorf("expected c1, got %s", out[0].CustomerID)
	}
	if out[0].RecencyDays != 10 {
		t.Errorf("expected recency 10 from ghost anchor, got %d", out[0].RecencyDays)
	}
	// Pool is [100, 10], p75 = 77.5, so c1's purchase is not premium.
	if !almostEqual(out[0].PremiumShare90, 0) {
		t.Errorf("expected premium share 0, got %v", out[0].PremiumShare90)
	}
}

func TestAggregateValidation(t *testing.T) {
	valid := []domain.Customer{{ID: "c1"}}

	tests := []struct {
		name      string
		customers []domain.Customer
		events    []domain.Event
	}{
		{"missing customer id", []domain.Customer{{}}, nil},
		{"event missing customer", valid, []domain.Event{{EventDT: anchor, EventType: "purchase"}}},
		{"event missing timestamp", valid, []domain.Event{{CustomerID: "c1", EventType: "purchase"}}},
		{"event missing type", valid, []domain.Event{{CustomerID: "c1", EventDT: anchor}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Aggregate(tc.customers, tc.events, 90)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestAggregateDeterministic(t *testing.T) {
	customers := []domain.Customer{
		{ID: "c1", JoinDate: daysBefore(120), LabelAffinity: "vegan"},
		{ID: "c2", JoinDate: daysBefore(60)},
	}
	events := []domain.Event{
		purchase("c1", daysBefore(5), 25, 30, 0.1, "skincare", "glow", "vegan", "o1"),
		purchase("c2", daysBefore(50), 15, 15, 0, "makeup", "pure", "", "o2"),
		review("c1", daysBefore(3), 5, 0.8),
	}

	a, err := Aggregate(customers, events, 90)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Aggregate(customers, events, 90)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range a {
		a[i].ComputedAt = time.Time{}
		b[i].ComputedAt = time.Time{}
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("expected identical output across runs, got %+v vs %+v", a, b)
	}
}
