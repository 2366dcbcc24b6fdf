package features

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/opensegment/magpie/internal/domain"
)

// ErrInvalidInput marks rows the aggregator refuses to process.
var ErrInvalidInput = errors.New("invalid input")

// premiumQuantile is the window-wide list-price quantile that separates
// premium purchases from the rest. Computed once per run over every
// windowed purchase, not per customer.
const premiumQuantile = 0.75

// accum collects one customer's running totals during the event scan.
type accum struct {
	// all-history purchase state
	lastPurchase time.Time
	orders       map[string]struct{}

	// all-history review state
	reviews     int
	ratingSum   float64
	polaritySum float64

	// windowed purchase state
	count90    int
	spend90    float64
	categories map[string]struct{}
	discounted int
	premium    int
	labelHits  int
	brands     map[string]int
}

// Aggregate computes one FeatureVector per customer, in input order.
//
// Recency and tenure are whole days behind the dataset's maximum event
// timestamp; customers with no purchase history (or a zero join date)
// get the day sentinel. Windowed aggregates cover purchases within
// windowDays of that maximum. A dataset with no events at all yields
// sentinel days and zero aggregates for everyone.
func Aggregate(customers []domain.Customer, events []domain.Event, windowDays int) ([]domain.FeatureVector, error) {
	if windowDays <= 0 {
		windowDays = domain.DefaultWindowDays
	}
	for i := range customers {
		if customers[i].ID == "" {
			return nil, fmt.Errorf("customer %d: missing customer_id: %w", i, ErrInvalidInput)
		}
	}
	for i := range events {
		ev := &events[i]
		switch {
		case ev.CustomerID == "":
			return nil, fmt.Errorf("event %d: missing customer_id: %w", i, ErrInvalidInput)
		case ev.EventDT.IsZero():
			return nil, fmt.Errorf("event %d: missing event_dt: %w", i, ErrInvalidInput)
		case ev.EventType == "":
			return nil, fmt.Errorf("event %d: missing event_type: %w", i, ErrInvalidInput)
		}
	}

	now := time.Now().UTC()

	if len(events) == 0 {
		out := make([]domain.FeatureVector, 0, len(customers))
		for _, c := range customers {
			out = append(out, domain.FeatureVector{
				CustomerID:  c.ID,
				RecencyDays: domain.SentinelDays,
				TenureDays:  domain.SentinelDays,
				ComputedAt:  now,
			})
		}
		return out, nil
	}

	maxDT := events[0].EventDT
	for i := 1; i < len(events); i++ {
		if events[i].EventDT.After(maxDT) {
			maxDT = events[i].EventDT
		}
	}
	cutoff := maxDT.Add(-time.Duration(windowDays) * 24 * time.Hour)

	// The premium cut point pools every windowed purchase, including
	// purchases by customers absent from the reference table.
	var listPrices []float64
	for i := range events {
		ev := &events[i]
		if ev.IsPurchase() && !ev.EventDT.Before(cutoff) {
			listPrices = append(listPrices, ev.ListPrice)
		}
	}
	premiumThreshold := Percentile(listPrices, premiumQuantile)

	affinity := make(map[string]string, len(customers))
	for i := range customers {
		affinity[customers[i].ID] = customers[i].LabelAffinity
	}

	acc := make(map[string]*accum)
	get := func(id string) *accum {
		a, ok := acc[id]
		if !ok {
			a = &accum{
				orders:     make(map[string]struct{}),
				categories: make(map[string]struct{}),
				brands:     make(map[string]int),
			}
			acc[id] = a
		}
		return a
	}

	for i := range events {
		ev := &events[i]
		a := get(ev.CustomerID)

		switch {
		case ev.IsPurchase():
			if ev.EventDT.After(a.lastPurchase) {
				a.lastPurchase = ev.EventDT
			}
			if ev.OrderID != "" {
				a.orders[ev.OrderID] = struct{}{}
			}
			if ev.EventDT.Before(cutoff) {
				continue
			}
			a.count90++
			a.spend90 += ev.NetPrice
			if ev.Category != "" {
				a.categories[ev.Category] = struct{}{}
			}
			if ev.DiscountPct > 0 {
				a.discounted++
			}
			if ev.ListPrice >= premiumThreshold {
				a.premium++
			}
			if af := affinity[ev.CustomerID]; af != "" && af != domain.AffinityNone && ev.Label == af {
				a.labelHits++
			}
			if ev.Brand != "" {
				a.brands[ev.Brand]++
			}
		case ev.IsReview():
			a.reviews++
			a.ratingSum += ev.RatingValue
			a.polaritySum += ev.PolarityScore
		}
	}

	out := make([]domain.FeatureVector, 0, len(customers))
	for i := range customers {
		c := &customers[i]
		fv := domain.FeatureVector{
			CustomerID:  c.ID,
			RecencyDays: domain.SentinelDays,
			TenureDays:  domain.SentinelDays,
			ComputedAt:  now,
		}
		if !c.JoinDate.IsZero() {
			fv.TenureDays = wholeDays(maxDT.Sub(c.JoinDate))
		}

		a, ok := acc[c.ID]
		if !ok {
			out = append(out, fv)
			continue
		}

		if !a.lastPurchase.IsZero() {
			fv.RecencyDays = wholeDays(maxDT.Sub(a.lastPurchase))
		}
		fv.PurchaseCount90 = a.count90
		fv.Spend90 = a.spend90
		fv.CategoryDiversity90 = len(a.categories)
		if a.count90 > 0 {
			n := float64(a.count90)
			fv.AvgOrderValue90 = a.spend90 / n
			fv.DiscountShare90 = float64(a.discounted) / n
			fv.PremiumShare90 = float64(a.premium) / n
			fv.LabelMatchRate90 = float64(a.labelHits) / n
			fv.TopBrandShare90 = float64(maxCount(a.brands)) / n
		}
		if len(a.orders) > 0 {
			fv.ReviewRate = float64(a.reviews) / float64(len(a.orders))
		}
		if a.reviews > 0 {
			fv.AvgRating = a.ratingSum / float64(a.reviews)
			fv.AvgPolarity = a.polaritySum / float64(a.reviews)
		}
		out = append(out, fv)
	}
	return out, nil
}

// wholeDays truncates a duration to whole days, rounding toward
// negative infinity so a join date after the anchor stays negative.
func wholeDays(d time.Duration) int {
	return int(math.Floor(d.Hours() / 24))
}

func maxCount(counts map[string]int) int {
	max := 0
	for _, n := range counts {
		if n > max {
			max = n
		}
	}
	return max
}
