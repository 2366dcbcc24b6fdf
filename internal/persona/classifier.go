// Package persona assigns each customer to exactly one persona via an
// ordered first-match rule cascade over population-relative thresholds.
package persona

import (
	"time"

	"github.com/opensegment/magpie/internal/domain"
	"github.com/opensegment/magpie/internal/features"
)

// brandLoyaltyFloor is the fixed top-brand concentration above which a
// repeat buyer counts as loyal. Not population-relative.
const brandLoyaltyFloor = 0.55

// labelMatchFloor is the minimum affinity match rate for the
// ingredient-conscious rule.
const labelMatchFloor = 0.45

// ComputeThresholds derives the population-relative cut points for one
// classification run. They are computed once over the full feature
// table and held constant for the pass, so every customer is judged
// against the same bar.
func ComputeThresholds(fvs []domain.FeatureVector) domain.Thresholds {
	spend := make([]float64, len(fvs))
	counts := make([]int, len(fvs))
	disc := make([]float64, len(fvs))
	prem := make([]float64, len(fvs))
	div := make([]int, len(fvs))
	rev := make([]float64, len(fvs))
	for i := range fvs {
		spend[i] = fvs[i].Spend90
		counts[i] = fvs[i].PurchaseCount90
		disc[i] = fvs[i].DiscountShare90
		prem[i] = fvs[i].PremiumShare90
		div[i] = fvs[i].CategoryDiversity90
		rev[i] = fvs[i].ReviewRate
	}
	return domain.Thresholds{
		SpendHi:     features.Percentile(spend, 0.80),
		FreqHi:      features.IntPercentile(counts, 0.80),
		DiscountHi:  features.Percentile(disc, 0.80),
		PremiumHi:   features.Percentile(prem, 0.80),
		DiversityHi: features.IntPercentile(div, 0.75),
		ReviewHi:    features.Percentile(rev, 0.80),
		LoyalHi:     brandLoyaltyFloor,
	}
}

// rule is one step of the cascade. Order is part of the contract:
// the first matching rule wins.
type rule struct {
	label string
	match func(f *domain.FeatureVector, hasAffinity bool, th domain.Thresholds) bool
}

func cascade() []rule {
	return []rule{
		{domain.PersonaLapsedWinback, func(f *domain.FeatureVector, _ bool, _ domain.Thresholds) bool {
			return f.PurchaseCount90 == 0 && f.RecencyDays > 120
		}},
		{domain.PersonaPremiumPower, func(f *domain.FeatureVector, _ bool, th domain.Thresholds) bool {
			return f.Spend90 >= th.SpendHi && float64(f.PurchaseCount90) >= th.FreqHi && f.PremiumShare90 >= th.PremiumHi
		}},
		{domain.PersonaBrandLoyalist, func(f *domain.FeatureVector, _ bool, th domain.Thresholds) bool {
			return f.TopBrandShare90 >= th.LoyalHi && f.PurchaseCount90 >= 3
		}},
		{domain.PersonaIngredientFocused, func(f *domain.FeatureVector, hasAffinity bool, _ domain.Thresholds) bool {
			return hasAffinity && f.LabelMatchRate90 >= labelMatchFloor && f.PurchaseCount90 >= 2
		}},
		{domain.PersonaDealHunter, func(f *domain.FeatureVector, _ bool, th domain.Thresholds) bool {
			return f.DiscountShare90 >= th.DiscountHi && f.PurchaseCount90 >= 2
		}},
		{domain.PersonaCategoryExplorer, func(f *domain.FeatureVector, _ bool, th domain.Thresholds) bool {
			return float64(f.CategoryDiversity90) >= th.DiversityHi && f.PurchaseCount90 >= 3
		}},
		{domain.PersonaReviewerResearcher, func(f *domain.FeatureVector, _ bool, th domain.Thresholds) bool {
			return f.ReviewRate >= th.ReviewHi && f.PurchaseCount90 >= 2
		}},
		{domain.PersonaRoutineReplenisher, func(f *domain.FeatureVector, _ bool, _ domain.Thresholds) bool {
			return f.PurchaseCount90 >= 2 && f.RecencyDays <= 45
		}},
	}
}

// ClassifyOne runs the cascade for a single feature vector and returns
// the persona label. Every vector gets a label; the fallback is
// Casual Browser.
func ClassifyOne(f *domain.FeatureVector, hasAffinity bool, th domain.Thresholds) string {
	for _, r := range cascade() {
		if r.match(f, hasAffinity, th) {
			return r.label
		}
	}
	return domain.PersonaCasualBrowser
}

// Classify assigns a persona to every feature vector, in input order.
// Customers missing from the reference slice are treated as having no
// label affinity.
func Classify(fvs []domain.FeatureVector, customers []domain.Customer, th domain.Thresholds) []domain.PersonaAssignment {
	affinity := make(map[string]bool, len(customers))
	for i := range customers {
		affinity[customers[i].ID] = customers[i].HasAffinity()
	}

	now := time.Now().UTC()
	out := make([]domain.PersonaAssignment, 0, len(fvs))
	for i := range fvs {
		f := &fvs[i]
		out = append(out, domain.PersonaAssignment{
			CustomerID: f.CustomerID,
			Persona:    ClassifyOne(f, affinity[f.CustomerID], th),
			AssignedAt: now,
		})
	}
	return out
}
